package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
)

type FlashcardRepository struct {
	db DBTX
}

func NewFlashcardRepository(db DBTX) *FlashcardRepository {
	return &FlashcardRepository{db: db}
}

const flashcardColumns = `flashcard_id::text, owner, quiz_id::text, front, back, interval_days, ease_factor, repetition, next_review, create_time`

// Insert writes cards with the given DBTX, so a batch can share the caller's transaction.
func (r *FlashcardRepository) Insert(ctx context.Context, db DBTX, cards ...domain.Flashcard) error {
	if db == nil {
		db = r.db
	}

	const stmt = `
INSERT INTO flashcards (flashcard_id, owner, quiz_id, front, back, interval_days, ease_factor, repetition, next_review, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(stmt, c.ID, c.Owner, nullable(c.QuizID), c.Front, c.Back,
			c.Interval, c.EaseFactor, c.Repetition, c.NextReview, c.CreatedAt)
	}

	err := sendBatch(ctx, db, batch)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("flashcard already exists"), errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert flashcards: %w", err)
	}

	return nil
}

func (r *FlashcardRepository) Get(ctx context.Context, id string) (domain.Flashcard, error) {
	c, err := scanFlashcard(r.db.QueryRow(ctx, `SELECT `+flashcardColumns+` FROM flashcards WHERE flashcard_id = $1;`, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Flashcard{}, errors.New(errors.CodeNotFound, errors.WithMessagef("flashcard not found: flashcard=%s", id))
	}
	if err != nil {
		return domain.Flashcard{}, fmt.Errorf("get flashcard: %w", err)
	}

	return c, nil
}

// UpdateSchedule stores the scheduling fields of c.
func (r *FlashcardRepository) UpdateSchedule(ctx context.Context, c domain.Flashcard) error {
	const stmt = `UPDATE flashcards SET interval_days = $2, ease_factor = $3, repetition = $4, next_review = $5 WHERE flashcard_id = $1;`

	tag, err := r.db.Exec(ctx, stmt, c.ID, c.Interval, c.EaseFactor, c.Repetition, c.NextReview)
	if err != nil {
		return fmt.Errorf("update flashcard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("flashcard not found: flashcard=%s", c.ID))
	}

	return nil
}

// ListDue returns the owner's cards with next_review at or before now.
func (r *FlashcardRepository) ListDue(ctx context.Context, owner string, now time.Time) ([]domain.Flashcard, error) {
	return r.list(ctx, `SELECT `+flashcardColumns+` FROM flashcards WHERE owner = $1 AND next_review <= $2;`, owner, now)
}

func (r *FlashcardRepository) ListByQuiz(ctx context.Context, quizID string) ([]domain.Flashcard, error) {
	return r.list(ctx, `SELECT `+flashcardColumns+` FROM flashcards WHERE quiz_id = $1 ORDER BY create_time;`, quizID)
}

func (r *FlashcardRepository) list(ctx context.Context, stmt string, args ...any) ([]domain.Flashcard, error) {
	rows, err := r.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}

	cards, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Flashcard, error) {
		return scanFlashcard(r)
	})
	if err != nil {
		return nil, fmt.Errorf("list flashcards: %w", err)
	}

	return cards, nil
}

func scanFlashcard(row pgx.Row) (domain.Flashcard, error) {
	var (
		c      domain.Flashcard
		quizID *string
	)

	err := row.Scan(&c.ID, &c.Owner, &quizID, &c.Front, &c.Back,
		&c.Interval, &c.EaseFactor, &c.Repetition, &c.NextReview, &c.CreatedAt)
	if err != nil {
		return domain.Flashcard{}, err
	}
	if quizID != nil {
		c.QuizID = *quizID
	}

	return c, nil
}

func sendBatch(ctx context.Context, db DBTX, b *pgx.Batch) (err error) {
	type batcher interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	}

	bd, ok := db.(batcher)
	if !ok {
		return fmt.Errorf("%T does not support batches", db)
	}

	res := bd.SendBatch(ctx, b)
	defer func() {
		err = stderrors.Join(err, res.Close())
	}()

	for range b.Len() {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
