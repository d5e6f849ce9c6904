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

type QuizRepository struct {
	db DBTX
}

func NewQuizRepository(db DBTX) *QuizRepository {
	return &QuizRepository{db: db}
}

const quizColumns = `quiz_id::text, owner, title, topic, difficulty, total_marks, exam_style, questions, score, has_flashcards, create_time`

func (r *QuizRepository) Insert(ctx context.Context, q domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (quiz_id, owner, title, topic, difficulty, total_marks, exam_style, questions, score, has_flashcards, create_time, update_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11);`

	_, err := r.db.Exec(ctx, stmt,
		q.ID, q.Owner, q.Title, q.Topic, string(q.Difficulty), q.TotalMarks, q.ExamStyle,
		q.Questions, q.Score, q.HasFlashcards, q.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("quiz already exists: quiz=%s", q.ID), errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	return nil
}

func (r *QuizRepository) Get(ctx context.Context, id string) (domain.Quiz, error) {
	return r.get(ctx, r.db, `SELECT `+quizColumns+` FROM quizzes WHERE quiz_id = $1;`, id)
}

// GetForUpdate locks the quiz row until the surrounding transaction ends.
func (r *QuizRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (domain.Quiz, error) {
	return r.get(ctx, tx, `SELECT `+quizColumns+` FROM quizzes WHERE quiz_id = $1 FOR UPDATE;`, id)
}

func (r *QuizRepository) get(ctx context.Context, db DBTX, stmt, id string) (domain.Quiz, error) {
	q, err := scanQuiz(db.QueryRow(ctx, stmt, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", id))
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("get quiz: %w", err)
	}

	return q, nil
}

func (r *QuizRepository) ListByOwner(ctx context.Context, owner string) ([]domain.Quiz, error) {
	rows, err := r.db.Query(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE owner = $1 ORDER BY create_time DESC;`, owner)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	quizzes, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Quiz, error) {
		return scanQuiz(r)
	})
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	return quizzes, nil
}

// SaveResult stores the graded questions and score of a completed attempt.
// Only an unscored quiz is updated; a scored one yields domain.ErrQuizCompleted.
func (r *QuizRepository) SaveResult(ctx context.Context, q domain.Quiz) error {
	const stmt = `UPDATE quizzes SET questions = $2, score = $3, update_time = $4 WHERE quiz_id = $1 AND score IS NULL;`

	tag, err := r.db.Exec(ctx, stmt, q.ID, q.Questions, q.Score, time.Now())
	if err != nil {
		return fmt.Errorf("save quiz result: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE quiz_id = $1);`, q.ID).Scan(&exists); err != nil {
		return fmt.Errorf("save quiz result: %w", err)
	}
	if !exists {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", q.ID))
	}

	return fmt.Errorf("%w: quiz=%s", domain.ErrQuizCompleted, q.ID)
}

func (r *QuizRepository) MarkHasFlashcards(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE quizzes SET has_flashcards = TRUE, update_time = $2 WHERE quiz_id = $1;`, id, time.Now())
	if err != nil {
		return fmt.Errorf("mark quiz has flashcards: %w", err)
	}
	return nil
}

// Delete removes the quiz and every flashcard derived from it.
func (r *QuizRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM flashcards WHERE quiz_id = $1;`, id); err != nil {
		return fmt.Errorf("delete flashcards: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM quizzes WHERE quiz_id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", id))
	}

	return nil
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var (
		q          domain.Quiz
		difficulty string
	)

	err := row.Scan(&q.ID, &q.Owner, &q.Title, &q.Topic, &difficulty, &q.TotalMarks, &q.ExamStyle,
		&q.Questions, &q.Score, &q.HasFlashcards, &q.CreatedAt)
	if err != nil {
		return domain.Quiz{}, err
	}
	q.Difficulty = domain.Difficulty(difficulty)

	return q, nil
}
