package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizflash/internal/domain"
)

// Store is the Postgres implementation of the quiz and flashcard repositories.
type Store struct {
	tx         *Transactor
	quizzes    *QuizRepository
	flashcards *FlashcardRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		tx:         NewTransactor(pool),
		quizzes:    NewQuizRepository(pool),
		flashcards: NewFlashcardRepository(pool),
	}
}

func (s *Store) InsertQuiz(ctx context.Context, q domain.Quiz) error {
	return s.quizzes.Insert(ctx, q)
}

func (s *Store) GetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	return s.quizzes.Get(ctx, id)
}

func (s *Store) ListQuizzes(ctx context.Context, owner string) ([]domain.Quiz, error) {
	return s.quizzes.ListByOwner(ctx, owner)
}

func (s *Store) SaveQuizResult(ctx context.Context, q domain.Quiz) error {
	return s.quizzes.SaveResult(ctx, q)
}

func (s *Store) DeleteQuiz(ctx context.Context, id string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.quizzes.Delete(ctx, tx, id)
	})
}

// CreateFlashcardBatch locks the quiz, builds its cards with generate and
// stores them together with the has_flashcards flag. generate sees the locked
// row, so two concurrent calls cannot both produce a batch.
func (s *Store) CreateFlashcardBatch(ctx context.Context, quizID string, generate func(domain.Quiz) ([]domain.Flashcard, error)) ([]domain.Flashcard, error) {
	var cards []domain.Flashcard

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		q, err := s.quizzes.GetForUpdate(ctx, tx, quizID)
		if err != nil {
			return err
		}

		cards, err = generate(q)
		if err != nil {
			return err
		}

		if err := s.flashcards.Insert(ctx, tx, cards...); err != nil {
			return err
		}

		return s.quizzes.MarkHasFlashcards(ctx, tx, quizID)
	})
	if err != nil {
		return nil, err
	}

	return cards, nil
}

func (s *Store) InsertFlashcard(ctx context.Context, c domain.Flashcard) error {
	return s.flashcards.Insert(ctx, nil, c)
}

func (s *Store) GetFlashcard(ctx context.Context, id string) (domain.Flashcard, error) {
	return s.flashcards.Get(ctx, id)
}

func (s *Store) UpdateFlashcardSchedule(ctx context.Context, c domain.Flashcard) error {
	return s.flashcards.UpdateSchedule(ctx, c)
}

func (s *Store) ListDueFlashcards(ctx context.Context, owner string, now time.Time) ([]domain.Flashcard, error) {
	return s.flashcards.ListDue(ctx, owner, now)
}

func (s *Store) ListQuizFlashcards(ctx context.Context, quizID string) ([]domain.Flashcard, error) {
	return s.flashcards.ListByQuiz(ctx, quizID)
}
