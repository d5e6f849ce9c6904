// Package memory is an in-process store with the same behaviour as the
// Postgres store. It backs local runs without a database and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
)

type Store struct {
	mu         sync.Mutex
	quizzes    map[string]domain.Quiz
	flashcards map[string]domain.Flashcard
}

func NewStore() *Store {
	return &Store{
		quizzes:    make(map[string]domain.Quiz),
		flashcards: make(map[string]domain.Flashcard),
	}
}

func (s *Store) InsertQuiz(_ context.Context, q domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[q.ID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("quiz already exists: quiz=%s", q.ID))
	}
	s.quizzes[q.ID] = q.Clone()
	return nil
}

func (s *Store) GetQuiz(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, quizNotFound(id)
	}
	return q.Clone(), nil
}

func (s *Store) ListQuizzes(_ context.Context, owner string) ([]domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quizzes := lo.FilterMap(lo.Values(s.quizzes), func(q domain.Quiz, _ int) (domain.Quiz, bool) {
		return q.Clone(), q.Owner == owner
	})
	sort.Slice(quizzes, func(i, j int) bool {
		return quizzes[i].CreatedAt.After(quizzes[j].CreatedAt)
	})
	return quizzes, nil
}

func (s *Store) SaveQuizResult(_ context.Context, q domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.quizzes[q.ID]
	if !ok {
		return quizNotFound(q.ID)
	}
	if stored.Attempted() {
		return fmt.Errorf("%w: quiz=%s", domain.ErrQuizCompleted, q.ID)
	}

	g := q.Clone()
	stored.Questions = g.Questions
	stored.Score = g.Score
	s.quizzes[q.ID] = stored
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[id]; !ok {
		return quizNotFound(id)
	}

	delete(s.quizzes, id)
	for cid, c := range s.flashcards {
		if c.QuizID == id {
			delete(s.flashcards, cid)
		}
	}
	return nil
}

func (s *Store) CreateFlashcardBatch(_ context.Context, quizID string, generate func(domain.Quiz) ([]domain.Flashcard, error)) ([]domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, quizNotFound(quizID)
	}

	cards, err := generate(q.Clone())
	if err != nil {
		return nil, err
	}

	for _, c := range cards {
		s.flashcards[c.ID] = c
	}
	q.HasFlashcards = true
	s.quizzes[quizID] = q
	return cards, nil
}

func (s *Store) InsertFlashcard(_ context.Context, c domain.Flashcard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flashcards[c.ID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("flashcard already exists: flashcard=%s", c.ID))
	}
	s.flashcards[c.ID] = c
	return nil
}

func (s *Store) GetFlashcard(_ context.Context, id string) (domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.flashcards[id]
	if !ok {
		return domain.Flashcard{}, errors.New(errors.CodeNotFound, errors.WithMessagef("flashcard not found: flashcard=%s", id))
	}
	return c, nil
}

func (s *Store) UpdateFlashcardSchedule(_ context.Context, c domain.Flashcard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.flashcards[c.ID]
	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("flashcard not found: flashcard=%s", c.ID))
	}

	stored.Interval = c.Interval
	stored.EaseFactor = c.EaseFactor
	stored.Repetition = c.Repetition
	stored.NextReview = c.NextReview
	s.flashcards[c.ID] = stored
	return nil
}

func (s *Store) ListDueFlashcards(_ context.Context, owner string, now time.Time) ([]domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Filter(lo.Values(s.flashcards), func(c domain.Flashcard, _ int) bool {
		return c.Owner == owner && !c.NextReview.After(now)
	}), nil
}

func (s *Store) ListQuizFlashcards(_ context.Context, quizID string) ([]domain.Flashcard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := lo.Filter(lo.Values(s.flashcards), func(c domain.Flashcard, _ int) bool {
		return c.QuizID == quizID
	})
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].CreatedAt.Equal(cards[j].CreatedAt) {
			return cards[i].ID < cards[j].ID
		}
		return cards[i].CreatedAt.Before(cards[j].CreatedAt)
	})
	return cards, nil
}

func quizNotFound(id string) error {
	return errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", id))
}
