package flashcard

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/victornm/quizflash/internal/bridge"
	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/event"
	"github.com/victornm/quizflash/internal/quota"
	"github.com/victornm/quizflash/internal/srs"
	"github.com/victornm/quizflash/internal/telemetry"
)

type Repository interface {
	GetQuiz(ctx context.Context, id string) (domain.Quiz, error)
	CreateFlashcardBatch(ctx context.Context, quizID string, generate func(domain.Quiz) ([]domain.Flashcard, error)) ([]domain.Flashcard, error)
	InsertFlashcard(ctx context.Context, c domain.Flashcard) error
	GetFlashcard(ctx context.Context, id string) (domain.Flashcard, error)
	UpdateFlashcardSchedule(ctx context.Context, c domain.Flashcard) error
	ListDueFlashcards(ctx context.Context, owner string, now time.Time) ([]domain.Flashcard, error)
	ListQuizFlashcards(ctx context.Context, quizID string) ([]domain.Flashcard, error)
}

type Quota interface {
	Consume(ctx context.Context, user string, kind quota.Kind) error
	Release(ctx context.Context, user string, kind quota.Kind) error
}

type Config struct {
	Repo     Repository
	Quota    Quota
	EventBus *event.Bus
	Logger   *zap.Logger
	NowFunc  func() time.Time
	IDFunc   bridge.IDFunc
}

type Service struct {
	repo  Repository
	quota Quota
	eb    *event.Bus
	log   *zap.Logger
	now   func() time.Time
	newID bridge.IDFunc
}

func NewService(c Config) *Service {
	s := &Service{
		repo:  c.Repo,
		quota: c.Quota,
		eb:    c.EventBus,
		log:   c.Logger,
		now:   c.NowFunc,
		newID: c.IDFunc,
	}

	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	event.On(s.eb, s.onQuizCompleted)

	return s
}

func (s *Service) onQuizCompleted(ctx context.Context, e domain.EventQuizCompleted) error {
	_, err := s.generate(ctx, e.Quiz.ID)
	if stderrors.Is(err, bridge.ErrAlreadyGenerated) {
		s.log.Debug("flashcard: quiz already has flashcards", zap.String("quiz", e.Quiz.ID))
		return nil
	}

	return err
}

type GenerateRequest struct {
	Owner  string
	QuizID string
}

// GenerateForQuiz creates the flashcard batch of a quiz on explicit request.
// It fails with CodeAlreadyExists when the quiz already has its batch.
func (s *Service) GenerateForQuiz(ctx context.Context, req GenerateRequest) ([]domain.Flashcard, error) {
	q, err := s.repo.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}
	if q.Owner != req.Owner {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", req.QuizID))
	}
	if q.HasFlashcards {
		return nil, errors.Convert(bridge.ErrAlreadyGenerated)
	}

	if err := s.quota.Consume(ctx, req.Owner, quota.KindFlashcards); err != nil {
		return nil, err
	}

	cards, err := s.generate(ctx, req.QuizID)
	if err != nil {
		if rerr := s.quota.Release(ctx, req.Owner, quota.KindFlashcards); rerr != nil {
			s.log.Warn("flashcard: release quota", zap.String("owner", req.Owner), zap.Error(rerr))
		}
		return nil, err
	}

	return cards, nil
}

func (s *Service) generate(ctx context.Context, quizID string) ([]domain.Flashcard, error) {
	now := s.now()

	cards, err := s.repo.CreateFlashcardBatch(ctx, quizID, func(q domain.Quiz) ([]domain.Flashcard, error) {
		return bridge.Generate(q, now, s.newID)
	})
	if err != nil {
		return nil, err
	}

	telemetry.CountFlashcards("quiz", len(cards))
	s.log.Info("flashcard: batch generated", zap.String("quiz", quizID), zap.Int("cards", len(cards)))

	if len(cards) > 0 {
		s.eb.Publish(ctx, domain.EventFlashcardsGenerated{
			Owner:      cards[0].Owner,
			QuizID:     quizID,
			Flashcards: cards,
		})
	}

	return cards, nil
}

type CreateCardRequest struct {
	Owner  string
	QuizID string
	Front  string
	Back   string
}

// CreateCard adds a single manual flashcard, due immediately.
func (s *Service) CreateCard(ctx context.Context, req CreateCardRequest) (*domain.Flashcard, error) {
	if req.QuizID != "" {
		q, err := s.repo.GetQuiz(ctx, req.QuizID)
		if err != nil {
			return nil, err
		}
		if q.Owner != req.Owner {
			return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", req.QuizID))
		}
	}

	c, err := bridge.NewCard(req.Owner, req.QuizID, req.Front, req.Back, s.now(), s.newID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertFlashcard(ctx, c); err != nil {
		return nil, err
	}

	telemetry.CountFlashcards("manual", 1)
	return &c, nil
}

type ReviewRequest struct {
	Owner       string
	FlashcardID string
	Rating      int
}

// Review applies the learner's rating to the card and stores the new schedule.
func (s *Service) Review(ctx context.Context, req ReviewRequest) (*domain.Flashcard, error) {
	r, err := srs.ParseRating(req.Rating)
	if err != nil {
		return nil, err
	}

	c, err := s.getOwned(ctx, req.Owner, req.FlashcardID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next, err := srs.Schedule(c, r, now)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateFlashcardSchedule(ctx, next); err != nil {
		return nil, err
	}

	telemetry.CountReview(r.String())
	s.eb.Publish(ctx, domain.EventFlashcardReviewed{
		Flashcard:  next,
		Rating:     int(r),
		ReviewedAt: now,
	})

	return &next, nil
}

// ListDue returns every card of owner that is due now, in random order.
func (s *Service) ListDue(ctx context.Context, owner string) ([]domain.Flashcard, error) {
	now := s.now()

	cards, err := s.repo.ListDueFlashcards(ctx, owner, now)
	if err != nil {
		return nil, err
	}

	return srs.Due(cards, now), nil
}

func (s *Service) ListByQuiz(ctx context.Context, req GenerateRequest) ([]domain.Flashcard, error) {
	q, err := s.repo.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}
	if q.Owner != req.Owner {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", req.QuizID))
	}

	return s.repo.ListQuizFlashcards(ctx, req.QuizID)
}

func (s *Service) getOwned(ctx context.Context, owner, id string) (domain.Flashcard, error) {
	c, err := s.repo.GetFlashcard(ctx, id)
	if err != nil {
		return domain.Flashcard{}, err
	}
	if c.Owner != owner {
		return domain.Flashcard{}, errors.New(errors.CodeNotFound, errors.WithMessagef("flashcard not found: flashcard=%s", id))
	}

	return c, nil
}
