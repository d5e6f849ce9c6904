package quiz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/victornm/quizflash/internal/attempt"
	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/event"
	"github.com/victornm/quizflash/internal/quota"
	"github.com/victornm/quizflash/internal/telemetry"
)

func init() {
	errors.Register(domain.ErrQuizCompleted, errors.CodeFailedPrecondition)
}

type Repository interface {
	InsertQuiz(ctx context.Context, q domain.Quiz) error
	GetQuiz(ctx context.Context, id string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, owner string) ([]domain.Quiz, error)
	SaveQuizResult(ctx context.Context, q domain.Quiz) error
	DeleteQuiz(ctx context.Context, id string) error
}

type Quota interface {
	Consume(ctx context.Context, user string, kind quota.Kind) error
	Release(ctx context.Context, user string, kind quota.Kind) error
}

type Config struct {
	Repo       Repository
	Quota      Quota
	EventBus   *event.Bus
	Redis      redis.UniversalClient
	Prefix     string
	AttemptTTL time.Duration
	Logger     *zap.Logger
	NowFunc    func() time.Time
}

type Service struct {
	repo  Repository
	quota Quota
	eb    *event.Bus
	cache *attemptCache
	log   *zap.Logger
	now   func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		repo:  c.Repo,
		quota: c.Quota,
		eb:    c.EventBus,
		cache: &attemptCache{
			redis:  c.Redis,
			prefix: c.Prefix,
			ttl:    c.AttemptTTL,
		},
		log: c.Logger,
		now: c.NowFunc,
	}

	if s.cache.ttl <= 0 {
		s.cache.ttl = defaultAttemptTTL
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// CreateQuizRequest carries a generated quiz into the system.
type CreateQuizRequest struct {
	Owner      string
	Title      string
	Topic      string
	Difficulty domain.Difficulty
	TotalMarks int
	ExamStyle  bool
	Questions  []domain.Question
}

// CreateQuiz stores a new, unattempted quiz. It counts against the owner's daily quiz quota.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	q, err := s.newQuiz(req)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid quiz: %v", err), errors.WithCause(err))
	}

	if err := s.quota.Consume(ctx, req.Owner, quota.KindQuiz); err != nil {
		return nil, err
	}

	if err := s.repo.InsertQuiz(ctx, q); err != nil {
		if rerr := s.quota.Release(ctx, req.Owner, quota.KindQuiz); rerr != nil {
			s.log.Warn("quiz: release quota", zap.String("owner", req.Owner), zap.Error(rerr))
		}
		return nil, err
	}

	s.log.Info("quiz: created", zap.String("quiz", q.ID), zap.String("owner", q.Owner), zap.Int("questions", len(q.Questions)))
	return &q, nil
}

func (s *Service) newQuiz(req CreateQuizRequest) (domain.Quiz, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return domain.Quiz{}, fmt.Errorf("owner is empty")
	}
	if strings.TrimSpace(req.Title) == "" {
		return domain.Quiz{}, fmt.Errorf("title is empty")
	}
	if req.Difficulty == "" {
		req.Difficulty = domain.DifficultyMedium
	}
	if !req.Difficulty.Valid() {
		return domain.Quiz{}, fmt.Errorf("unknown difficulty %q", req.Difficulty)
	}
	if len(req.Questions) == 0 {
		return domain.Quiz{}, fmt.Errorf("quiz has no questions")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("generate quiz ID: %w", err)
	}

	q := domain.Quiz{
		ID:         id.String(),
		Owner:      req.Owner,
		Title:      req.Title,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		TotalMarks: req.TotalMarks,
		ExamStyle:  req.ExamStyle || req.Difficulty == domain.DifficultyExamStyle,
		CreatedAt:  s.now(),
	}

	seen := make(map[string]bool, len(req.Questions))
	marks := 0
	for i, qq := range req.Questions {
		if qq.ID == "" {
			qq.ID = fmt.Sprintf("q%d", i+1)
		}
		if seen[qq.ID] {
			return domain.Quiz{}, fmt.Errorf("duplicate question id %s", qq.ID)
		}
		seen[qq.ID] = true

		if qq.Marks == 0 {
			qq.Marks = domain.DefaultMarks
		}
		qq.UserAnswer, qq.IsCorrect = "", false
		if err := qq.Validate(); err != nil {
			return domain.Quiz{}, err
		}

		marks += qq.Marks
		q.Questions = append(q.Questions, qq)
	}

	if q.TotalMarks == 0 {
		q.TotalMarks = marks
	}

	return q, nil
}

type GetQuizRequest struct {
	Owner  string
	QuizID string
}

func (s *Service) GetQuiz(ctx context.Context, req GetQuizRequest) (*domain.Quiz, error) {
	q, err := s.repo.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	// Quizzes of other users are reported as missing.
	if q.Owner != req.Owner {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", req.QuizID))
	}

	return &q, nil
}

func (s *Service) ListQuizzes(ctx context.Context, owner string) ([]domain.Quiz, error) {
	return s.repo.ListQuizzes(ctx, owner)
}

// DeleteQuiz removes the quiz, its flashcards and any in-flight attempt.
func (s *Service) DeleteQuiz(ctx context.Context, req GetQuizRequest) error {
	if _, err := s.GetQuiz(ctx, req); err != nil {
		return err
	}

	if err := s.repo.DeleteQuiz(ctx, req.QuizID); err != nil {
		return err
	}

	return s.cache.drop(ctx, req.Owner, req.QuizID)
}

// AttemptResponse is the attempt after an operation. Changed is false when the
// operation was rejected by the state machine, Reason then says why.
type AttemptResponse struct {
	Attempt attempt.Attempt
	Changed bool
	Reason  string
}

type AttemptRequest struct {
	Owner  string
	QuizID string
}

// OpenAttempt returns the learner's current attempt for a quiz, creating it
// in intro state if none is in flight.
func (s *Service) OpenAttempt(ctx context.Context, req AttemptRequest) (*AttemptResponse, error) {
	a, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	return &AttemptResponse{Attempt: a}, nil
}

func (s *Service) StartAttempt(ctx context.Context, req AttemptRequest) (*AttemptResponse, error) {
	return s.transition(ctx, req, attempt.Attempt.Start)
}

type AnswerRequest struct {
	Owner      string
	QuizID     string
	QuestionID string
	Answer     string
}

func (s *Service) AnswerQuestion(ctx context.Context, req AnswerRequest) (*AttemptResponse, error) {
	return s.transition(ctx, AttemptRequest{Owner: req.Owner, QuizID: req.QuizID}, func(a attempt.Attempt) (attempt.Attempt, error) {
		return a.Answer(req.QuestionID, req.Answer)
	})
}

func (s *Service) NextQuestion(ctx context.Context, req AttemptRequest) (*AttemptResponse, error) {
	return s.transition(ctx, req, attempt.Attempt.Next)
}

func (s *Service) PreviousQuestion(ctx context.Context, req AttemptRequest) (*AttemptResponse, error) {
	return s.transition(ctx, req, attempt.Attempt.Previous)
}

// SubmitAttempt grades the attempt, stores the result and publishes
// quiz.completed. The attempt stays active in the cache if storing fails, so
// the learner can submit again. A result is stored once: a stale active
// attempt submitted after that is dropped and reported as unchanged.
func (s *Service) SubmitAttempt(ctx context.Context, req AttemptRequest) (*AttemptResponse, error) {
	a, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	done, err := a.Submit()
	if attempt.Unchanged(err) {
		return &AttemptResponse{Attempt: a, Reason: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	err = s.repo.SaveQuizResult(ctx, done.Quiz)
	if stderrors.Is(err, domain.ErrQuizCompleted) {
		return s.alreadySubmitted(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	if err := s.cache.drop(ctx, req.Owner, req.QuizID); err != nil {
		s.log.Warn("quiz: drop submitted attempt", zap.String("quiz", req.QuizID), zap.Error(err))
	}

	telemetry.ObserveQuizScore(*done.Quiz.Score)
	s.log.Info("quiz: attempt submitted",
		zap.String("quiz", req.QuizID),
		zap.String("owner", req.Owner),
		zap.Int("score", *done.Quiz.Score),
	)

	s.eb.Publish(ctx, domain.EventQuizCompleted{
		Quiz: done.Quiz,
	})

	return &AttemptResponse{Attempt: done, Changed: true}, nil
}

func (s *Service) alreadySubmitted(ctx context.Context, req AttemptRequest) (*AttemptResponse, error) {
	if err := s.cache.drop(ctx, req.Owner, req.QuizID); err != nil {
		return nil, err
	}

	q, err := s.GetQuiz(ctx, GetQuizRequest(req))
	if err != nil {
		return nil, err
	}

	s.log.Debug("quiz: attempt already submitted", zap.String("quiz", req.QuizID), zap.String("owner", req.Owner))
	return &AttemptResponse{Attempt: attempt.Open(*q), Reason: domain.ErrQuizCompleted.Error()}, nil
}

func (s *Service) transition(ctx context.Context, req AttemptRequest, fn func(attempt.Attempt) (attempt.Attempt, error)) (*AttemptResponse, error) {
	a, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	next, err := fn(a)
	if attempt.Unchanged(err) {
		s.log.Debug("quiz: transition rejected", zap.String("quiz", req.QuizID), zap.Error(err))
		return &AttemptResponse{Attempt: a, Reason: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.cache.put(ctx, req.Owner, next); err != nil {
		return nil, err
	}

	return &AttemptResponse{Attempt: next, Changed: true}, nil
}

func (s *Service) load(ctx context.Context, req AttemptRequest) (attempt.Attempt, error) {
	a, ok, err := s.cache.get(ctx, req.Owner, req.QuizID)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if ok {
		return a, nil
	}

	q, err := s.GetQuiz(ctx, GetQuizRequest(req))
	if err != nil {
		return attempt.Attempt{}, err
	}

	a = attempt.Open(*q)
	if a.Status == attempt.StatusCompleted {
		return a, nil
	}

	if err := s.cache.put(ctx, req.Owner, a); err != nil {
		return attempt.Attempt{}, err
	}

	return a, nil
}
