package api

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"google.golang.org/grpc"

	"github.com/victornm/quizflash/internal/attempt"
	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/event"
	"github.com/victornm/quizflash/internal/flashcard"
	"github.com/victornm/quizflash/internal/progress"
	"github.com/victornm/quizflash/internal/quiz"
	"github.com/victornm/quizflash/internal/quota"
)

const ServiceName = "quizflash.v1.StudyService"

type Config struct {
	GRPC         grpc.ServiceRegistrar
	EventBus     *event.Bus
	Quiz         *quiz.Service
	Flashcard    *flashcard.Service
	Progress     *progress.Service
	Quota        *quota.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qs *quiz.Service
	fs *flashcard.Service
	ps *progress.Service
	qt *quota.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		qs:     c.Quiz,
		fs:     c.Flashcard,
		ps:     c.Progress,
		qt:     c.Quota,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// gRPC APIs
	c.GRPC.RegisterService(&serviceDesc, a)

	// Register event handlers
	event.On(c.EventBus, a.PublishQuizCompleted)
	event.On(c.EventBus, a.PublishFlashcardsGenerated)
	event.On(c.EventBus, a.PublishProgressUpdated)

	return a
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateQuiz", (*API).CreateQuiz),
		unary("GetQuiz", (*API).GetQuiz),
		unary("ListQuizzes", (*API).ListQuizzes),
		unary("DeleteQuiz", (*API).DeleteQuiz),
		unary("OpenAttempt", (*API).OpenAttempt),
		unary("StartAttempt", (*API).StartAttempt),
		unary("AnswerQuestion", (*API).AnswerQuestion),
		unary("NextQuestion", (*API).NextQuestion),
		unary("PreviousQuestion", (*API).PreviousQuestion),
		unary("SubmitAttempt", (*API).SubmitAttempt),
		unary("GenerateFlashcards", (*API).GenerateFlashcards),
		unary("CreateFlashcard", (*API).CreateFlashcard),
		unary("ReviewFlashcard", (*API).ReviewFlashcard),
		unary("ListDueFlashcards", (*API).ListDueFlashcards),
		unary("ListQuizFlashcards", (*API).ListQuizFlashcards),
		unary("GetProgress", (*API).GetProgress),
		unary("GetLeaderboard", (*API).GetLeaderboard),
		unary("GetQuota", (*API).GetQuota),
	},
	Metadata: "quizflash/v1/study.proto",
}

type (
	UserRequest struct {
		Username string `json:"username"`
	}

	QuizRequest struct {
		Username string `json:"username"`
		QuizID   string `json:"quiz_id"`
	}

	CreateQuizRequest struct {
		Username   string            `json:"username"`
		Title      string            `json:"title"`
		Topic      string            `json:"topic"`
		Difficulty domain.Difficulty `json:"difficulty"`
		TotalMarks int               `json:"total_marks"`
		ExamStyle  bool              `json:"exam_style"`
		Questions  []domain.Question `json:"questions"`
	}

	AnswerRequest struct {
		Username   string `json:"username"`
		QuizID     string `json:"quiz_id"`
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
	}

	CreateFlashcardRequest struct {
		Username string `json:"username"`
		QuizID   string `json:"quiz_id"`
		Front    string `json:"front"`
		Back     string `json:"back"`
	}

	ReviewRequest struct {
		Username    string `json:"username"`
		FlashcardID string `json:"flashcard_id"`
		Rating      int    `json:"rating"`
	}

	ProgressRequest struct {
		Username string `json:"username"`
		Days     int    `json:"days"`
	}

	LeaderboardRequest struct {
		Username string `json:"username"`
		Date     string `json:"date"`
		Limit    int    `json:"limit"`
	}

	QuizResponse struct {
		Quiz domain.Quiz `json:"quiz"`
	}

	QuizzesResponse struct {
		Quizzes []QuizSummary `json:"quizzes"`
	}

	QuizSummary struct {
		ID            string            `json:"id"`
		Title         string            `json:"title"`
		Topic         string            `json:"topic"`
		Difficulty    domain.Difficulty `json:"difficulty"`
		Questions     int               `json:"questions"`
		Score         *int              `json:"score,omitempty"`
		HasFlashcards bool              `json:"has_flashcards"`
	}

	Empty struct{}

	// AttemptResponse never exposes answer keys before the attempt is completed.
	AttemptResponse struct {
		Status       attempt.Status `json:"status"`
		CurrentIndex int            `json:"current_index"`
		Answered     int            `json:"answered"`
		Total        int            `json:"total"`
		Changed      bool           `json:"changed"`
		Reason       string         `json:"reason,omitempty"`
		Current      *QuestionView  `json:"current,omitempty"`
		Answer       string         `json:"answer,omitempty"`
		Result       *domain.Quiz   `json:"result,omitempty"`
	}

	QuestionView struct {
		ID      string              `json:"id"`
		Text    string              `json:"text"`
		Type    domain.QuestionType `json:"type"`
		Choices []string            `json:"choices,omitempty"`
		Marks   int                 `json:"marks"`
	}

	FlashcardResponse struct {
		Flashcard domain.Flashcard `json:"flashcard"`
	}

	FlashcardsResponse struct {
		Flashcards []domain.Flashcard `json:"flashcards"`
	}

	ProgressResponse struct {
		Progress domain.Progress `json:"progress"`
	}

	LeaderboardResponse struct {
		Leaderboard domain.Leaderboard `json:"leaderboard"`
	}

	// QuotaResponse holds what is left of today's quotas, -1 for unlimited.
	QuotaResponse struct {
		Quiz       int `json:"quiz"`
		Flashcards int `json:"flashcards"`
	}
)

func (a *API) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*QuizResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	q, err := a.qs.CreateQuiz(ctx, quiz.CreateQuizRequest{
		Owner:      req.Username,
		Title:      req.Title,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		TotalMarks: req.TotalMarks,
		ExamStyle:  req.ExamStyle,
		Questions:  req.Questions,
	})
	if err != nil {
		return nil, err
	}

	return &QuizResponse{Quiz: *q}, nil
}

func (a *API) GetQuiz(ctx context.Context, req QuizRequest) (*QuizResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	q, err := a.qs.GetQuiz(ctx, quiz.GetQuizRequest{Owner: req.Username, QuizID: req.QuizID})
	if err != nil {
		return nil, err
	}

	if !q.Attempted() {
		hideAnswers(q)
	}

	return &QuizResponse{Quiz: *q}, nil
}

func (a *API) ListQuizzes(ctx context.Context, req UserRequest) (*QuizzesResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	quizzes, err := a.qs.ListQuizzes(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	return &QuizzesResponse{
		Quizzes: lo.Map(quizzes, func(q domain.Quiz, _ int) QuizSummary {
			return QuizSummary{
				ID:            q.ID,
				Title:         q.Title,
				Topic:         q.Topic,
				Difficulty:    q.Difficulty,
				Questions:     len(q.Questions),
				Score:         q.Score,
				HasFlashcards: q.HasFlashcards,
			}
		}),
	}, nil
}

func (a *API) DeleteQuiz(ctx context.Context, req QuizRequest) (*Empty, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	if err := a.qs.DeleteQuiz(ctx, quiz.GetQuizRequest{Owner: req.Username, QuizID: req.QuizID}); err != nil {
		return nil, err
	}

	return &Empty{}, nil
}

func (a *API) OpenAttempt(ctx context.Context, req QuizRequest) (*AttemptResponse, error) {
	return a.attempt(ctx, req, a.qs.OpenAttempt)
}

func (a *API) StartAttempt(ctx context.Context, req QuizRequest) (*AttemptResponse, error) {
	return a.attempt(ctx, req, a.qs.StartAttempt)
}

func (a *API) NextQuestion(ctx context.Context, req QuizRequest) (*AttemptResponse, error) {
	return a.attempt(ctx, req, a.qs.NextQuestion)
}

func (a *API) PreviousQuestion(ctx context.Context, req QuizRequest) (*AttemptResponse, error) {
	return a.attempt(ctx, req, a.qs.PreviousQuestion)
}

func (a *API) SubmitAttempt(ctx context.Context, req QuizRequest) (*AttemptResponse, error) {
	return a.attempt(ctx, req, a.qs.SubmitAttempt)
}

func (a *API) AnswerQuestion(ctx context.Context, req AnswerRequest) (*AttemptResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	resp, err := a.qs.AnswerQuestion(ctx, quiz.AnswerRequest{
		Owner:      req.Username,
		QuizID:     req.QuizID,
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
	})
	if err != nil {
		return nil, err
	}

	return toAttemptResponse(resp), nil
}

func (a *API) attempt(ctx context.Context, req QuizRequest, fn func(context.Context, quiz.AttemptRequest) (*quiz.AttemptResponse, error)) (*AttemptResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	resp, err := fn(ctx, quiz.AttemptRequest{Owner: req.Username, QuizID: req.QuizID})
	if err != nil {
		return nil, err
	}

	return toAttemptResponse(resp), nil
}

func (a *API) GenerateFlashcards(ctx context.Context, req QuizRequest) (*FlashcardsResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	cards, err := a.fs.GenerateForQuiz(ctx, flashcard.GenerateRequest{Owner: req.Username, QuizID: req.QuizID})
	if err != nil {
		return nil, err
	}

	return &FlashcardsResponse{Flashcards: cards}, nil
}

func (a *API) CreateFlashcard(ctx context.Context, req CreateFlashcardRequest) (*FlashcardResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	c, err := a.fs.CreateCard(ctx, flashcard.CreateCardRequest{
		Owner:  req.Username,
		QuizID: req.QuizID,
		Front:  req.Front,
		Back:   req.Back,
	})
	if err != nil {
		return nil, err
	}

	return &FlashcardResponse{Flashcard: *c}, nil
}

func (a *API) ReviewFlashcard(ctx context.Context, req ReviewRequest) (*FlashcardResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	c, err := a.fs.Review(ctx, flashcard.ReviewRequest{
		Owner:       req.Username,
		FlashcardID: req.FlashcardID,
		Rating:      req.Rating,
	})
	if err != nil {
		return nil, err
	}

	return &FlashcardResponse{Flashcard: *c}, nil
}

func (a *API) ListDueFlashcards(ctx context.Context, req UserRequest) (*FlashcardsResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	cards, err := a.fs.ListDue(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	return &FlashcardsResponse{Flashcards: cards}, nil
}

func (a *API) ListQuizFlashcards(ctx context.Context, req QuizRequest) (*FlashcardsResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	cards, err := a.fs.ListByQuiz(ctx, flashcard.GenerateRequest{Owner: req.Username, QuizID: req.QuizID})
	if err != nil {
		return nil, err
	}

	return &FlashcardsResponse{Flashcards: cards}, nil
}

func (a *API) GetProgress(ctx context.Context, req ProgressRequest) (*ProgressResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	p, err := a.ps.GetProgress(ctx, progress.GetProgressRequest{Owner: req.Username, Days: req.Days})
	if err != nil {
		return nil, err
	}

	return &ProgressResponse{Progress: *p}, nil
}

func (a *API) GetLeaderboard(ctx context.Context, req LeaderboardRequest) (*LeaderboardResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	l, err := a.ps.GetLeaderboard(ctx, progress.GetLeaderboardRequest{Date: req.Date, Limit: req.Limit})
	if err != nil {
		return nil, err
	}

	return &LeaderboardResponse{Leaderboard: *l}, nil
}

func (a *API) GetQuota(ctx context.Context, req UserRequest) (*QuotaResponse, error) {
	if err := requireUser(req.Username); err != nil {
		return nil, err
	}

	quizzes, err := a.qt.Remaining(ctx, req.Username, quota.KindQuiz)
	if err != nil {
		return nil, err
	}

	cards, err := a.qt.Remaining(ctx, req.Username, quota.KindFlashcards)
	if err != nil {
		return nil, err
	}

	return &QuotaResponse{Quiz: quizzes, Flashcards: cards}, nil
}

func toAttemptResponse(r *quiz.AttemptResponse) *AttemptResponse {
	a := r.Attempt
	answered, total := a.Progress()

	resp := &AttemptResponse{
		Status:       a.Status,
		CurrentIndex: a.CurrentIndex,
		Answered:     answered,
		Total:        total,
		Changed:      r.Changed,
		Reason:       r.Reason,
	}

	switch a.Status {
	case attempt.StatusIntro:
	case attempt.StatusActive:
		if q, ok := a.Current(); ok {
			resp.Current = &QuestionView{
				ID:      q.ID,
				Text:    q.Text,
				Type:    q.Type,
				Choices: q.Choices(),
				Marks:   q.Marks,
			}
			resp.Answer = a.Answers[q.ID]
		}
	case attempt.StatusCompleted:
		result := a.Quiz
		resp.Result = &result
	}

	return resp
}

func hideAnswers(q *domain.Quiz) {
	for i := range q.Questions {
		q.Questions[i].CorrectAnswer = nil
		q.Questions[i].Explanation = ""
	}
}

func requireUser(u string) error {
	if strings.TrimSpace(u) == "" {
		return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("username is required"))
	}
	return nil
}
