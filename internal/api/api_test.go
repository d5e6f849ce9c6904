package api_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/victornm/quizflash/internal/api"
	"github.com/victornm/quizflash/internal/attempt"
	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/event"
	"github.com/victornm/quizflash/internal/flashcard"
	"github.com/victornm/quizflash/internal/progress"
	"github.com/victornm/quizflash/internal/quiz"
	"github.com/victornm/quizflash/internal/quota"
	"github.com/victornm/quizflash/internal/storage/memory"
)

func TestAPI_QuizToFlashcards(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env := setup(t)
	notifications := subscribe(t, env.rc, "test:pubsub:user:u1")

	created, err := api.Invoke[api.CreateQuizRequest, api.QuizResponse](ctx, env.cc, "CreateQuiz", api.CreateQuizRequest{
		Username: "u1",
		Title:    "Europe",
		Questions: []domain.Question{
			{ID: "q1", Text: "Capital of France?", Type: domain.QuestionTypeMCQ, Options: []string{"Paris", "Rome", "Oslo", "Bern"}, CorrectAnswer: domain.SingleAnswer("Paris"), Explanation: "Seine."},
			{ID: "q2", Text: "Rome is in Spain", Type: domain.QuestionTypeTrueFalse, CorrectAnswer: domain.SingleAnswer("False")},
		},
	})
	require.NoError(t, err)
	quizID := created.Quiz.ID

	// Answers stay hidden until the quiz is attempted.
	got, err := api.Invoke[api.QuizRequest, api.QuizResponse](ctx, env.cc, "GetQuiz", api.QuizRequest{Username: "u1", QuizID: quizID})
	require.NoError(t, err)
	require.Empty(t, got.Quiz.Questions[0].CorrectAnswer)
	require.Empty(t, got.Quiz.Questions[0].Explanation)

	call := func(method string, req any) *api.AttemptResponse {
		t.Helper()
		resp, err := api.Invoke[any, api.AttemptResponse](ctx, env.cc, method, req)
		require.NoError(t, err)
		return resp
	}
	ref := api.QuizRequest{Username: "u1", QuizID: quizID}

	resp := call("StartAttempt", ref)
	require.Equal(t, attempt.StatusActive, resp.Status)
	require.Equal(t, "q1", resp.Current.ID)
	require.Equal(t, []string{"Paris", "Rome", "Oslo", "Bern"}, resp.Current.Choices)

	resp = call("NextQuestion", ref)
	require.False(t, resp.Changed)
	require.NotEmpty(t, resp.Reason)

	resp = call("AnswerQuestion", api.AnswerRequest{Username: "u1", QuizID: quizID, QuestionID: "q1", Answer: "Paris"})
	require.Equal(t, "Paris", resp.Answer)
	require.Equal(t, 1, resp.Answered)
	require.Equal(t, 2, resp.Total)

	resp = call("NextQuestion", ref)
	require.True(t, resp.Changed)
	require.Equal(t, "q2", resp.Current.ID)
	require.Equal(t, []string{"True", "False"}, resp.Current.Choices)

	call("AnswerQuestion", api.AnswerRequest{Username: "u1", QuizID: quizID, QuestionID: "q2", Answer: "False"})

	resp = call("SubmitAttempt", ref)
	require.True(t, resp.Changed)
	require.Equal(t, attempt.StatusCompleted, resp.Status)
	require.Nil(t, resp.Current)
	require.NotNil(t, resp.Result)
	require.Equal(t, 100, *resp.Result.Score)
	require.True(t, resp.Result.Questions[0].IsCorrect)

	env.eb.Stop()

	cards, err := api.Invoke[api.QuizRequest, api.FlashcardsResponse](ctx, env.cc, "ListQuizFlashcards", ref)
	require.NoError(t, err)
	require.Len(t, cards.Flashcards, 2)

	due, err := api.Invoke[api.UserRequest, api.FlashcardsResponse](ctx, env.cc, "ListDueFlashcards", api.UserRequest{Username: "u1"})
	require.NoError(t, err)
	require.Len(t, due.Flashcards, 2)

	reviewed, err := api.Invoke[api.ReviewRequest, api.FlashcardResponse](ctx, env.cc, "ReviewFlashcard", api.ReviewRequest{
		Username:    "u1",
		FlashcardID: cards.Flashcards[0].ID,
		Rating:      4,
	})
	require.NoError(t, err)
	require.Equal(t, 1, reviewed.Flashcard.Interval)
	require.Equal(t, "2.6", reviewed.Flashcard.EaseFactor.String())

	_, err = api.Invoke[api.QuizRequest, api.FlashcardsResponse](ctx, env.cc, "GenerateFlashcards", ref)
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	env.eb.Stop()

	p, err := api.Invoke[api.ProgressRequest, api.ProgressResponse](ctx, env.cc, "GetProgress", api.ProgressRequest{Username: "u1", Days: 1})
	require.NoError(t, err)
	require.Len(t, p.Progress.Days, 1)
	require.Equal(t, 1, p.Progress.Days[0].Reviews)
	require.Equal(t, map[string]int{"easy": 1}, p.Progress.Ratings)
	require.Equal(t, 1, p.Progress.Streak)

	board, err := api.Invoke[api.LeaderboardRequest, api.LeaderboardResponse](ctx, env.cc, "GetLeaderboard", api.LeaderboardRequest{Username: "u1"})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{Username: "u1", Reviews: 1}}, board.Leaderboard.Entries)

	events := map[string]json.RawMessage{}
	for len(events) < 3 {
		select {
		case msg := <-notifications:
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
			events[n.Event] = n.Data
		case <-ctx.Done():
			t.Fatalf("notifications: got %d, want 3", len(events))
		}
	}

	var completed api.QuizCompleted
	require.NoError(t, json.Unmarshal(events[domain.EventNameQuizCompleted], &completed))
	require.Equal(t, 100, completed.Score)

	var generated api.FlashcardsGenerated
	require.NoError(t, json.Unmarshal(events[domain.EventNameFlashcardsGenerated], &generated))
	require.Equal(t, 2, generated.Count)
	require.Equal(t, 2, generated.Due)

	var updated domain.Progress
	require.NoError(t, json.Unmarshal(events[domain.EventNameProgressUpdated], &updated))
	require.Equal(t, "u1", updated.Owner)
}

func TestAPI_Errors(t *testing.T) {
	tests := map[string]struct {
		method string
		req    any
		code   codes.Code
	}{
		"missing username": {
			method: "ListQuizzes",
			req:    api.UserRequest{},
			code:   codes.Unauthenticated,
		},
		"unknown quiz": {
			method: "GetQuiz",
			req:    api.QuizRequest{Username: "u1", QuizID: "nope"},
			code:   codes.NotFound,
		},
		"invalid quiz": {
			method: "CreateQuiz",
			req:    api.CreateQuizRequest{Username: "u1", Title: "x", Difficulty: "Impossible"},
			code:   codes.InvalidArgument,
		},
		"malformed request": {
			method: "ReviewFlashcard",
			req:    map[string]any{"username": "u1", "rating": "good"},
			code:   codes.InvalidArgument,
		},
		"invalid rating": {
			method: "ReviewFlashcard",
			req:    api.ReviewRequest{Username: "u1", FlashcardID: "c1", Rating: 9},
			code:   codes.InvalidArgument,
		},
		"empty manual card": {
			method: "CreateFlashcard",
			req:    api.CreateFlashcardRequest{Username: "u1", Front: " ", Back: "x"},
			code:   codes.InvalidArgument,
		},
	}

	env := setup(t)

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := api.Invoke[any, map[string]any](context.Background(), env.cc, tt.method, tt.req)
			require.Equal(t, tt.code, status.Code(err), err)
		})
	}
}

func TestAPI_ListQuizzes(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	for _, title := range []string{"A", "B"} {
		_, err := api.Invoke[api.CreateQuizRequest, api.QuizResponse](ctx, env.cc, "CreateQuiz", api.CreateQuizRequest{
			Username: "u1",
			Title:    title,
			Questions: []domain.Question{
				{Text: "?", Type: domain.QuestionTypeShortAnswer, CorrectAnswer: domain.SingleAnswer("x")},
			},
		})
		require.NoError(t, err)
	}

	list, err := api.Invoke[api.UserRequest, api.QuizzesResponse](ctx, env.cc, "ListQuizzes", api.UserRequest{Username: "u1"})
	require.NoError(t, err)
	require.Len(t, list.Quizzes, 2)
	require.Equal(t, 1, list.Quizzes[0].Questions)

	_, err = api.Invoke[api.QuizRequest, api.Empty](ctx, env.cc, "DeleteQuiz", api.QuizRequest{Username: "u1", QuizID: list.Quizzes[0].ID})
	require.NoError(t, err)

	list, err = api.Invoke[api.UserRequest, api.QuizzesResponse](ctx, env.cc, "ListQuizzes", api.UserRequest{Username: "u1"})
	require.NoError(t, err)
	require.Len(t, list.Quizzes, 1)

	other, err := api.Invoke[api.UserRequest, api.QuizzesResponse](ctx, env.cc, "ListQuizzes", api.UserRequest{Username: "u2"})
	require.NoError(t, err)
	require.Empty(t, other.Quizzes)
}

func TestAPI_GetQuota(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	left, err := api.Invoke[api.UserRequest, api.QuotaResponse](ctx, env.cc, "GetQuota", api.UserRequest{Username: "u1"})
	require.NoError(t, err)
	require.Equal(t, 5, left.Quiz)
	require.Equal(t, -1, left.Flashcards)

	_, err = api.Invoke[api.CreateQuizRequest, api.QuizResponse](ctx, env.cc, "CreateQuiz", api.CreateQuizRequest{
		Username: "u1",
		Title:    "A",
		Questions: []domain.Question{
			{Text: "?", Type: domain.QuestionTypeShortAnswer, CorrectAnswer: domain.SingleAnswer("x")},
		},
	})
	require.NoError(t, err)

	left, err = api.Invoke[api.UserRequest, api.QuotaResponse](ctx, env.cc, "GetQuota", api.UserRequest{Username: "u1"})
	require.NoError(t, err)
	require.Equal(t, 4, left.Quiz)

	_, err = api.Invoke[api.UserRequest, api.QuotaResponse](ctx, env.cc, "GetQuota", api.UserRequest{Username: " "})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

type testEnv struct {
	cc *grpc.ClientConn
	eb *event.Bus
	rc redis.UniversalClient
}

func setup(t *testing.T) testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { rc.Close() })

	var (
		eb    = event.NewBus()
		store = memory.NewStore()
		qt    = quota.NewService(quota.Config{Redis: rc, Prefix: "test", Limits: map[quota.Kind]int{quota.KindQuiz: 5}})
		gs    = grpc.NewServer()
	)

	api.New(api.Config{
		GRPC:     gs,
		EventBus: eb,
		Quiz: quiz.NewService(quiz.Config{
			Repo:     store,
			Quota:    qt,
			EventBus: eb,
			Redis:    rc,
			Prefix:   "test",
		}),
		Flashcard: flashcard.NewService(flashcard.Config{
			Repo:     store,
			Quota:    qt,
			EventBus: eb,
		}),
		Progress: progress.NewService(progress.Config{
			EventBus: eb,
			Redis:    rc,
			Prefix:   "test",
		}),
		Quota:        qt,
		Redis:        rc,
		PubsubPrefix: "test:pubsub",
	})

	lis := bufconn.Listen(1 << 20)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { cc.Close() })

	return testEnv{cc: cc, eb: eb, rc: rc}
}

func subscribe(t *testing.T, rc redis.UniversalClient, channel string) <-chan *redis.Message {
	t.Helper()

	sub := rc.Subscribe(context.Background(), channel)
	t.Cleanup(func() { sub.Close() })

	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	return sub.Channel()
}
