package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/event"
	"github.com/victornm/quizflash/internal/progress"
	"github.com/victornm/quizflash/internal/srs"
)

var today = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func reviewed(owner string, r srs.Rating, at time.Time) domain.EventFlashcardReviewed {
	return domain.EventFlashcardReviewed{
		Flashcard:  domain.Flashcard{ID: "c1", Owner: owner},
		Rating:     int(r),
		ReviewedAt: at,
	}
}

func TestService_GetProgress(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	for _, e := range []domain.EventFlashcardReviewed{
		reviewed("u1", srs.RatingGood, today),
		reviewed("u1", srs.RatingEasy, today),
		reviewed("u1", srs.RatingForgot, today.AddDate(0, 0, -1)),
		reviewed("u1", srs.RatingGood, today.AddDate(0, 0, -3)),
		reviewed("u2", srs.RatingGood, today),
	} {
		require.NoError(t, s.RecordReview(ctx, e))
	}

	p, err := s.GetProgress(ctx, progress.GetProgressRequest{Owner: "u1", Days: 4})
	require.NoError(t, err)

	require.Equal(t, []domain.DayReviews{
		{Date: "2026-03-07", Reviews: 1},
		{Date: "2026-03-08", Reviews: 0},
		{Date: "2026-03-09", Reviews: 1},
		{Date: "2026-03-10", Reviews: 2},
	}, p.Days)
	require.Equal(t, map[string]int{"good": 2, "easy": 1, "forgot": 1}, p.Ratings)
	require.Equal(t, 2, p.Streak)
}

func TestService_Streak(t *testing.T) {
	tests := map[string]struct {
		reviewDays []int
		want       int
	}{
		"no reviews":                   {reviewDays: nil, want: 0},
		"only today":                   {reviewDays: []int{0}, want: 1},
		"yesterday keeps streak alive": {reviewDays: []int{-1, -2}, want: 2},
		"gap breaks the streak":        {reviewDays: []int{0, -2, -3}, want: 1},
		"two days ago does not count":  {reviewDays: []int{-2}, want: 0},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := makeService(t)

			for _, d := range tt.reviewDays {
				require.NoError(t, s.RecordReview(ctx, reviewed("u1", srs.RatingGood, today.AddDate(0, 0, d))))
			}

			p, err := s.GetProgress(ctx, progress.GetProgressRequest{Owner: "u1"})
			require.NoError(t, err)
			require.Len(t, p.Days, 7)
			require.Equal(t, tt.want, p.Streak)
		})
	}
}

func TestService_GetProgressInvalidDays(t *testing.T) {
	s := makeService(t)

	_, err := s.GetProgress(context.Background(), progress.GetProgressRequest{Owner: "u1", Days: 1000})
	require.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestService_GetLeaderboard(t *testing.T) {
	ctx := context.Background()
	s := makeService(t)

	for _, e := range []domain.EventFlashcardReviewed{
		reviewed("u1", srs.RatingGood, today),
		reviewed("u2", srs.RatingGood, today),
		reviewed("u2", srs.RatingHard, today),
		reviewed("u3", srs.RatingGood, today.AddDate(0, 0, -1)),
	} {
		require.NoError(t, s.RecordReview(ctx, e))
	}

	l, err := s.GetLeaderboard(ctx, progress.GetLeaderboardRequest{})
	require.NoError(t, err)
	require.Equal(t, &domain.Leaderboard{
		Date: "2026-03-10",
		Entries: []domain.LeaderboardEntry{
			{Username: "u2", Reviews: 2},
			{Username: "u1", Reviews: 1},
		},
	}, l)

	l, err = s.GetLeaderboard(ctx, progress.GetLeaderboardRequest{Date: "2026-03-10", Limit: 1})
	require.NoError(t, err)
	require.Len(t, l.Entries, 1)

	_, err = s.GetLeaderboard(ctx, progress.GetLeaderboardRequest{Date: "yesterday"})
	require.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestService_PublishProgressUpdated(t *testing.T) {
	type (
		inputs struct {
			receivedEvents []domain.EventFlashcardReviewed
		}

		outputs struct {
			publishedEvents []domain.EventProgressUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish progress.updated after a review": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventFlashcardReviewed{
						reviewed("u1", srs.RatingGood, today),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 progress updated event")
				require.Equal(t, "u1", out.publishedEvents[0].Progress.Owner)
				require.Equal(t, 1, out.publishedEvents[0].Progress.Streak)
			},
		},

		"should publish once per user within the publish interval": {
			arrange: func() inputs {
				return inputs{
					receivedEvents: []domain.EventFlashcardReviewed{
						reviewed("u1", srs.RatingGood, today),
						reviewed("u1", srs.RatingHard, today),
						reviewed("u2", srs.RatingGood, today),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 1 event per user")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			event.On(eb, func(_ context.Context, e domain.EventProgressUpdated) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e)
				mu.Unlock()
				return nil
			})

			s := makeService(t, withEventBus(eb))

			for _, e := range in.receivedEvents {
				require.NoError(t, s.RecordReview(context.Background(), e))
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

type option func(*progress.Config)

func withEventBus(eb *event.Bus) option {
	return func(c *progress.Config) { c.EventBus = eb }
}

func makeService(t *testing.T, opts ...option) *progress.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := progress.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "test",
		NowFunc:  func() time.Time { return today },
	}

	for _, opt := range opts {
		opt(&c)
	}

	return progress.NewService(c)
}
