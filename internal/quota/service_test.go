package quota_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/quota"
)

func TestService_Consume(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	s, _ := makeService(t, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Consume(ctx, "u1", quota.KindQuiz))
	}

	err := s.Consume(ctx, "u1", quota.KindQuiz)
	require.Equal(t, errors.CodeResourceExhausted, errors.CodeOf(err))

	left, err := s.Remaining(ctx, "u1", quota.KindQuiz)
	require.NoError(t, err)
	require.Equal(t, 0, left)

	// Other users and kinds are counted separately.
	require.NoError(t, s.Consume(ctx, "u2", quota.KindQuiz))
	require.NoError(t, s.Consume(ctx, "u1", quota.KindFlashcards))
}

func TestService_ResetsNextDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	s, mr := makeService(t, func() time.Time { return now })

	require.NoError(t, s.Consume(ctx, "u1", quota.KindQuiz))
	require.NoError(t, s.Consume(ctx, "u1", quota.KindQuiz))
	require.Error(t, s.Consume(ctx, "u1", quota.KindQuiz))

	mr.FastForward(2 * time.Hour)
	now = now.Add(2 * time.Hour)

	require.NoError(t, s.Consume(ctx, "u1", quota.KindQuiz))
	left, err := s.Remaining(ctx, "u1", quota.KindQuiz)
	require.NoError(t, err)
	require.Equal(t, 1, left)
}

func TestService_Release(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, _ := makeService(t, func() time.Time { return now })

	require.NoError(t, s.Consume(ctx, "u1", quota.KindQuiz))
	require.NoError(t, s.Consume(ctx, "u1", quota.KindQuiz))
	require.NoError(t, s.Release(ctx, "u1", quota.KindQuiz))

	left, err := s.Remaining(ctx, "u1", quota.KindQuiz)
	require.NoError(t, err)
	require.Equal(t, 1, left)

	require.NoError(t, s.Consume(ctx, "u1", quota.KindQuiz))
	require.Error(t, s.Consume(ctx, "u1", quota.KindQuiz))

	// Releasing more than was consumed does not raise the limit.
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Release(ctx, "u2", quota.KindQuiz))
	}
	left, err = s.Remaining(ctx, "u2", quota.KindQuiz)
	require.NoError(t, err)
	require.Equal(t, 2, left)

	require.NoError(t, s.Release(ctx, "u1", "export"))
}

func TestService_Unlimited(t *testing.T) {
	s, _ := makeService(t, nil)

	left, err := s.Remaining(context.Background(), "u1", "export")
	require.NoError(t, err)
	require.Equal(t, -1, left)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Consume(context.Background(), "u1", "export"))
	}
}

func makeService(t *testing.T, now func() time.Time) (*quota.Service, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	t.Cleanup(func() { rc.Close() })

	if now != nil {
		mr.SetTime(now())
	}

	return quota.NewService(quota.Config{
		Redis:   rc,
		Prefix:  "test",
		Limits:  map[quota.Kind]int{quota.KindQuiz: 2, quota.KindFlashcards: 3},
		NowFunc: now,
	}), mr
}
