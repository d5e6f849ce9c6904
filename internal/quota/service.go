// Package quota enforces per-user daily limits on generation requests.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizflash/internal/errors"
)

type Kind string

const (
	KindQuiz       Kind = "quiz"
	KindFlashcards Kind = "flashcards"
)

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
	// Limits per kind and day. A kind without a positive limit is unlimited.
	Limits  map[Kind]int
	NowFunc func() time.Time
}

type Service struct {
	redis  redis.UniversalClient
	prefix string
	limits map[Kind]int
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		redis:  c.Redis,
		prefix: c.Prefix,
		limits: c.Limits,
		now:    c.NowFunc,
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Consume takes one unit of the user's daily quota for kind. It fails with
// CodeResourceExhausted once the limit for the current UTC day is used up.
func (s *Service) Consume(ctx context.Context, user string, kind Kind) error {
	limit := s.limits[kind]
	if limit <= 0 {
		return nil
	}

	now := s.now().UTC()
	key := s.key(user, kind, now)

	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireAt(ctx, key, nextDay(now))
		return nil
	})
	if err != nil {
		return fmt.Errorf("quota: consume %s: %w", kind, err)
	}

	if incr.Val() > int64(limit) {
		if err := s.redis.Decr(ctx, key).Err(); err != nil {
			return fmt.Errorf("quota: release %s: %w", kind, err)
		}
		return errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("daily %s quota exhausted: user=%s, limit=%d", kind, user, limit))
	}

	return nil
}

// Release gives back a unit taken by Consume when the work it paid for was not
// done. Counters never go below zero.
func (s *Service) Release(ctx context.Context, user string, kind Kind) error {
	if s.limits[kind] <= 0 {
		return nil
	}

	key := s.key(user, kind, s.now().UTC())
	left, err := s.redis.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("quota: release %s: %w", kind, err)
	}
	if left < 0 {
		if err := s.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("quota: release %s: %w", kind, err)
		}
	}

	return nil
}

// Remaining returns how many units of kind the user may still consume today,
// or -1 when kind is unlimited.
func (s *Service) Remaining(ctx context.Context, user string, kind Kind) (int, error) {
	limit := s.limits[kind]
	if limit <= 0 {
		return -1, nil
	}

	used, err := s.redis.Get(ctx, s.key(user, kind, s.now().UTC())).Int()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("quota: remaining %s: %w", kind, err)
	}

	return max(limit-used, 0), nil
}

func (s *Service) key(user string, kind Kind, day time.Time) string {
	return fmt.Sprintf("%s:quota:%s:%s:%s", s.prefix, kind, user, day.Format(time.DateOnly))
}

func nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
