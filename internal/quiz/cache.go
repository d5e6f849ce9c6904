package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizflash/internal/attempt"
)

const defaultAttemptTTL = 24 * time.Hour

// attemptCache keeps in-flight attempts between requests. An attempt that is
// never submitted simply expires.
type attemptCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func (c *attemptCache) get(ctx context.Context, owner, quizID string) (attempt.Attempt, bool, error) {
	b, err := c.redis.GetEx(ctx, c.key(owner, quizID), c.ttl).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return attempt.Attempt{}, false, nil
	}
	if err != nil {
		return attempt.Attempt{}, false, fmt.Errorf("get attempt: %w", err)
	}

	var a attempt.Attempt
	if err := json.Unmarshal(b, &a); err != nil {
		return attempt.Attempt{}, false, fmt.Errorf("unmarshal attempt: %w", err)
	}

	return a, true, nil
}

func (c *attemptCache) put(ctx context.Context, owner string, a attempt.Attempt) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	if err := c.redis.Set(ctx, c.key(owner, a.Quiz.ID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("put attempt: %w", err)
	}

	return nil
}

func (c *attemptCache) drop(ctx context.Context, owner, quizID string) error {
	if err := c.redis.Del(ctx, c.key(owner, quizID)).Err(); err != nil {
		return fmt.Errorf("drop attempt: %w", err)
	}
	return nil
}

func (c *attemptCache) key(owner, quizID string) string {
	return fmt.Sprintf("%s:attempt:%s:%s", c.prefix, owner, quizID)
}
