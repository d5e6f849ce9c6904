// Package progress tracks review activity per user and day in Redis.
package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/event"
	"github.com/victornm/quizflash/internal/srs"
)

const (
	publishInterval = 200 * time.Millisecond
	dateLayout      = time.DateOnly

	defaultDays = 7
	maxDays     = 90

	// Daily boards are only kept long enough to be looked at.
	boardTTL = 8 * 24 * time.Hour
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	NowFunc  func() time.Time
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
		now:    c.NowFunc,
	}
	if s.now == nil {
		s.now = time.Now
	}

	event.On(s.eb, s.RecordReview)

	return s
}

// RecordReview counts the review for its owner's day and the day's board.
func (s *Service) RecordReview(ctx context.Context, e domain.EventFlashcardReviewed) error {
	owner := e.Flashcard.Owner
	date := e.ReviewedAt.UTC().Format(dateLayout)

	rating := srs.Rating(e.Rating).String()

	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, s.daysKey(owner), date, 1)
		p.HIncrBy(ctx, s.ratingsKey(owner), rating, 1)
		p.ZIncrBy(ctx, s.boardKey(date), 1, owner)
		p.Expire(ctx, s.boardKey(date), boardTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record review: %w", err)
	}

	return s.schedulePublishProgress(ctx, owner, e.ReviewedAt)
}

// schedulePublishProgress publishes at most one progress update per owner and
// publish interval, reviews in a burst are folded into the first one.
func (s *Service) schedulePublishProgress(ctx context.Context, owner string, at time.Time) error {
	ok, err := s.redis.SetNX(ctx, s.timeKey(owner), at.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	p, err := s.GetProgress(ctx, GetProgressRequest{Owner: owner})
	if err != nil {
		return fmt.Errorf("get progress failed: owner=%s: %w", owner, err)
	}

	s.eb.Publish(ctx, domain.EventProgressUpdated{
		Progress: *p,
	})

	return nil
}

type GetProgressRequest struct {
	Owner string
	// Days to report, counting back from today. Defaults to a week.
	Days int
}

// GetProgress returns the owner's review counts for the requested days,
// their rating breakdown and current streak.
func (s *Service) GetProgress(ctx context.Context, req GetProgressRequest) (*domain.Progress, error) {
	days := req.Days
	switch {
	case days == 0:
		days = defaultDays
	case days < 0 || days > maxDays:
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("days must be between 1 and %d", maxDays))
	}

	var (
		daysCmd    *redis.MapStringStringCmd
		ratingsCmd *redis.MapStringStringCmd
	)
	_, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		daysCmd = p.HGetAll(ctx, s.daysKey(req.Owner))
		ratingsCmd = p.HGetAll(ctx, s.ratingsKey(req.Owner))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	counts := atoiValues(daysCmd.Val())
	today := s.now().UTC()

	p := &domain.Progress{
		Owner:   req.Owner,
		Ratings: atoiValues(ratingsCmd.Val()),
		Days: lo.Times(days, func(i int) domain.DayReviews {
			d := today.AddDate(0, 0, i-days+1).Format(dateLayout)
			return domain.DayReviews{Date: d, Reviews: counts[d]}
		}),
		Streak: streak(counts, today),
	}

	return p, nil
}

type GetLeaderboardRequest struct {
	// Date in YYYY-MM-DD, defaults to today (UTC).
	Date  string
	Limit int
}

// GetLeaderboard returns the users with the most reviews on a day.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	date := req.Date
	if date == "" {
		date = s.now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid date %q", date), errors.WithCause(err))
	}

	stop := int64(-1)
	if req.Limit > 0 {
		stop = int64(req.Limit) - 1
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.boardKey(date), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	return &domain.Leaderboard{
		Date: date,
		Entries: lo.Map(res, func(z redis.Z, _ int) domain.LeaderboardEntry {
			return domain.LeaderboardEntry{
				Username: z.Member.(string),
				Reviews:  int(z.Score),
			}
		}),
	}, nil
}

func streak(counts map[string]int, today time.Time) int {
	d := today
	if counts[d.Format(dateLayout)] == 0 {
		d = d.AddDate(0, 0, -1)
	}

	n := 0
	for counts[d.Format(dateLayout)] > 0 {
		n++
		d = d.AddDate(0, 0, -1)
	}
	return n
}

func atoiValues(m map[string]string) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out
}

func (s *Service) daysKey(owner string) string {
	return fmt.Sprintf("%s:progress:%s:days", s.prefix, owner)
}

func (s *Service) ratingsKey(owner string) string {
	return fmt.Sprintf("%s:progress:%s:ratings", s.prefix, owner)
}

func (s *Service) timeKey(owner string) string {
	return fmt.Sprintf("%s:progress:%s:time", s.prefix, owner)
}

func (s *Service) boardKey(date string) string {
	return fmt.Sprintf("%s:progress:board:%s", s.prefix, date)
}
