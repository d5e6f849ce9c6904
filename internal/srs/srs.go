// Package srs schedules flashcard reviews with a simplified SM-2.
package srs

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
)

type Rating int

const (
	RatingForgot Rating = 1
	RatingHard   Rating = 2
	RatingGood   Rating = 3
	RatingEasy   Rating = 4
)

const Day = 24 * time.Hour

// MaxInterval caps the days between reviews so NextReview stays representable.
const MaxInterval = 36500

var (
	InitialEase = decimal.RequireFromString("2.5")
	MinEase     = decimal.RequireFromString("1.3")
)

var ErrInvalidRating = stderrors.New("srs: invalid rating")

func init() {
	errors.Register(ErrInvalidRating, errors.CodeInvalidArgument)
}

func ParseRating(v int) (Rating, error) {
	r := Rating(v)
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return r, nil
}

func (r Rating) Validate() error {
	if r < RatingForgot || r > RatingEasy {
		return fmt.Errorf("%w: %d, want 1 to 4", ErrInvalidRating, int(r))
	}
	return nil
}

func (r Rating) String() string {
	switch r {
	case RatingForgot:
		return "forgot"
	case RatingHard:
		return "hard"
	case RatingGood:
		return "good"
	case RatingEasy:
		return "easy"
	}
	return fmt.Sprintf("rating(%d)", int(r))
}

// Seed returns card with the state of a never reviewed card, due at now.
func Seed(card domain.Flashcard, now time.Time) domain.Flashcard {
	card.Interval = 0
	card.Repetition = 0
	card.EaseFactor = InitialEase
	card.NextReview = now
	return card
}

// Schedule returns the card as it should be after a review rated r at now.
// card itself is left as is.
//
// Forgot resets the interval to one day and keeps the ease. Any other rating
// grows the interval 0 -> 1 -> 3 -> ceil(interval * ease) and then adjusts
// the ease, never below MinEase. The interval never exceeds MaxInterval.
func Schedule(card domain.Flashcard, r Rating, now time.Time) (domain.Flashcard, error) {
	if err := r.Validate(); err != nil {
		return card, err
	}

	ease := card.EaseFactor
	if ease.IsZero() {
		ease = InitialEase
	}

	next := card
	if r == RatingForgot {
		next.Interval = 1
		next.EaseFactor = ease
	} else {
		next.Interval = nextInterval(card.Interval, ease)
		next.EaseFactor = nextEase(ease, r)
	}

	next.Repetition = card.Repetition + 1
	next.NextReview = now.Add(time.Duration(next.Interval) * Day)
	return next, nil
}

func nextInterval(interval int, ease decimal.Decimal) int {
	switch {
	case interval <= 0:
		return 1
	case interval == 1:
		return 3
	case interval >= MaxInterval:
		return MaxInterval
	default:
		return min(MaxInterval, int(decimal.NewFromInt(int64(interval)).Mul(ease).Ceil().IntPart()))
	}
}

// nextEase is ease + (0.1 - d*(0.08 + d*0.02)) with d = 4 - r.
func nextEase(ease decimal.Decimal, r Rating) decimal.Decimal {
	d := decimal.NewFromInt(int64(RatingEasy - r))
	delta := decimal.RequireFromString("0.1").Sub(
		d.Mul(decimal.RequireFromString("0.08").Add(d.Mul(decimal.RequireFromString("0.02")))),
	)
	return decimal.Max(MinEase, ease.Add(delta))
}

func IsDue(card domain.Flashcard, now time.Time) bool {
	return !card.NextReview.After(now)
}

// Due returns every card due at now in random order.
func Due(cards []domain.Flashcard, now time.Time) []domain.Flashcard {
	due := lo.Filter(cards, func(c domain.Flashcard, _ int) bool {
		return IsDue(c, now)
	})
	return lo.Shuffle(due)
}
