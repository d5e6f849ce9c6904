package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizflash/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	QuizCompleted struct {
		QuizID string `json:"quiz_id"`
		Title  string `json:"title"`
		Score  int    `json:"score"`
	}

	FlashcardsGenerated struct {
		QuizID string `json:"quiz_id"`
		Count  int    `json:"count"`
		Due    int    `json:"due"`
	}
)

func (a *API) PublishQuizCompleted(ctx context.Context, e domain.EventQuizCompleted) error {
	q := e.Quiz

	data := QuizCompleted{
		QuizID: q.ID,
		Title:  q.Title,
	}
	if q.Score != nil {
		data.Score = *q.Score
	}

	return a.publishNotification(ctx, q.Owner, e.Name(), data)
}

func (a *API) PublishFlashcardsGenerated(ctx context.Context, e domain.EventFlashcardsGenerated) error {
	data := FlashcardsGenerated{
		QuizID: e.QuizID,
		Count:  len(e.Flashcards),
	}
	for _, c := range e.Flashcards {
		if !c.NextReview.After(c.CreatedAt) {
			data.Due++
		}
	}

	// The owner's channel and the quiz channel are notified independently.
	var eg errgroup.Group
	eg.Go(func() error {
		return a.publishNotification(ctx, e.Owner, e.Name(), data)
	})
	eg.Go(func() error {
		return a.publish(ctx, fmt.Sprintf("%s:quiz:%s", a.prefix, e.QuizID), e.Name(), data)
	})

	return eg.Wait()
}

func (a *API) PublishProgressUpdated(ctx context.Context, e domain.EventProgressUpdated) error {
	return a.publishNotification(ctx, e.Progress.Owner, e.Name(), e.Progress)
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	return a.publish(ctx, fmt.Sprintf("%s:user:%s", a.prefix, user), event, data)
}

func (a *API) publish(ctx context.Context, channel, event string, data any) error {
	if a.redis == nil {
		return nil
	}

	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
