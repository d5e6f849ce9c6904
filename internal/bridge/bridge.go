// Package bridge turns the questions of a quiz into a batch of flashcards.
package bridge

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/srs"
)

var (
	ErrAlreadyGenerated = stderrors.New("bridge: flashcards already generated for quiz")
	ErrEmptyCard        = stderrors.New("bridge: flashcard front and back must not be empty")
)

func init() {
	errors.Register(ErrAlreadyGenerated, errors.CodeAlreadyExists)
	errors.Register(ErrEmptyCard, errors.CodeInvalidArgument)
}

// IDFunc generates flashcard ids.
type IDFunc func() (string, error)

// UUIDv7 is the default IDFunc.
func UUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Generate builds one flashcard per question, in question order, all due at
// now. A quiz that already has flashcards is rejected.
func Generate(q domain.Quiz, now time.Time, newID IDFunc) ([]domain.Flashcard, error) {
	if q.HasFlashcards {
		return nil, fmt.Errorf("%w: quiz=%s", ErrAlreadyGenerated, q.ID)
	}
	if newID == nil {
		newID = UUIDv7
	}

	cards := make([]domain.Flashcard, 0, len(q.Questions))
	for _, qq := range q.Questions {
		id, err := newID()
		if err != nil {
			return nil, fmt.Errorf("generate flashcard ID: %w", err)
		}

		cards = append(cards, srs.Seed(domain.Flashcard{
			ID:        id,
			Owner:     q.Owner,
			QuizID:    q.ID,
			Front:     qq.Text,
			Back:      Back(qq),
			CreatedAt: now,
		}, now))
	}

	return cards, nil
}

// Back is the answer side of the card made from q.
func Back(q domain.Question) string {
	explanation := q.Explanation
	if strings.TrimSpace(explanation) == "" {
		explanation = domain.DefaultExplanation
	}
	return q.CorrectAnswer.String() + "\n\n" + explanation
}

// NewCard creates a single flashcard outside of a quiz batch. quizID may be empty.
func NewCard(owner, quizID, front, back string, now time.Time, newID IDFunc) (domain.Flashcard, error) {
	if strings.TrimSpace(front) == "" || strings.TrimSpace(back) == "" {
		return domain.Flashcard{}, ErrEmptyCard
	}
	if newID == nil {
		newID = UUIDv7
	}

	id, err := newID()
	if err != nil {
		return domain.Flashcard{}, fmt.Errorf("generate flashcard ID: %w", err)
	}

	return srs.Seed(domain.Flashcard{
		ID:        id,
		Owner:     owner,
		QuizID:    quizID,
		Front:     front,
		Back:      back,
		CreatedAt: now,
	}, now), nil
}
