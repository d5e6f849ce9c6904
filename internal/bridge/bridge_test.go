package bridge_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizflash/internal/bridge"
	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
	"github.com/victornm/quizflash/internal/srs"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestGenerate(t *testing.T) {
	q := domain.Quiz{
		ID:    "quiz-1",
		Owner: "u1",
		Questions: []domain.Question{
			{ID: "q1", Text: "Capital of France?", Type: domain.QuestionTypeMCQ, CorrectAnswer: domain.SingleAnswer("Paris"), Explanation: "Paris is the capital."},
			{ID: "q2", Text: "Sky colour?", Type: domain.QuestionTypeShortAnswer, CorrectAnswer: domain.SingleAnswer("Blue")},
			{ID: "q3", Text: "Primary colours?", Type: domain.QuestionTypeMCQ, CorrectAnswer: domain.AnswerKey{"Red", "Blue"}, Explanation: "RGB"},
		},
	}

	cards, err := bridge.Generate(q, now, sequentialIDs())
	require.NoError(t, err)
	require.Len(t, cards, 3)

	require.Equal(t, "card-1", cards[0].ID)
	require.Equal(t, "Capital of France?", cards[0].Front)
	require.Equal(t, "Paris\n\nParis is the capital.", cards[0].Back)
	require.Equal(t, "Blue\n\n"+domain.DefaultExplanation, cards[1].Back)
	require.Equal(t, "Red, Blue\n\nRGB", cards[2].Back)

	for _, c := range cards {
		require.Equal(t, "quiz-1", c.QuizID)
		require.Equal(t, "u1", c.Owner)
		require.Equal(t, 0, c.Interval)
		require.Equal(t, 0, c.Repetition)
		require.True(t, srs.InitialEase.Equal(c.EaseFactor))
		require.True(t, srs.IsDue(c, now))
	}
}

func TestGenerate_AlreadyGenerated(t *testing.T) {
	q := domain.Quiz{ID: "quiz-1", HasFlashcards: true, Questions: []domain.Question{{ID: "q1", Text: "t"}}}

	cards, err := bridge.Generate(q, now, nil)
	require.ErrorIs(t, err, bridge.ErrAlreadyGenerated)
	require.Equal(t, errors.CodeAlreadyExists, errors.CodeOf(err))
	require.Nil(t, cards)
}

func TestGenerate_DefaultIDs(t *testing.T) {
	q := domain.Quiz{ID: "quiz-1", Questions: []domain.Question{{ID: "q1", Text: "t", CorrectAnswer: domain.SingleAnswer("a")}}}

	cards, err := bridge.Generate(q, now, nil)
	require.NoError(t, err)

	id, err := uuid.Parse(cards[0].ID)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), id.Version())
}

func TestNewCard(t *testing.T) {
	c, err := bridge.NewCard("u1", "", "front", "back", now, sequentialIDs())
	require.NoError(t, err)
	require.Equal(t, "card-1", c.ID)
	require.True(t, srs.IsDue(c, now))

	_, err = bridge.NewCard("u1", "", " ", "back", now, nil)
	require.ErrorIs(t, err, bridge.ErrEmptyCard)
}

func sequentialIDs() bridge.IDFunc {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("card-%d", n), nil
	}
}
