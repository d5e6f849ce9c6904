// Package attempt drives one learner through a quiz: intro, active, completed.
//
// Attempt is a value. Every transition returns a new Attempt and leaves the
// receiver untouched, so callers can keep the previous state around or drop
// the whole attempt without side effects.
package attempt

import (
	stderrors "errors"
	"maps"
	"strings"

	"github.com/victornm/quizflash/internal/domain"
	"github.com/victornm/quizflash/internal/errors"
)

type Status string

const (
	StatusIntro     Status = "intro"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the
	// current status. The attempt is returned unchanged.
	ErrInvalidTransition = stderrors.New("attempt: invalid transition")
	// ErrIncompleteAnswer is returned by Next and Submit while the question in
	// view has no answer. The attempt is returned unchanged.
	ErrIncompleteAnswer = stderrors.New("attempt: current question is not answered")
	ErrUnknownQuestion  = stderrors.New("attempt: unknown question")
)

func init() {
	errors.Register(ErrInvalidTransition, errors.CodeFailedPrecondition)
	errors.Register(ErrIncompleteAnswer, errors.CodeFailedPrecondition)
	errors.Register(ErrUnknownQuestion, errors.CodeInvalidArgument)
}

// Unchanged reports whether err is one of the rejections that leave the
// attempt as it was.
func Unchanged(err error) bool {
	return stderrors.Is(err, ErrInvalidTransition) ||
		stderrors.Is(err, ErrIncompleteAnswer) ||
		stderrors.Is(err, ErrUnknownQuestion)
}

type Attempt struct {
	Status       Status            `json:"status"`
	CurrentIndex int               `json:"current_index"`
	Answers      map[string]string `json:"answers"`
	Quiz         domain.Quiz       `json:"quiz"`
}

// Open creates the attempt state for a quiz. A quiz that already has a score
// is opened as completed with its stored answers.
func Open(q domain.Quiz) Attempt {
	q = q.Clone()

	if !q.Attempted() {
		return Attempt{
			Status:  StatusIntro,
			Answers: map[string]string{},
			Quiz:    q,
		}
	}

	answers := make(map[string]string, len(q.Questions))
	for _, qq := range q.Questions {
		answers[qq.ID] = qq.UserAnswer
	}

	return Attempt{
		Status:  StatusCompleted,
		Answers: answers,
		Quiz:    q,
	}
}

func (a Attempt) Start() (Attempt, error) {
	if a.Status != StatusIntro {
		return a, ErrInvalidTransition
	}

	a.Status = StatusActive
	a.CurrentIndex = 0
	a.Answers = map[string]string{}
	return a, nil
}

// Answer records value for the question, replacing any earlier answer. It does
// not move the pointer.
func (a Attempt) Answer(questionID, value string) (Attempt, error) {
	if a.Status != StatusActive {
		return a, ErrInvalidTransition
	}
	if _, _, ok := a.Quiz.Question(questionID); !ok {
		return a, ErrUnknownQuestion
	}

	answers := maps.Clone(a.Answers)
	if answers == nil {
		answers = map[string]string{}
	}
	answers[questionID] = value
	a.Answers = answers
	return a, nil
}

func (a Attempt) Next() (Attempt, error) {
	if a.Status != StatusActive {
		return a, ErrInvalidTransition
	}
	if !a.currentAnswered() {
		return a, ErrIncompleteAnswer
	}

	a.CurrentIndex = min(a.CurrentIndex+1, a.lastIndex())
	return a, nil
}

// Previous is never gated on answers.
func (a Attempt) Previous() (Attempt, error) {
	if a.Status != StatusActive {
		return a, ErrInvalidTransition
	}

	a.CurrentIndex = max(a.CurrentIndex-1, 0)
	return a, nil
}

// Submit grades the quiz and completes the attempt. Only the question in view
// has to be answered; unanswered questions elsewhere are graded as wrong. A
// quiz without questions submits as is and scores 0.
func (a Attempt) Submit() (Attempt, error) {
	if a.Status != StatusActive {
		return a, ErrInvalidTransition
	}
	if len(a.Quiz.Questions) > 0 && !a.currentAnswered() {
		return a, ErrIncompleteAnswer
	}

	a.Quiz = Grade(a.Quiz, a.Answers)
	a.Answers = maps.Clone(a.Answers)
	a.Status = StatusCompleted
	return a, nil
}

// Current returns the question in view.
func (a Attempt) Current() (domain.Question, bool) {
	if a.CurrentIndex < 0 || a.CurrentIndex >= len(a.Quiz.Questions) {
		return domain.Question{}, false
	}
	return a.Quiz.Questions[a.CurrentIndex], true
}

// Progress returns how many questions have a non-blank answer.
func (a Attempt) Progress() (answered, total int) {
	for _, q := range a.Quiz.Questions {
		if strings.TrimSpace(a.Answers[q.ID]) != "" {
			answered++
		}
	}
	return answered, len(a.Quiz.Questions)
}

func (a Attempt) currentAnswered() bool {
	q, ok := a.Current()
	if !ok {
		return false
	}
	return strings.TrimSpace(a.Answers[q.ID]) != ""
}

func (a Attempt) lastIndex() int {
	return max(len(a.Quiz.Questions)-1, 0)
}
