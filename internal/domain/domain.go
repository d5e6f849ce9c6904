package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrQuizCompleted is returned by stores asked to save a result for a quiz
// that already has a score.
var ErrQuizCompleted = errors.New("quiz already completed")

type Difficulty string

const (
	DifficultyEasy      Difficulty = "Easy"
	DifficultyMedium    Difficulty = "Medium"
	DifficultyHard      Difficulty = "Hard"
	DifficultyExamStyle Difficulty = "ExamStyle"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExamStyle:
		return true
	}
	return false
}

// QuestionType is the closed set of question kinds a quiz may contain.
type QuestionType string

const (
	QuestionTypeMCQ            QuestionType = "MCQ"
	QuestionTypeTrueFalse      QuestionType = "TrueFalse"
	QuestionTypeShortAnswer    QuestionType = "ShortAnswer"
	QuestionTypeEssay          QuestionType = "Essay"
	QuestionTypeFillInTheBlank QuestionType = "FillInTheBlank"
)

func ParseQuestionType(s string) (QuestionType, error) {
	t := QuestionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown question type %q", s)
	}
	return t, nil
}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMCQ, QuestionTypeTrueFalse, QuestionTypeShortAnswer, QuestionTypeEssay, QuestionTypeFillInTheBlank:
		return true
	}
	return false
}

func (t *QuestionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseQuestionType(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

const (
	MCQOptionCount = 4

	DefaultMarks       = 1
	DefaultExplanation = "No explanation provided."
)

var trueFalseChoices = []string{"True", "False"}

// AnswerKey is the correct answer of a question: a single value, or a set of
// values for multi-select questions.
type AnswerKey []string

func SingleAnswer(s string) AnswerKey { return AnswerKey{s} }

func (k AnswerKey) MultiSelect() bool { return len(k) > 1 }

func (k AnswerKey) String() string { return strings.Join(k, ", ") }

func (k AnswerKey) MarshalJSON() ([]byte, error) {
	if len(k) == 1 {
		return json.Marshal(k[0])
	}
	return json.Marshal([]string(k))
}

func (k *AnswerKey) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*k = AnswerKey{s}
		return nil
	}

	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return fmt.Errorf("answer key must be a string or a list of strings: %w", err)
	}
	*k = ss
	return nil
}

type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer AnswerKey    `json:"correct_answer,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	Marks         int          `json:"marks"`

	// Populated when an attempt is submitted.
	UserAnswer string `json:"user_answer"`
	IsCorrect  bool   `json:"is_correct"`
}

// Choices returns the options presented to the learner. TrueFalse questions
// always offer the fixed pair regardless of the stored options.
func (q Question) Choices() []string {
	switch q.Type {
	case QuestionTypeMCQ:
		return append([]string(nil), q.Options...)
	case QuestionTypeTrueFalse:
		return append([]string(nil), trueFalseChoices...)
	case QuestionTypeShortAnswer, QuestionTypeEssay, QuestionTypeFillInTheBlank:
		return nil
	}
	panic(fmt.Sprintf("domain: unhandled question type %q", q.Type))
}

func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question id is empty")
	}
	if !q.Type.Valid() {
		return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
	}
	if q.Type == QuestionTypeMCQ && len(q.Options) != MCQOptionCount {
		return fmt.Errorf("question %s: MCQ needs %d options, got %d", q.ID, MCQOptionCount, len(q.Options))
	}
	if len(q.CorrectAnswer) == 0 {
		return fmt.Errorf("question %s: correct answer is empty", q.ID)
	}
	if q.Marks <= 0 {
		return fmt.Errorf("question %s: marks must be positive", q.ID)
	}
	return nil
}

// Quiz is a fixed ordered list of questions. A nil Score means the quiz has
// not been attempted yet.
type Quiz struct {
	ID            string     `json:"id"`
	Owner         string     `json:"owner"`
	Title         string     `json:"title"`
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
	TotalMarks    int        `json:"total_marks"`
	ExamStyle     bool       `json:"exam_style"`
	Questions     []Question `json:"questions"`
	Score         *int       `json:"score,omitempty"`
	HasFlashcards bool       `json:"has_flashcards"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (q Quiz) Attempted() bool { return q.Score != nil }

// Clone returns a deep copy so transitions never share memory with their input.
func (q Quiz) Clone() Quiz {
	c := q
	if q.Score != nil {
		s := *q.Score
		c.Score = &s
	}
	if q.Questions != nil {
		c.Questions = make([]Question, len(q.Questions))
		for i, qq := range q.Questions {
			qq.Options = append([]string(nil), qq.Options...)
			qq.CorrectAnswer = append(AnswerKey(nil), qq.CorrectAnswer...)
			c.Questions[i] = qq
		}
	}
	return c
}

func (q Quiz) Question(id string) (Question, int, bool) {
	for i, qq := range q.Questions {
		if qq.ID == id {
			return qq, i, true
		}
	}
	return Question{}, -1, false
}

// Flashcard is one spaced-repetition item. QuizID is a lookup reference only.
type Flashcard struct {
	ID         string          `json:"id"`
	Owner      string          `json:"owner"`
	QuizID     string          `json:"quiz_id,omitempty"`
	Front      string          `json:"front"`
	Back       string          `json:"back"`
	Interval   int             `json:"interval"`
	EaseFactor decimal.Decimal `json:"ease_factor"`
	Repetition int             `json:"repetition"`
	NextReview time.Time       `json:"next_review"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Progress summarises the review activity of one user.
type Progress struct {
	Owner string `json:"owner"`
	// Days holds one entry per calendar day (UTC), oldest first.
	Days    []DayReviews   `json:"days"`
	Ratings map[string]int `json:"ratings"`
	// Streak counts consecutive days with at least one review, ending today
	// or, if nothing was reviewed yet today, yesterday.
	Streak int `json:"streak"`
}

type DayReviews struct {
	Date    string `json:"date"`
	Reviews int    `json:"reviews"`
}

type Leaderboard struct {
	Date    string             `json:"date"`
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	Username string `json:"username"`
	Reviews  int    `json:"reviews"`
}
