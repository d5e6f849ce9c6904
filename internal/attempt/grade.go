package attempt

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"

	"github.com/victornm/quizflash/internal/domain"
)

// Grade marks every question of q against answers and sets the score, as a
// percentage rounded to the nearest integer. q is not modified.
func Grade(q domain.Quiz, answers map[string]string) domain.Quiz {
	g := q.Clone()

	correct := 0
	for i := range g.Questions {
		qq := &g.Questions[i]
		qq.UserAnswer = answers[qq.ID]
		qq.IsCorrect = IsCorrect(*qq, qq.UserAnswer)
		if qq.IsCorrect {
			correct++
		}
	}

	score := Score(correct, len(g.Questions))
	g.Score = &score
	return g
}

// Score is round(100 * correct / total), 0 for an empty quiz.
func Score(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// IsCorrect compares a submitted answer with the question's key.
func IsCorrect(q domain.Question, answer string) bool {
	if q.CorrectAnswer.MultiSelect() {
		return matchSet(q.CorrectAnswer, answer)
	}

	var key string
	if len(q.CorrectAnswer) == 1 {
		key = q.CorrectAnswer[0]
	}

	switch q.Type {
	case domain.QuestionTypeMCQ:
		return answer == key || normalize(answer) == normalize(key)
	case domain.QuestionTypeTrueFalse,
		domain.QuestionTypeShortAnswer,
		domain.QuestionTypeEssay,
		domain.QuestionTypeFillInTheBlank:
		return normalize(answer) == normalize(key)
	}
	panic(fmt.Sprintf("attempt: unhandled question type %q", q.Type))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// matchSet compares a comma separated answer with a multi-select key,
// ignoring order, case and surrounding spaces.
func matchSet(key domain.AnswerKey, answer string) bool {
	want := lo.Uniq(lo.Map([]string(key), func(s string, _ int) string { return normalize(s) }))
	got := lo.Uniq(lo.FilterMap(strings.Split(answer, ","), func(s string, _ int) (string, bool) {
		s = normalize(s)
		return s, s != ""
	}))

	return len(want) == len(got) && lo.Every(want, got)
}
