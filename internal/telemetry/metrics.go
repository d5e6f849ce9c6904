package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quizScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quizflash",
		Name:      "quiz_score",
		Help:      "Scores of submitted quiz attempts.",
		Buckets:   prometheus.LinearBuckets(0, 10, 11),
	})

	flashcardsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizflash",
		Name:      "flashcards_generated_total",
		Help:      "Flashcards created, by source.",
	}, []string{"source"})

	flashcardReviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizflash",
		Name:      "flashcard_reviews_total",
		Help:      "Flashcard reviews, by rating.",
	}, []string{"rating"})
)

func ObserveQuizScore(score int) {
	quizScores.Observe(float64(score))
}

// CountFlashcards adds n cards created from source ("quiz" or "manual").
func CountFlashcards(source string, n int) {
	flashcardsGenerated.WithLabelValues(source).Add(float64(n))
}

func CountReview(rating string) {
	flashcardReviews.WithLabelValues(rating).Inc()
}
