package domain

import "time"

const (
	EventNameQuizCompleted       = "quiz.completed"
	EventNameFlashcardsGenerated = "flashcards.generated"
	EventNameFlashcardReviewed   = "flashcard.reviewed"
	EventNameProgressUpdated     = "progress.updated"
)

type EventQuizCompleted struct {
	Quiz Quiz
}

func (EventQuizCompleted) Name() string { return EventNameQuizCompleted }

type EventFlashcardsGenerated struct {
	Owner      string
	QuizID     string
	Flashcards []Flashcard
}

func (EventFlashcardsGenerated) Name() string { return EventNameFlashcardsGenerated }

type EventFlashcardReviewed struct {
	Flashcard  Flashcard
	Rating     int
	ReviewedAt time.Time
}

func (EventFlashcardReviewed) Name() string { return EventNameFlashcardReviewed }

type EventProgressUpdated struct {
	Progress Progress
}

func (EventProgressUpdated) Name() string { return EventNameProgressUpdated }
