package model

import (
	"context"
	"time"
)

// Difficulty represents a question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	// DifficultyMixed asks the generator for an even spread of levels.
	DifficultyMixed Difficulty = "mixed"
)

// SessionStatus represents the status of a test session.
type SessionStatus string

const (
	// StatusIssued means the questions have been handed to the student
	// and no submission has been graded yet.
	StatusIssued SessionStatus = "issued"
	// StatusGraded means exactly one submission has been graded.
	// Issued -> Graded is the only legal transition.
	StatusGraded SessionStatus = "graded"
)

// NumOptions is the required number of options per question.
const NumOptions = 4

// Question is a single multiple-choice question. Immutable once created:
// the generation pipeline builds it, everything downstream only reads it.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// TestSession is one in-flight test attempt: an ordered, immutable set of
// validated questions bound to a session token and its owner.
type TestSession struct {
	SessionID string        `json:"session_id"`
	OwnerID   string        `json:"owner_id"`
	CreatedAt time.Time     `json:"created_at"`
	Status    SessionStatus `json:"status"`
	Questions []Question    `json:"questions"`
}

// QuestionByID returns the session question with the given id.
func (s *TestSession) QuestionByID(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Submission maps question ids to submitted answer values. A missing or
// empty value means the question was left unanswered.
type Submission map[string]string

// FeedbackItem is the per-question comparison of a submitted value
// against the correct answer. Derived, never mutated after creation.
type FeedbackItem struct {
	QuestionID    string `json:"question_id"`
	QuestionText  string `json:"question_text"`
	UserAnswer    string `json:"user_answer"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Explanation   string `json:"explanation"`
}

// RecordSchemaVersion is stamped on every persisted TestRecord so the
// feedback shape can evolve without breaking historical reads.
const RecordSchemaVersion = 1

// TestRecord is one completed, graded attempt. Records are append-only:
// history is never edited or deleted by normal operation.
type TestRecord struct {
	TestID     string         `json:"test_id"`
	OwnerID    string         `json:"owner_id"`
	Date       time.Time      `json:"date"`
	Score      int            `json:"score"`
	Total      int            `json:"total"`
	Percentage float64        `json:"percentage"`
	Feedback   []FeedbackItem `json:"feedback"`
}

// Scope describes what question set to produce.
type Scope struct {
	Topic      string     // curriculum scope tag, e.g. "year 7 algebra"
	Difficulty Difficulty // target difficulty mix
	Count      int        // number of questions N
	Seed       int64      // varies topic hints across regeneration attempts
}

type ownerCtxKey struct{}

// ContextWithOwner stores the authenticated owner id in the request context.
func ContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerCtxKey{}, ownerID)
}

// OwnerFromContext retrieves the owner id from context (empty if not set).
func OwnerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ownerCtxKey{}).(string)
	return id
}
