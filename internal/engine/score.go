package engine

import (
	"strings"
	"time"

	"github.com/avolkova/mathquiz/internal/model"
)

// Score matches a submission against the session's questions and builds
// the graded record. Pure function of its inputs: one FeedbackItem per
// session question, in question order, whether answered or not.
//
// An answer is correct when it equals the question's correct answer
// after trimming surrounding whitespace. Comparison is case-sensitive:
// options are rendered verbatim, so this matches what the student saw.
func Score(sess model.TestSession, submission model.Submission, date time.Time) model.TestRecord {
	feedback := make([]model.FeedbackItem, 0, len(sess.Questions))
	score := 0
	for _, q := range sess.Questions {
		answer := strings.TrimSpace(submission[q.ID])
		correct := answer == q.CorrectAnswer
		if correct {
			score++
		}
		feedback = append(feedback, model.FeedbackItem{
			QuestionID:    q.ID,
			QuestionText:  q.Text,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct,
			Explanation:   q.Explanation,
		})
	}

	total := len(sess.Questions)
	percentage := 0.0
	if total > 0 {
		percentage = 100.0 * float64(score) / float64(total)
	}
	return model.TestRecord{
		TestID:     sess.SessionID,
		OwnerID:    sess.OwnerID,
		Date:       date,
		Score:      score,
		Total:      total,
		Percentage: percentage,
		Feedback:   feedback,
	}
}
