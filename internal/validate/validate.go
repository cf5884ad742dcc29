// Package validate turns raw model output into fully-typed questions,
// enforcing the question schema. The upstream generator is untrusted:
// it sometimes wraps the payload in prose or markdown and sometimes
// violates the format despite explicit instruction.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/avolkova/mathquiz/internal/model"
)

// ErrSchemaViolation means a single malformed model response. The
// issuance flow recovers by regenerating; it is not surfaced to the end
// collaborator unless the regeneration budget is also exhausted.
var ErrSchemaViolation = errors.New("generated content violates question schema")

// questionListSchema is the structural contract for the generated
// payload. Count and answer-membership checks are semantic and enforced
// in code below.
const questionListSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"question": {"type": "string", "minLength": 1},
			"options": {
				"type": "array",
				"items": {"type": "string", "minLength": 1},
				"minItems": 4,
				"maxItems": 4,
				"uniqueItems": true
			},
			"correct_answer": {"type": "string", "minLength": 1},
			"explanation": {"type": "string", "minLength": 1}
		},
		"required": ["question", "options", "correct_answer", "explanation"]
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(questionListSchema)

// candidate is the raw decoded shape before validation.
type candidate struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// Validate parses raw model output and returns exactly want validated
// questions with stable ids q1..qN, or an error wrapping
// ErrSchemaViolation.
func Validate(raw string, want int) ([]model.Question, error) {
	payload, err := extractPayload(raw)
	if err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
	}

	var candidates []candidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		return nil, fmt.Errorf("%w: parse payload: %v", ErrSchemaViolation, err)
	}
	if len(candidates) != want {
		return nil, fmt.Errorf("%w: expected %d questions, got %d", ErrSchemaViolation, want, len(candidates))
	}

	questions := make([]model.Question, 0, want)
	for i, c := range candidates {
		if err := checkCandidate(c); err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, model.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Text:          c.Question,
			Options:       c.Options,
			CorrectAnswer: c.CorrectAnswer,
			Explanation:   c.Explanation,
		})
	}
	return questions, nil
}

func checkCandidate(c candidate) error {
	if len(c.Options) != model.NumOptions {
		return fmt.Errorf("%w: expected %d options, got %d", ErrSchemaViolation, model.NumOptions, len(c.Options))
	}
	seen := make(map[string]bool, model.NumOptions)
	for _, opt := range c.Options {
		if opt == "" {
			return fmt.Errorf("%w: empty option", ErrSchemaViolation)
		}
		if seen[opt] {
			return fmt.Errorf("%w: duplicate option %q", ErrSchemaViolation, opt)
		}
		seen[opt] = true
	}
	// correct_answer must match an option case-sensitively: options
	// are rendered verbatim, so this mirrors user-facing behavior.
	if !seen[c.CorrectAnswer] {
		return fmt.Errorf("%w: correct_answer %q is not one of the options", ErrSchemaViolation, c.CorrectAnswer)
	}
	if c.Explanation == "" {
		return fmt.Errorf("%w: empty explanation", ErrSchemaViolation)
	}
	return nil
}

// extractPayload locates the JSON array inside raw model output,
// tolerating markdown fences and surrounding prose.
func extractPayload(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON array in response", ErrSchemaViolation)
	}
	return s[start : end+1], nil
}
