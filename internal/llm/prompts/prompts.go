// Package prompts builds the model-facing instruction for question
// generation. Building a prompt is a pure transformation of the Scope:
// the same Scope (including its Seed) always yields the same text.
package prompts

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/avolkova/mathquiz/internal/model"
)

// angles are presentation hints mixed into the prompt so that repeated
// generation calls for the same topic produce varied question sets.
var angles = []string{
	"word problems drawn from everyday situations",
	"straightforward symbolic computation",
	"number patterns and sequences",
	"geometry and measurement",
	"percentages, fractions and ratios",
	"reading values from described tables or scenarios",
	"multi-step reasoning combining two operations",
}

// Build turns a generation scope into a single instruction payload that
// mandates a strict JSON output schema.
func Build(scope model.Scope) string {
	rng := rand.New(rand.NewPCG(uint64(scope.Seed), uint64(scope.Seed)>>1))
	hint := angles[rng.IntN(len(angles))]

	var sb strings.Builder
	sb.WriteString("You are a question writer for a student practice test.\n\n")
	fmt.Fprintf(&sb, "Write exactly %d multiple-choice questions on the topic: %s.\n", scope.Count, scope.Topic)
	sb.WriteString(difficultyLine(scope.Difficulty))
	fmt.Fprintf(&sb, "Favour %s where the topic allows.\n\n", hint)

	sb.WriteString("Respond ONLY with a JSON array. Each element must be an object with these fields:\n")
	sb.WriteString(`{"question": "<the question text>", "options": ["<a>", "<b>", "<c>", "<d>"], "correct_answer": "<one of the four options, verbatim>", "explanation": "<short worked solution>"}`)
	sb.WriteString("\n\nRules:\n")
	fmt.Fprintf(&sb, "- The array must contain exactly %d elements.\n", scope.Count)
	fmt.Fprintf(&sb, "- Each question has exactly %d distinct, non-empty options.\n", model.NumOptions)
	sb.WriteString("- correct_answer must be copied character-for-character from the options list.\n")
	sb.WriteString("- Every explanation must be non-empty.\n")
	sb.WriteString("- No prose, no markdown, no text outside the JSON array.\n")

	return sb.String()
}

func difficultyLine(d model.Difficulty) string {
	switch d {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		return fmt.Sprintf("All questions should be %s difficulty.\n", d)
	default:
		return "Mix the difficulty: roughly a third easy, a third medium, a third hard.\n"
	}
}
