// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// QuestionType categorizes a generated question.
type QuestionType string

const (
	QuestionWhy     QuestionType = "why"
	QuestionHow     QuestionType = "how"
	QuestionExplain QuestionType = "explain"
	QuestionCompare QuestionType = "compare"
	QuestionApply   QuestionType = "apply"
)

// validQuestionTypes is the set of accepted QuestionType values.
var validQuestionTypes = map[QuestionType]bool{
	QuestionWhy:     true,
	QuestionHow:     true,
	QuestionExplain: true,
	QuestionCompare: true,
	QuestionApply:   true,
}

// ParseQuestionType normalizes s and reports whether it names a known type.
func ParseQuestionType(s string) (QuestionType, bool) {
	t := QuestionType(strings.ToLower(strings.TrimSpace(s)))
	return t, validQuestionTypes[t]
}

const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// Question is one generated viva question. Questions are never mutated
// after generation.
type Question struct {
	ID               string       `json:"id" yaml:"id"`
	Text             string       `json:"text" yaml:"text"`
	Type             QuestionType `json:"type" yaml:"type"`
	ExpectedConcepts []string     `json:"expected_concepts" yaml:"expected_concepts"`
	Difficulty       int          `json:"difficulty" yaml:"difficulty"`
}

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("%w: question has empty id", ErrValidation)
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question %s has empty text", ErrValidation, q.ID)
	}
	if !validQuestionTypes[q.Type] {
		return fmt.Errorf("%w: question %s has unknown type %q", ErrValidation, q.ID, q.Type)
	}
	if q.Difficulty < MinDifficulty || q.Difficulty > MaxDifficulty {
		return fmt.Errorf("%w: question %s difficulty %d out of range [%d,%d]",
			ErrValidation, q.ID, q.Difficulty, MinDifficulty, MaxDifficulty)
	}
	return nil
}
