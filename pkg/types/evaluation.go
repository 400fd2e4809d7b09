// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// Correctness is the three-way verdict attached to a graded answer.
type Correctness string

const (
	Correct          Correctness = "correct"
	PartiallyCorrect Correctness = "partially_correct"
	Incorrect        Correctness = "incorrect"
)

// ParseCorrectness lower-cases s and reports whether it is a known verdict.
func ParseCorrectness(s string) (Correctness, bool) {
	c := Correctness(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case Correct, PartiallyCorrect, Incorrect:
		return c, true
	}
	return c, false
}

// ScoreBounds is the inclusive score range used by the evaluator.
type ScoreBounds struct {
	Min int `json:"min_score" yaml:"min_score"`
	Max int `json:"max_score" yaml:"max_score"`
}

// DefaultScoreBounds is the [1,10] range used when none is configured.
var DefaultScoreBounds = ScoreBounds{Min: 1, Max: 10}

// Valid reports whether the bounds describe a non-empty range.
func (b ScoreBounds) Valid() bool {
	return b.Min <= b.Max
}

// Midpoint returns the neutral score, rounded down.
func (b ScoreBounds) Midpoint() int {
	return b.Min + (b.Max-b.Min)/2
}

// Clamp forces score into [Min, Max].
func (b ScoreBounds) Clamp(score int) int {
	if score < b.Min {
		return b.Min
	}
	if score > b.Max {
		return b.Max
	}
	return score
}

// Contains reports whether score lies within the bounds.
func (b ScoreBounds) Contains(score int) bool {
	return score >= b.Min && score <= b.Max
}

// EvaluationResult is the outcome of grading one answer.
type EvaluationResult struct {
	Score           int         `json:"score" yaml:"score"`
	Correctness     Correctness `json:"correctness" yaml:"correctness"`
	Feedback        string      `json:"feedback" yaml:"feedback"`
	FactualErrors   []string    `json:"factual_errors" yaml:"factual_errors"`
	MissingConcepts []string    `json:"missing_concepts" yaml:"missing_concepts"`
}

// NewEvaluationResult constructs an EvaluationResult, failing with
// ErrValidation when score lies outside bounds or correctness is unknown.
// Nil lists are normalized to empty lists.
func NewEvaluationResult(bounds ScoreBounds, score int, correctness Correctness, feedback string, factualErrors, missingConcepts []string) (EvaluationResult, error) {
	if !bounds.Valid() {
		return EvaluationResult{}, fmt.Errorf("%w: invalid score bounds [%d,%d]", ErrValidation, bounds.Min, bounds.Max)
	}
	if !bounds.Contains(score) {
		return EvaluationResult{}, fmt.Errorf("%w: score %d out of range [%d,%d]", ErrValidation, score, bounds.Min, bounds.Max)
	}
	if _, ok := ParseCorrectness(string(correctness)); !ok {
		return EvaluationResult{}, fmt.Errorf("%w: unknown correctness %q", ErrValidation, correctness)
	}
	if factualErrors == nil {
		factualErrors = []string{}
	}
	if missingConcepts == nil {
		missingConcepts = []string{}
	}
	return EvaluationResult{
		Score:           score,
		Correctness:     correctness,
		Feedback:        feedback,
		FactualErrors:   factualErrors,
		MissingConcepts: missingConcepts,
	}, nil
}
