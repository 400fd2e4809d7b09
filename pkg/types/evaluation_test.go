// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvaluationResult(t *testing.T) {
	tests := []struct {
		name        string
		bounds      ScoreBounds
		score       int
		correctness Correctness
		wantErr     bool
	}{
		{"lower bound", DefaultScoreBounds, 1, Incorrect, false},
		{"upper bound", DefaultScoreBounds, 10, Correct, false},
		{"below range", DefaultScoreBounds, 0, Incorrect, true},
		{"above range", DefaultScoreBounds, 11, Correct, true},
		{"unknown correctness", DefaultScoreBounds, 5, "excellent", true},
		{"empty correctness", DefaultScoreBounds, 5, "", true},
		{"inverted bounds", ScoreBounds{Min: 5, Max: 1}, 3, Correct, true},
		{"single point range", ScoreBounds{Min: 3, Max: 3}, 3, PartiallyCorrect, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewEvaluationResult(tt.bounds, tt.score, tt.correctness, "feedback", nil, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				assert.Equal(t, EvaluationResult{}, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.correctness, res.Correctness)
			assert.NotNil(t, res.FactualErrors, "nil lists become empty")
			assert.NotNil(t, res.MissingConcepts)
		})
	}
}

func TestNewEvaluationResultKeepsLists(t *testing.T) {
	res, err := NewEvaluationResult(DefaultScoreBounds, 4, PartiallyCorrect, "f", []string{"wrong date"}, []string{"gating"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wrong date"}, res.FactualErrors)
	assert.Equal(t, []string{"gating"}, res.MissingConcepts)
}

func TestScoreBounds(t *testing.T) {
	tests := []struct {
		name     string
		bounds   ScoreBounds
		midpoint int
		clamps   map[int]int
	}{
		{"default", DefaultScoreBounds, 5, map[int]int{-7: 1, 1: 1, 6: 6, 10: 10, 99: 10}},
		{"odd width", ScoreBounds{Min: 0, Max: 5}, 2, map[int]int{-1: 0, 3: 3, 6: 5}},
		{"negative", ScoreBounds{Min: -3, Max: 2}, -1, map[int]int{-4: -3, 0: 0, 3: 2}},
		{"single point", ScoreBounds{Min: 4, Max: 4}, 4, map[int]int{0: 4, 4: 4, 9: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.bounds.Valid())
			assert.Equal(t, tt.midpoint, tt.bounds.Midpoint())
			assert.True(t, tt.bounds.Contains(tt.bounds.Midpoint()))
			for in, want := range tt.clamps {
				assert.Equal(t, want, tt.bounds.Clamp(in), "clamp %d", in)
			}
		})
	}
	assert.False(t, ScoreBounds{Min: 2, Max: 1}.Valid())
}

func TestParseCorrectness(t *testing.T) {
	tests := []struct {
		in   string
		want Correctness
		ok   bool
	}{
		{"correct", Correct, true},
		{" PARTIALLY_CORRECT ", PartiallyCorrect, true},
		{"Incorrect", Incorrect, true},
		{"partial", "partial", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCorrectness(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
