// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evaluate grades a free-text answer against evidence retrieved
// from the paper. Grading always yields a result: a reply the model
// garbled becomes a neutral default rather than an error.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/internal/knowledge"
	"github.com/pdiddy/viva-examiner/internal/llm"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

const (
	retrievalK = 5

	// DefaultTemperature keeps grading close to deterministic.
	DefaultTemperature = 0.3

	// NeutralFeedback is the feedback of the default result.
	NeutralFeedback = "unable to evaluate"
)

// requiredFields must all be present for a reply to be trusted.
var requiredFields = []string{"score", "correctness", "feedback", "factual_errors", "missing_concepts"}

// Retriever is the similarity search grading is grounded in.
type Retriever interface {
	Query(ctx context.Context, ref, text string, k int) ([]knowledge.Retrieved, error)
}

// Evaluator grades answers.
type Evaluator struct {
	model       llm.Model
	retriever   Retriever
	bounds      types.ScoreBounds
	temperature float64
	logger      *zap.Logger
}

// NewEvaluator creates an Evaluator. Zero bounds select the defaults
// [1,10]; a zero temperature selects DefaultTemperature.
func NewEvaluator(model llm.Model, retriever Retriever, cfg types.EvaluationConfig, logger *zap.Logger) (*Evaluator, error) {
	bounds := cfg.ScoreBounds
	if bounds == (types.ScoreBounds{}) {
		bounds = types.DefaultScoreBounds
	}
	if !bounds.Valid() {
		return nil, fmt.Errorf("%w: min_score %d exceeds max_score %d", types.ErrValidation, bounds.Min, bounds.Max)
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = DefaultTemperature
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		model:       model,
		retriever:   retriever,
		bounds:      bounds,
		temperature: temp,
		logger:      logger.Named("evaluate"),
	}, nil
}

// Bounds returns the score range results are clamped to.
func (e *Evaluator) Bounds() types.ScoreBounds { return e.bounds }

// Evaluate grades answer to q using evidence retrieved jointly for the
// question and the answer. Retrieval and model-invocation errors are
// returned; an unusable reply yields the neutral result.
func (e *Evaluator) Evaluate(ctx context.Context, q types.Question, answer string, kb *types.KnowledgeBase) (types.EvaluationResult, error) {
	results, err := e.retriever.Query(ctx, kb.IndexRef, q.Text+" "+answer, retrievalK)
	if err != nil {
		return types.EvaluationResult{}, fmt.Errorf("retrieving evidence: %w", err)
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}

	prompt, err := renderPrompt(promptData{
		Question: q.Text,
		Answer:   answer,
		Context:  joinTexts(texts),
		Concepts: strings.Join(q.ExpectedConcepts, ", "),
		Min:      e.bounds.Min,
		Max:      e.bounds.Max,
	})
	if err != nil {
		return types.EvaluationResult{}, fmt.Errorf("rendering prompt: %w", err)
	}

	reply, err := e.model.Invoke(ctx, llm.Prompt{User: prompt, JSON: true}.WithTemperature(e.temperature))
	if err != nil {
		return types.EvaluationResult{}, fmt.Errorf("invoking model: %w", err)
	}

	result, err := e.parse(reply)
	if err != nil {
		e.logger.Warn("using neutral evaluation",
			zap.String("question_id", q.ID),
			zap.Error(err),
		)
		e.logger.Debug("unusable evaluation reply", zap.String("reply", reply))
		return e.Neutral(), nil
	}

	e.logger.Info("evaluated answer",
		zap.String("question_id", q.ID),
		zap.Int("score", result.Score),
		zap.String("correctness", string(result.Correctness)),
	)
	return result, nil
}

// Neutral returns the default result used when a reply cannot be read.
func (e *Evaluator) Neutral() types.EvaluationResult {
	r, _ := types.NewEvaluationResult(e.bounds, e.bounds.Midpoint(), types.PartiallyCorrect, NeutralFeedback, nil, nil)
	return r
}

// parse reads a reply into a result, clamping the score and normalizing
// correctness. Any missing or mistyped field is an error.
func (e *Evaluator) parse(reply string) (types.EvaluationResult, error) {
	raw, err := llm.ExtractJSONObject(reply)
	if err != nil {
		return types.EvaluationResult{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.EvaluationResult{}, fmt.Errorf("%w: %v", types.ErrGenerationFormat, err)
	}
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return types.EvaluationResult{}, fmt.Errorf("%w: missing field %q", types.ErrGenerationFormat, f)
		}
	}

	score, ok := llm.LenientInt(fields["score"])
	if !ok {
		return types.EvaluationResult{}, fmt.Errorf("%w: score %s is not a number", types.ErrGenerationFormat, string(fields["score"]))
	}

	var correctnessText, feedback string
	var factualErrors, missing []string
	decode := []struct {
		name string
		dst  any
	}{
		{"correctness", &correctnessText},
		{"feedback", &feedback},
		{"factual_errors", &factualErrors},
		{"missing_concepts", &missing},
	}
	for _, d := range decode {
		if err := json.Unmarshal(fields[d.name], d.dst); err != nil {
			return types.EvaluationResult{}, fmt.Errorf("%w: field %q: %v", types.ErrGenerationFormat, d.name, err)
		}
	}

	correctness, ok := types.ParseCorrectness(correctnessText)
	if !ok {
		correctness = types.PartiallyCorrect
	}

	return types.NewEvaluationResult(e.bounds, e.bounds.Clamp(score), correctness, feedback, factualErrors, missing)
}
