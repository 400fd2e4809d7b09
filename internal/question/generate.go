// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package question generates paper-specific viva questions from a
// knowledge base with a generation model, then filters out candidates
// that are malformed or not grounded in the paper.
package question

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/internal/knowledge"
	"github.com/pdiddy/viva-examiner/internal/llm"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

const (
	queryK          = 3
	maxContextTexts = 10
	maxConcepts     = 15
	defaultDiff     = 3
)

// groundingQueries sample the parts of a paper a viva usually probes.
var groundingQueries = []string{
	"main methodology and approach",
	"key results and findings",
	"implications and contributions",
	"limitations and future work",
}

// genericPatterns mark questions answerable without reading the paper.
var genericPatterns = []string{
	"what is the title",
	"who are the authors",
	"when was",
	"where was published",
}

// Retriever is the similarity search the generator grounds its prompt in.
type Retriever interface {
	Query(ctx context.Context, ref, text string, k int) ([]knowledge.Retrieved, error)
}

// Generator produces questions for a knowledge base.
type Generator struct {
	model       llm.Model
	retriever   Retriever
	temperature float64
	logger      *zap.Logger
}

// NewGenerator creates a Generator sampling at the given temperature.
func NewGenerator(model llm.Model, retriever Retriever, temperature float64, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		model:       model,
		retriever:   retriever,
		temperature: temperature,
		logger:      logger.Named("question"),
	}
}

// candidate is one question as written by the model.
type candidate struct {
	Text             string          `json:"text"`
	Type             string          `json:"type"`
	ExpectedConcepts []string        `json:"expected_concepts"`
	Difficulty       json.RawMessage `json:"difficulty"`
}

// Generate returns at most count validated questions in generation order.
// An unparseable model reply reports types.ErrGenerationFormat; retrieval
// and model errors are returned as is. Fewer than count questions is not
// an error.
func (g *Generator) Generate(ctx context.Context, kb *types.KnowledgeBase, fullText string, count int) ([]types.Question, error) {
	if count <= 0 {
		return []types.Question{}, nil
	}

	var contextTexts []string
	for _, q := range groundingQueries {
		results, err := g.retriever.Query(ctx, kb.IndexRef, q, queryK)
		if err != nil {
			return nil, fmt.Errorf("retrieving %q: %w", q, err)
		}
		for _, r := range results {
			contextTexts = append(contextTexts, r.Text)
		}
	}
	if len(contextTexts) > maxContextTexts {
		contextTexts = contextTexts[:maxContextTexts]
	}

	prompt, err := renderPrompt(contextTexts, kb.ConceptTerms(maxConcepts), count)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	g.logger.Info("generating questions", zap.String("paper_id", kb.PaperID), zap.Int("count", count))
	reply, err := g.model.Invoke(ctx, llm.Prompt{User: prompt}.WithTemperature(g.temperature))
	if err != nil {
		return nil, fmt.Errorf("invoking model: %w", err)
	}

	raw, err := llm.ExtractJSONArray(reply)
	if err != nil {
		g.logger.Error("unparseable generation reply", zap.Error(err), zap.String("reply", reply))
		return nil, err
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrGenerationFormat, err)
	}

	fullLower := strings.ToLower(fullText)
	questions := make([]types.Question, 0, count)
	for i, entry := range entries {
		q, err := toQuestion(entry)
		if err != nil {
			g.logger.Warn("dropping malformed question", zap.Int("entry", i), zap.Error(err))
			continue
		}
		if reason := unspecific(q, fullLower); reason != "" {
			g.logger.Warn("filtered out question", zap.String("text", q.Text), zap.String("reason", reason))
			continue
		}
		questions = append(questions, q)
		if len(questions) == count {
			break
		}
	}

	if len(questions) < count {
		g.logger.Warn("fewer valid questions than requested",
			zap.Int("valid", len(questions)),
			zap.Int("requested", count),
		)
	}
	return questions, nil
}

// toQuestion converts one parsed entry. A missing type defaults to
// explain and a missing difficulty to 3; a difficulty outside [1,5]
// rejects the entry.
func toQuestion(entry json.RawMessage) (types.Question, error) {
	var c candidate
	if err := json.Unmarshal(entry, &c); err != nil {
		return types.Question{}, fmt.Errorf("invalid shape: %w", err)
	}

	qt := types.QuestionExplain
	if strings.TrimSpace(c.Type) != "" {
		t, ok := types.ParseQuestionType(c.Type)
		if !ok {
			return types.Question{}, fmt.Errorf("unknown type %q", c.Type)
		}
		qt = t
	}

	difficulty := defaultDiff
	if len(c.Difficulty) > 0 && string(c.Difficulty) != "null" {
		d, ok := llm.LenientInt(c.Difficulty)
		if !ok {
			return types.Question{}, fmt.Errorf("invalid difficulty %s", string(c.Difficulty))
		}
		if d < types.MinDifficulty || d > types.MaxDifficulty {
			return types.Question{}, fmt.Errorf("difficulty %d out of range [%d,%d]", d, types.MinDifficulty, types.MaxDifficulty)
		}
		difficulty = d
	}

	concepts := make([]string, 0, len(c.ExpectedConcepts))
	for _, ec := range c.ExpectedConcepts {
		if ec = strings.TrimSpace(ec); ec != "" {
			concepts = append(concepts, ec)
		}
	}

	q := types.Question{
		ID:               uuid.NewString(),
		Text:             strings.TrimSpace(c.Text),
		Type:             qt,
		ExpectedConcepts: concepts,
		Difficulty:       difficulty,
	}
	if err := q.Validate(); err != nil {
		return types.Question{}, err
	}
	return q, nil
}

// unspecific returns why q is not grounded in the paper, or "".
func unspecific(q types.Question, fullLower string) string {
	text := strings.ToLower(q.Text)
	for _, p := range genericPatterns {
		if strings.Contains(text, p) {
			return "generic pattern " + p
		}
	}
	for _, c := range q.ExpectedConcepts {
		if strings.Contains(fullLower, strings.ToLower(c)) {
			return ""
		}
	}
	return "no expected concept appears in the paper"
}
