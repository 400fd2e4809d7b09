// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedding converts text into vectors for retrieval.
//
// Providers may need a one-time Fit over the chunk corpus before queries can
// be embedded. Fitted state is never implied: a provider that has not been
// fitted returns types.ErrNotFitted from EmbedQuery, and providers whose
// state matters implement Stateful so the index can persist the exact
// encoder it was built with.
package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Provider embeds documents and queries into a shared vector space.
type Provider interface {
	// Name identifies the provider; an index records it so a reader can
	// rebuild a compatible encoder.
	Name() string

	// Fit prepares the provider from the full chunk corpus. Providers
	// without corpus statistics treat it as a no-op.
	Fit(ctx context.Context, corpus []string) error

	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// EmbedQuery returns the vector for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Stateful is implemented by providers whose fitted parameters must be
// persisted alongside the vectors they produced.
type Stateful interface {
	Provider
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Factory constructs a fresh, unfitted provider. Builders call it once per
// knowledge base so fitted state is never shared across papers.
type Factory func() (Provider, error)

// NewFactory returns a Factory for the configured provider.
func NewFactory(cfg types.EmbeddingConfig, logger *zap.Logger) (Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case types.EmbeddingTFIDF, "":
		return func() (Provider, error) { return NewTFIDF(), nil }, nil
	case types.EmbeddingHashing:
		return func() (Provider, error) { return NewHashing(cfg.Dimension), nil }, nil
	case types.EmbeddingOpenAI:
		if _, err := NewOpenAI(cfg, logger); err != nil {
			return nil, err
		}
		return func() (Provider, error) { return NewOpenAI(cfg, logger) }, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
}

// Restore rebuilds the provider recorded in an index from its name and
// persisted state. cfg supplies credentials and transport settings for
// remote providers; the recorded state wins over cfg for anything that
// shapes the vector space.
func Restore(name string, state []byte, cfg types.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	var p Stateful
	switch types.EmbeddingProviderName(name) {
	case types.EmbeddingTFIDF:
		p = NewTFIDF()
	case types.EmbeddingHashing:
		p = NewHashing(0)
	case types.EmbeddingOpenAI:
		c, err := NewOpenAI(cfg, logger)
		if err != nil {
			return nil, err
		}
		p = c
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", types.ErrEmbedding, name)
	}
	if err := p.UnmarshalState(state); err != nil {
		return nil, fmt.Errorf("restoring %s encoder: %w", name, err)
	}
	return p, nil
}

// tokenPattern matches letter runs with internal apostrophes and digits.
var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

// tokenize lower-cases text and returns its non-stopword tokens.
func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// normalize scales v to unit L2 length in place. Zero vectors are left as is.
func normalize(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too",
		"very", "can", "will", "just", "don", "should", "now", "we", "our", "its", "their", "which", "also",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
