// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm provides the text-generation capability used for question
// generation and answer grading, with interchangeable backends selected at
// construction.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

const (
	defaultMaxTokens = 2000
	defaultTimeout   = 60 * time.Second
)

// Prompt is one generation request.
type Prompt struct {
	// System is the optional system instruction.
	System string

	// User is the rendered prompt body.
	User string

	// Temperature overrides the backend default when non-nil.
	Temperature *float64

	// JSON asks the backend for a JSON-only reply when it supports a
	// structured-output mode. Callers still extract and validate the reply.
	JSON bool
}

// WithTemperature returns p with its temperature set to t.
func (p Prompt) WithTemperature(t float64) Prompt {
	p.Temperature = &t
	return p
}

// Model produces a text reply to a prompt.
type Model interface {
	Invoke(ctx context.Context, p Prompt) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, p Prompt) (string, error)

// Invoke calls f.
func (f ModelFunc) Invoke(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// New constructs the backend named by cfg.Provider.
func New(cfg types.ModelConfig, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model provider %q requires an API key", cfg.Provider)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	switch cfg.Provider {
	case types.ProviderClaude:
		return &ClaudeBackend{
			APIKey:      cfg.APIKey,
			Model:       orDefault(cfg.Model, defaultClaudeModel),
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
			Client:      client,
			logger:      logger.Named("llm.claude"),
		}, nil
	case types.ProviderOpenAI, types.ProviderGroq, "":
		provider := cfg.Provider
		if provider == "" {
			provider = types.ProviderGroq
		}
		base := cfg.BaseURL
		if base == "" {
			base = defaultBaseURLs[provider]
		}
		return &OpenAIBackend{
			APIKey:      cfg.APIKey,
			Model:       orDefault(cfg.Model, defaultOpenAIModels[provider]),
			BaseURL:     base,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			JSONMode:    cfg.JSONMode,
			MaxRetries:  cfg.MaxRetries,
			Client:      client,
			logger:      logger.Named("llm." + string(provider)),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %q", cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func maxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

func temperature(p Prompt, def float64) float64 {
	if p.Temperature != nil {
		return *p.Temperature
	}
	return def
}

func logOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
