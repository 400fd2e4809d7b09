// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/internal/httputil"
	"github.com/pdiddy/viva-examiner/pkg/types"
)

var defaultBaseURLs = map[types.ModelProvider]string{
	types.ProviderOpenAI: "https://api.openai.com/v1",
	types.ProviderGroq:   "https://api.groq.com/openai/v1",
}

var defaultOpenAIModels = map[types.ModelProvider]string{
	types.ProviderOpenAI: "gpt-4o-mini",
	types.ProviderGroq:   "llama-3.1-70b-versatile",
}

// OpenAIBackend calls an OpenAI-compatible chat completions endpoint.
// Groq and OpenAI share this wire format and differ only in base URL.
type OpenAIBackend struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
	MaxRetries  int
	Client      *http.Client

	logger *zap.Logger
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Invoke sends p and returns the first choice's content. JSON mode is
// requested only when both the backend and the prompt ask for it.
func (o *OpenAIBackend) Invoke(ctx context.Context, p Prompt) (string, error) {
	var msgs []chatMessage
	if p.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: p.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: p.User})

	reqBody := chatRequest{
		Model:       o.Model,
		Messages:    msgs,
		Temperature: temperature(p, o.Temperature),
		MaxTokens:   maxTokens(o.MaxTokens),
	}
	if o.JSONMode && p.JSON {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(o.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, o.Client, req, o.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling chat API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat API returned %d: %s", resp.StatusCode, string(body))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}

	logOrNop(o.logger).Debug("model reply",
		zap.String("model", o.Model),
		zap.Int("chars", len(cr.Choices[0].Message.Content)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return cr.Choices[0].Message.Content, nil
}
