// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: anthropic-api-key, openai-api-key, groq-api-key, redis-password.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// Key file names.
const (
	AnthropicKey  = "anthropic-api-key"
	OpenAIKey     = "openai-api-key"
	GroqKey       = "groq-api-key"
	RedisPassword = "redis-password"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// ModelKey returns the secret that authenticates provider, or "".
func ModelKey(secrets map[string]string, provider types.ModelProvider) string {
	switch provider {
	case types.ProviderClaude:
		return secrets[AnthropicKey]
	case types.ProviderOpenAI:
		return secrets[OpenAIKey]
	case types.ProviderGroq, "":
		return secrets[GroqKey]
	}
	return ""
}

// Apply fills empty credentials in cfg from secrets. Values already set
// through the config file or environment win.
func Apply(cfg *types.Config, secrets map[string]string) {
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = ModelKey(secrets, cfg.Model.Provider)
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == types.EmbeddingOpenAI {
		cfg.Embedding.APIKey = secrets[OpenAIKey]
	}
	if cfg.Store.RedisPassword == "" {
		cfg.Store.RedisPassword = secrets[RedisPassword]
	}
}
