package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/pdiddy/viva-examiner/pkg/types"
)

// loadConfig overlays every key set in the config file, environment, or
// flags onto types.DefaultConfig.
func loadConfig() (types.Config, error) {
	c := types.DefaultConfig()

	setInt(&c.Chunk.Size, "chunk.chunk_size")
	setInt(&c.Chunk.Overlap, "chunk.chunk_overlap")

	setString((*string)(&c.Embedding.Provider), "embedding.provider")
	setString(&c.Embedding.Model, "embedding.model")
	setString(&c.Embedding.BaseURL, "embedding.base_url")
	setString(&c.Embedding.APIKey, "embedding.api_key")
	setInt(&c.Embedding.Dimension, "embedding.dimension")
	setInt(&c.Embedding.BatchSize, "embedding.batch_size")
	setHTTP(&c.Embedding.HTTPConfig, "embedding")

	setString((*string)(&c.Model.Provider), "model.provider")
	setString(&c.Model.Model, "model.model")
	setString(&c.Model.APIKey, "model.api_key")
	setString(&c.Model.BaseURL, "model.base_url")
	setFloat(&c.Model.Temperature, "model.temperature")
	setInt(&c.Model.MaxTokens, "model.max_tokens")
	setBool(&c.Model.JSONMode, "model.json_mode")
	setHTTP(&c.Model.HTTPConfig, "model")

	setInt(&c.Question.Count, "question.num_questions")

	setInt(&c.Evaluation.Min, "evaluation.min_score")
	setInt(&c.Evaluation.Max, "evaluation.max_score")
	setFloat(&c.Evaluation.Temperature, "evaluation.temperature")

	setString((*string)(&c.Store.Backend), "store.backend")
	setString(&c.Store.SessionDB, "store.session_db")
	setString(&c.Store.IndexDir, "store.index_dir")
	setString(&c.Store.RedisAddr, "store.redis_addr")
	setString(&c.Store.RedisPassword, "store.redis_password")
	setInt(&c.Store.RedisDB, "store.redis_db")

	setString(&c.Log.Level, "log.level")
	setString(&c.Log.File, "log.file")
	setBool(&c.Log.Production, "log.production")

	if c.Chunk.Overlap >= c.Chunk.Size {
		return c, fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.Chunk.Overlap, c.Chunk.Size)
	}
	if !c.Evaluation.Valid() {
		return c, fmt.Errorf("min_score (%d) exceeds max_score (%d)", c.Evaluation.Min, c.Evaluation.Max)
	}
	return c, nil
}

// providerEnv names the conventional API key variable of each provider.
var providerEnv = map[types.ModelProvider]string{
	types.ProviderClaude: "ANTHROPIC_API_KEY",
	types.ProviderOpenAI: "OPENAI_API_KEY",
	types.ProviderGroq:   "GROQ_API_KEY",
}

// applyProviderEnv fills still-empty API keys from the provider's
// conventional environment variable.
func applyProviderEnv(c *types.Config) {
	if c.Model.APIKey == "" {
		c.Model.APIKey = os.Getenv(providerEnv[c.Model.Provider])
	}
	if c.Embedding.APIKey == "" && c.Embedding.Provider == types.EmbeddingOpenAI {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func setHTTP(h *types.HTTPConfig, prefix string) {
	if viper.IsSet(prefix + ".timeout") {
		h.Timeout = viper.GetDuration(prefix + ".timeout")
	}
	setInt(&h.MaxRetries, prefix+".max_retries")
}

func setString(dst *string, key string) {
	if viper.IsSet(key) && viper.GetString(key) != "" {
		*dst = viper.GetString(key)
	}
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func setFloat(dst *float64, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetFloat64(key)
	}
}

func setBool(dst *bool, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetBool(key)
	}
}
