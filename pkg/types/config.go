package types

import "time"

// HTTPConfig holds shared HTTP settings used by provider clients.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries bounds retries on rate-limit responses (429/503).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ChunkConfig holds settings for the recursive splitter.
type ChunkConfig struct {
	// Size is the target chunk length in characters (default 512).
	Size int `json:"chunk_size" yaml:"chunk_size"`

	// Overlap is the number of characters shared by adjacent chunks (default 50).
	Overlap int `json:"chunk_overlap" yaml:"chunk_overlap"`
}

// EmbeddingProviderName identifies an embedding backend.
type EmbeddingProviderName string

const (
	EmbeddingTFIDF   EmbeddingProviderName = "tfidf"
	EmbeddingHashing EmbeddingProviderName = "hashing"
	EmbeddingOpenAI  EmbeddingProviderName = "openai"
)

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider selects the backend: tfidf, hashing, or openai.
	Provider EmbeddingProviderName `json:"provider" yaml:"provider"`

	// Model is the remote embedding model (e.g. "text-embedding-3-small").
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey authenticates remote embedding calls.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Dimension is the vector size of the hashing provider (default 1024).
	Dimension int `json:"dimension" yaml:"dimension"`

	// BatchSize is the number of texts per remote request (default 64).
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// ModelProvider identifies a generation-model backend.
type ModelProvider string

const (
	ProviderClaude ModelProvider = "claude"
	ProviderOpenAI ModelProvider = "openai"
	ProviderGroq   ModelProvider = "groq"
)

// ModelConfig holds shared settings for the generation model.
type ModelConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider selects the backend: claude, openai, or groq.
	Provider ModelProvider `json:"provider" yaml:"provider"`

	// Model is the model identifier (e.g. "llama-3.1-70b-versatile").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the model API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Temperature is the sampling temperature for question generation (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens bounds the reply length (default 2000).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// JSONMode requests the provider's structured-output mode when supported.
	JSONMode bool `json:"json_mode" yaml:"json_mode"`
}

// QuestionConfig holds settings for question generation.
type QuestionConfig struct {
	// Count is the number of questions per session (default 5).
	Count int `json:"num_questions" yaml:"num_questions"`
}

// EvaluationConfig holds settings for answer evaluation.
type EvaluationConfig struct {
	ScoreBounds `yaml:",inline"`

	// Temperature is the sampling temperature for grading (default 0.3).
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// StoreBackend identifies the session repository implementation.
type StoreBackend string

const (
	StoreSQLite StoreBackend = "sqlite"
	StoreMemory StoreBackend = "memory"
	StoreRedis  StoreBackend = "redis"
)

// StoreConfig holds settings for durable storage.
type StoreConfig struct {
	// Backend selects the session repository: sqlite, memory, or redis.
	Backend StoreBackend `json:"backend" yaml:"backend"`

	// SessionDB is the SQLite session database path.
	SessionDB string `json:"session_db" yaml:"session_db"`

	// IndexDir is the base directory for per-paper retrieval indexes.
	IndexDir string `json:"index_dir" yaml:"index_dir"`

	// RedisAddr is the Redis address for the redis backend.
	RedisAddr string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`

	// RedisPassword authenticates against Redis.
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`

	// RedisDB selects the Redis logical database.
	RedisDB int `json:"redis_db" yaml:"redis_db"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is the minimum console level: debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// File is the rotated JSON log file (empty disables file output).
	File string `json:"file" yaml:"file"`

	// Production switches the console encoder to JSON.
	Production bool `json:"production" yaml:"production"`
}

// Config groups all engine settings.
type Config struct {
	Chunk      ChunkConfig      `json:"chunk" yaml:"chunk"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Model      ModelConfig      `json:"model" yaml:"model"`
	Question   QuestionConfig   `json:"question" yaml:"question"`
	Evaluation EvaluationConfig `json:"evaluation" yaml:"evaluation"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Chunk: ChunkConfig{Size: 512, Overlap: 50},
		Embedding: EmbeddingConfig{
			HTTPConfig: HTTPConfig{Timeout: 30 * time.Second, MaxRetries: 3},
			Provider:   EmbeddingTFIDF,
			Model:      "text-embedding-3-small",
			Dimension:  1024,
			BatchSize:  64,
		},
		Model: ModelConfig{
			HTTPConfig:  HTTPConfig{Timeout: 60 * time.Second, MaxRetries: 3},
			Provider:    ProviderGroq,
			Model:       "llama-3.1-70b-versatile",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Question: QuestionConfig{Count: 5},
		Evaluation: EvaluationConfig{
			ScoreBounds: DefaultScoreBounds,
			Temperature: 0.3,
		},
		Store: StoreConfig{
			Backend:   StoreSQLite,
			SessionDB: "data/sessions.db",
			IndexDir:  "data/index",
		},
		Log: LogConfig{Level: "info", File: "logs/viva-examiner.log"},
	}
}
