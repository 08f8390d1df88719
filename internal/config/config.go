package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo holds basic application metadata.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LoggerConfig configures the log level ("debug", "info", "warn", "error").
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// GeminiConfig configures the embedding and generation models. The API key
// may be left empty in the file and supplied through the GEMINI_API_KEY
// environment variable instead.
type GeminiConfig struct {
	APIKey          string `yaml:"apiKey"`
	EmbeddingModel  string `yaml:"embeddingModel"`
	GenerationModel string `yaml:"generationModel"`
	// Dimension is the fixed embedding vector length. Every vector
	// stored in or queried against the vector store must have exactly
	// this length.
	Dimension int `yaml:"dimension"`
}

// MilvusConfig holds the Milvus connection settings.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is "milvus" or "memory". The memory backend keeps vectors
	// in-process and is intended for local development.
	Backend string       `yaml:"backend"`
	Milvus  MilvusConfig `yaml:"milvus"`
}

// RetryConfig is the backoff policy applied to failing upsert sub-batches.
type RetryConfig struct {
	MaxAttempts int     `yaml:"maxAttempts"`
	BaseDelay   string  `yaml:"baseDelay"` // e.g. "200ms"
	Multiplier  float64 `yaml:"multiplier"`
}

// RAGConfig holds the pipeline tunables. All of these are deployment-time
// configuration; only top_k is a request-time parameter.
type RAGConfig struct {
	ChunkSize        int         `yaml:"chunkSize"`
	ChunkOverlap     int         `yaml:"chunkOverlap"`
	MaxChunks        int         `yaml:"maxChunks"`
	BatchSize        int         `yaml:"batchSize"`
	DefaultTopK      int         `yaml:"defaultTopK"`
	MaxTopK          int         `yaml:"maxTopK"`
	MaxFileSizeMB    int         `yaml:"maxFileSizeMB"`
	ContextBudget    int         `yaml:"contextBudget"`  // characters of assembled context
	RequestTimeout   string      `yaml:"requestTimeout"` // per external call, e.g. "30s"
	EmbedConcurrency int         `yaml:"embedConcurrency"`
	Retry            RetryConfig `yaml:"retry"`
}

// RouteLimitConfig configures one rate limiter instance.
type RouteLimitConfig struct {
	Rate     float64 `yaml:"rate"` // tokens or requests per second
	Capacity int     `yaml:"capacity"`
}

// RateLimiterConfig selects the limiting algorithm and per-route limits.
// The clear route gets its own, much stricter limiter given that clearing
// the index is irreversible.
type RateLimiterConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Algorithm string           `yaml:"algorithm"` // "tokenBucket", "fixedWindow", "slidingLog"
	Window    string           `yaml:"window"`    // for the window-based algorithms
	Default   RouteLimitConfig `yaml:"default"`
	Clear     RouteLimitConfig `yaml:"clear"`
}

// CircuitBreakerConfig configures the breaker wrapped around the routes
// that fan out to external services.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"`
}

// MiddlewareConfig groups the HTTP middleware settings.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig is the root of the YAML configuration file. It is loaded once
// at startup and passed into constructors; nothing mutates it afterwards.
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	RAG         RAGConfig         `yaml:"rag"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration file at path, applies
// environment overrides for secrets, and validates the pipeline tunables.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file '%s': %w", path, err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	r := c.RAG
	if r.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunkSize must be positive, got %d", r.ChunkSize)
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("rag.chunkOverlap must satisfy 0 <= overlap < chunkSize, got %d", r.ChunkOverlap)
	}
	if r.MaxChunks <= 0 {
		return fmt.Errorf("rag.maxChunks must be positive, got %d", r.MaxChunks)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("rag.batchSize must be positive, got %d", r.BatchSize)
	}
	if r.MaxTopK <= 0 || r.DefaultTopK <= 0 || r.DefaultTopK > r.MaxTopK {
		return fmt.Errorf("rag topK bounds invalid: defaultTopK=%d maxTopK=%d", r.DefaultTopK, r.MaxTopK)
	}
	if c.Gemini.Dimension <= 0 {
		return fmt.Errorf("gemini.dimension must be positive, got %d", c.Gemini.Dimension)
	}
	if _, err := time.ParseDuration(r.RequestTimeout); err != nil {
		return fmt.Errorf("rag.requestTimeout is not a duration: %w", err)
	}
	if _, err := time.ParseDuration(r.Retry.BaseDelay); err != nil {
		return fmt.Errorf("rag.retry.baseDelay is not a duration: %w", err)
	}
	return nil
}

// RequestTimeoutDuration returns the parsed per-call timeout. validate()
// already guaranteed it parses.
func (c *AppConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RAG.RequestTimeout)
	return d
}

// RetryBaseDelay returns the parsed backoff base delay.
func (c *AppConfig) RetryBaseDelay() time.Duration {
	d, _ := time.ParseDuration(c.RAG.Retry.BaseDelay)
	return d
}

// MaxFileSizeBytes returns the upload size cap in bytes.
func (c *AppConfig) MaxFileSizeBytes() int64 {
	return int64(c.RAG.MaxFileSizeMB) * 1024 * 1024
}
