// Package config loads application configuration from the environment, with
// an optional .env file for local development. Variables set in the process
// environment win over the file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the full application configuration. One struct serves every
// binary; each consumes the fields it needs.
type Config struct {
	// HTTP API
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"60m"`

	// MongoDB
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB  string `env:"MONGO_DB" envDefault:"askdocs"`

	// Qdrant vector index
	QdrantAddr       string `env:"QDRANT_ADDR" envDefault:"localhost:6334"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"doc_chunks"`

	// Ollama embeddings
	OllamaURL     string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	EmbedModel    string `env:"EMBED_MODEL" envDefault:"nomic-embed-text"`
	EmbeddingDims int    `env:"EMBEDDING_DIMS" envDefault:"768"`

	// Groq generation
	GroqAPIKey      string  `env:"GROQ_API_KEY,notEmpty"`
	GroqModel       string  `env:"GROQ_MODEL" envDefault:"llama-3.1-8b-instant"`
	GroqTemperature float32 `env:"GROQ_TEMPERATURE" envDefault:"0.7"`

	// NATS ingest queue
	NATSURL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	// Retrieval and chunking
	TopK          int           `env:"TOP_K" envDefault:"5"`
	SearchTimeout time.Duration `env:"SEARCH_TIMEOUT" envDefault:"5s"`
	ChunkSize     int           `env:"CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap  int           `env:"CHUNK_OVERLAP" envDefault:"200"`
	HistoryLimit  int           `env:"HISTORY_LIMIT" envDefault:"20"`

	// Generation rate limit, calls per second across all requests.
	LLMRate  float64 `env:"LLM_RATE" envDefault:"5"`
	LLMBurst int     `env:"LLM_BURST" envDefault:"10"`

	// Ingest worker
	WatchDir string `env:"WATCH_DIR"`
}

// Load reads .env if present, parses the environment, and validates the
// result. A missing .env file is not an error; containerized deployments set
// variables externally.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that tags cannot express.
func (c Config) Validate() error {
	var problems []error
	if c.ChunkSize <= 0 {
		problems = append(problems, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		problems = append(problems, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.TopK <= 0 {
		problems = append(problems, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	if c.EmbeddingDims <= 0 {
		problems = append(problems, fmt.Errorf("EMBEDDING_DIMS must be positive, got %d", c.EmbeddingDims))
	}
	if c.GroqTemperature < 0 || c.GroqTemperature > 2 {
		problems = append(problems, fmt.Errorf("GROQ_TEMPERATURE must be in [0, 2], got %g", c.GroqTemperature))
	}
	if c.MaxUploadBytes <= 0 {
		problems = append(problems, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	return errors.Join(problems...)
}
