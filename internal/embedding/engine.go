// Package embedding turns memory text into vectors. Supported backends are
// Voyage AI, Google GenAI and Ollama (local), plus a deterministic mock.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memoryd/internal/logging"
)

// ErrProvider wraps every failure reported by an embedding backend.
var ErrProvider = errors.New("embedding: provider error")

// InputType tells the provider whether text is being stored or searched for.
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// Result is one embedding and the tokens the provider billed for it.
type Result struct {
	Vector []float32
	Tokens int64
}

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string, mode InputType) (Result, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name, e.g. "voyage:voyage-3.5".
	Name() string

	// Source returns the cost source the engine bills against.
	Source() string
}

// Config holds embedding engine configuration.
type Config struct {
	Provider   string // voyage, genai, ollama, mock
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.EmbeddingDebug("Engine config: provider=%s, model=%s, base_url=%s, dims=%d",
		cfg.Provider, cfg.Model, cfg.BaseURL, cfg.Dimensions)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "voyage":
		engine, err = NewVoyageEngine(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Dimensions, cfg.Timeout)
	case "genai":
		engine, err = NewGenAIEngine(context.Background(), cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.Timeout)
	case "mock":
		engine = NewMockEngine(cfg.Dimensions)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use voyage, genai, ollama or mock)", cfg.Provider)
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine created: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// estimateTokens approximates a token count at four characters per token
// for providers that do not report usage.
func estimateTokens(text string) int64 {
	n := int64(len(text)+3) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

func providerError(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProvider, name, err)
}

// Release frees resources held by engine wrappers such as Cached.
func Release(e Engine) {
	if c, ok := e.(interface{ Close() }); ok {
		c.Close()
	}
}
