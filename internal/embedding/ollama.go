package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaEngine generates embeddings using a local Ollama server.
type OllamaEngine struct {
	endpoint string
	model    string
	dims     int
	client   *http.Client
}

// NewOllamaEngine creates a new Ollama embedding engine.
func NewOllamaEngine(endpoint, model string, dims int, timeout time.Duration) (*OllamaEngine, error) {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	if dims <= 0 {
		// embeddinggemma: 768 dimensions
		dims = 768
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OllamaEngine{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		dims:     dims,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Embed generates an embedding for a single text. Ollama has no notion of
// query versus document input, so mode is ignored.
func (e *OllamaEngine) Embed(ctx context.Context, text string, _ InputType) (Result, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Result{}, providerError(e.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, providerError(e.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, providerError(e.Name(), fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Embeddings) == 0 {
		return Result{}, providerError(e.Name(), fmt.Errorf("no embeddings returned"))
	}

	tokens := result.PromptEvalCount
	if tokens == 0 {
		tokens = estimateTokens(text)
	}
	return Result{Vector: result.Embeddings[0], Tokens: tokens}, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *OllamaEngine) Dimensions() int { return e.dims }

// Name returns the engine name.
func (e *OllamaEngine) Name() string { return fmt.Sprintf("ollama:%s", e.model) }

// Source returns the cost source.
func (e *OllamaEngine) Source() string { return "ollama" }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float32 `json:"embeddings"`
	PromptEvalCount int64       `json:"prompt_eval_count"`
}
