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

// VoyageEngine calls the Voyage AI embeddings API.
type VoyageEngine struct {
	apiKey   string
	model    string
	endpoint string
	dims     int
	client   *http.Client
}

// NewVoyageEngine creates a Voyage engine. baseURL defaults to the public API.
func NewVoyageEngine(apiKey, model, baseURL string, dims int, timeout time.Duration) (*VoyageEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("voyage API key is required")
	}
	if model == "" {
		model = "voyage-3.5"
	}
	if baseURL == "" {
		baseURL = "https://api.voyageai.com"
	}
	if dims <= 0 {
		dims = 1024
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VoyageEngine{
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimRight(baseURL, "/") + "/v1/embeddings",
		dims:     dims,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Embed generates an embedding for a single text.
func (e *VoyageEngine) Embed(ctx context.Context, text string, mode InputType) (Result, error) {
	body, err := json.Marshal(voyageEmbedRequest{
		Input:     []string{text},
		Model:     e.model,
		InputType: string(mode),
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Result{}, providerError(e.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, providerError(e.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var result voyageEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, providerError(e.Name(), fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Data) == 0 {
		return Result{}, providerError(e.Name(), fmt.Errorf("no embeddings returned"))
	}

	return Result{Vector: result.Data[0].Embedding, Tokens: result.Usage.TotalTokens}, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *VoyageEngine) Dimensions() int { return e.dims }

// Name returns the engine name.
func (e *VoyageEngine) Name() string { return "voyage:" + e.model }

// Source returns the cost source.
func (e *VoyageEngine) Source() string { return "voyage" }

type voyageEmbedRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type,omitempty"`
}

type voyageEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}
