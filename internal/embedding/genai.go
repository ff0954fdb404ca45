package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAIEngine creates a new GenAI embedding engine.
func NewGenAIEngine(ctx context.Context, apiKey, model string, dims int) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dims <= 0 {
		dims = 3072
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{client: client, model: model, dims: dims}, nil
}

// taskType maps the input mode to a Gemini retrieval task type.
func taskType(mode InputType) string {
	if mode == InputQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string, mode InputType) (Result, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	dims := int32(e.dims)

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType(mode),
		OutputDimensionality: &dims,
	})
	if err != nil {
		return Result{}, providerError(e.Name(), err)
	}
	if len(result.Embeddings) == 0 {
		return Result{}, providerError(e.Name(), fmt.Errorf("no embeddings returned"))
	}

	emb := result.Embeddings[0]
	tokens := estimateTokens(text)
	if emb.Statistics != nil && emb.Statistics.TokenCount > 0 {
		tokens = int64(emb.Statistics.TokenCount)
	}
	return Result{Vector: emb.Values, Tokens: tokens}, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *GenAIEngine) Dimensions() int { return e.dims }

// Name returns the engine name.
func (e *GenAIEngine) Name() string { return fmt.Sprintf("genai:%s", e.model) }

// Source returns the cost source.
func (e *GenAIEngine) Source() string { return "genai" }
