package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

const openaiEmbedTimeout = 30 * time.Second

type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider backed by the OpenAI embeddings API.
// The client reads OPENAI_API_KEY from the environment.
func NewOpenAIProvider(model string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Embed(texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("embedding text is empty")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), openaiEmbedTimeout)
	defer cancel()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(p.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed count mismatch: expected %d, got %d", len(texts), len(resp.Data))
	}

	// The API may return items out of order; Index maps them back.
	vectors := make([][]float64, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, fmt.Errorf("openai embed returned out-of-range index %d", item.Index)
		}
		vectors[idx] = item.Embedding
	}
	for i, vector := range vectors {
		if len(vector) == 0 {
			return nil, fmt.Errorf("openai embed returned empty vector at index %d", i)
		}
	}
	return vectors, nil
}
