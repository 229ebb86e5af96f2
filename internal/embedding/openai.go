package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = oai.EmbeddingModelTextEmbedding3Small

// OpenAIEncoder calls the OpenAI embeddings API.
type OpenAIEncoder struct {
	client     oai.Client
	model      string
	dimensions int
}

// NewOpenAIEncoder creates an encoder for model. baseURL may point at any
// OpenAI-compatible endpoint; empty uses the public API.
func NewOpenAIEncoder(apiKey, model, baseURL string, timeout time.Duration) (*OpenAIEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai encoder: OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAIEncoder{
		client:     oai.NewClient(opts...),
		model:      model,
		dimensions: openAIModelDimensions(model),
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: e.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// EmbedBatch embeds all texts in one request.
func (e *OpenAIEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: e.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed batch: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embed batch: unexpected index %d", d.Index)
		}
		out[d.Index] = toFloat32(d.Embedding)
	}
	return out, nil
}

// Dimensions returns the known output size of the configured model.
func (e *OpenAIEncoder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OpenAIEncoder) Close() error {
	return nil
}

func openAIModelDimensions(model string) int {
	if strings.Contains(strings.ToLower(model), "text-embedding-3-large") {
		return 3072
	}
	return 1536
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
