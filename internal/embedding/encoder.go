// Package embedding turns script and transcript text into sentence embeddings.
package embedding

import (
	"context"
	"errors"
)

// ErrEncoding marks failures of the encoder backend.
var ErrEncoding = errors.New("encoding failed")

// Encoder produces fixed-length vector embeddings for text.
type Encoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// embedEach implements EmbedBatch for encoders without a native batch call.
func embedEach(ctx context.Context, e Encoder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
