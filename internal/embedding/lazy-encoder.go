package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/speechlab/internal/lazy"
)

// LazyEncoder defers construction of a heavy encoder (model load) until the
// first Embed. A failed construction is retried on the next call.
type LazyEncoder struct {
	value      *lazy.Value[Encoder]
	dimensions int
}

// NewLazyEncoder wraps open. dimensions is reported before the encoder is loaded.
func NewLazyEncoder(dimensions int, open func(ctx context.Context) (Encoder, error)) *LazyEncoder {
	return &LazyEncoder{value: lazy.New(open), dimensions: dimensions}
}

func (l *LazyEncoder) get(ctx context.Context) (Encoder, error) {
	enc, err := l.value.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load encoder: %w", err)
	}
	return enc, nil
}

// Embed loads the encoder if needed and embeds text.
func (l *LazyEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	enc, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return enc.Embed(ctx, text)
}

// EmbedBatch loads the encoder if needed and embeds texts.
func (l *LazyEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	enc, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return enc.EmbedBatch(ctx, texts)
}

// Dimensions returns the configured dimension without loading the encoder.
func (l *LazyEncoder) Dimensions() int {
	return l.dimensions
}

// Loaded reports whether the wrapped encoder has been constructed.
func (l *LazyEncoder) Loaded() bool {
	return l.value.Ready()
}

// Close closes the wrapped encoder if it was loaded.
func (l *LazyEncoder) Close() error {
	return l.value.Close(func(e Encoder) error { return e.Close() })
}
