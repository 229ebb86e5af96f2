package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/speechlab/internal/config"
)

func TestNew_Mock(t *testing.T) {
	enc, err := New(config.EmbeddingConfig{Provider: "mock", Dimensions: 8, CacheSize: 4}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	if _, ok := enc.(*CachingEncoder); !ok {
		t.Errorf("expected caching wrapper, got %T", enc)
	}
	v, err := enc.Embed(context.Background(), "hi")
	if err != nil || len(v) != 8 {
		t.Errorf("Embed = %v, %v", v, err)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(config.EmbeddingConfig{Provider: "word2vec"}, "", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	if _, err := New(config.EmbeddingConfig{Provider: "openai"}, "", nil); err == nil {
		t.Error("expected error without api key")
	}
}

func TestNew_ONNXIsLazy(t *testing.T) {
	enc, err := New(config.EmbeddingConfig{Provider: "onnx", ModelPath: "/nonexistent/model.onnx", Dimensions: 384, CacheSize: 4}, "", nil)
	if err != nil {
		t.Fatalf("construction should not load the model: %v", err)
	}
	if enc.Dimensions() != 384 {
		t.Errorf("Dimensions = %d", enc.Dimensions())
	}
	if _, err := enc.Embed(context.Background(), "x"); err == nil {
		t.Error("expected load error on first use")
	}
}

func TestLazyEncoder(t *testing.T) {
	opens := 0
	fail := true
	enc := NewLazyEncoder(4, func(ctx context.Context) (Encoder, error) {
		opens++
		if fail {
			return nil, errors.New("not yet")
		}
		return NewMockEncoder(4), nil
	})
	if enc.Loaded() {
		t.Fatal("should not load eagerly")
	}
	if _, err := enc.Embed(context.Background(), "a"); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	if _, err := enc.Embed(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := enc.EmbedBatch(context.Background(), []string{"b", "c"}); err != nil {
		t.Fatal(err)
	}
	if opens != 2 || !enc.Loaded() {
		t.Errorf("opens = %d, loaded = %v", opens, enc.Loaded())
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}
