package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestEmbeddingCache_GetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a")
	c.Set("c", []float32{3}) // evicts b, not a
	if _, ok := c.Get("a"); !ok {
		t.Error("recently read a should survive")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
}

// countingEncoder counts backend calls and can block to exercise singleflight.
type countingEncoder struct {
	calls   atomic.Int32
	batches atomic.Int32
	delay   time.Duration
	err     error
}

func (e *countingEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	time.Sleep(e.delay)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text))}, nil
}

func (e *countingEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (e *countingEncoder) Dimensions() int { return 1 }
func (e *countingEncoder) Close() error    { return nil }

func TestCachingEncoder_Embed(t *testing.T) {
	inner := &countingEncoder{}
	enc := NewCachingEncoder(inner, 10)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := enc.Embed(ctx, "hello")
		if err != nil || v[0] != 5 {
			t.Fatalf("Embed = %v, %v", v, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", inner.calls.Load())
	}
}

func TestCachingEncoder_SharesConcurrentCalls(t *testing.T) {
	inner := &countingEncoder{delay: 50 * time.Millisecond}
	enc := NewCachingEncoder(inner, 10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := enc.Embed(context.Background(), "same text"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := inner.calls.Load(); n > 2 {
		t.Errorf("backend called %d times for one text", n)
	}
}

func TestCachingEncoder_ErrorsNotCached(t *testing.T) {
	inner := &countingEncoder{err: errors.New("backend down")}
	enc := NewCachingEncoder(inner, 10)
	if _, err := enc.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	if _, err := enc.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", inner.calls.Load())
	}
}

func TestCachingEncoder_EmbedBatchOnlyMisses(t *testing.T) {
	inner := &countingEncoder{}
	enc := NewCachingEncoder(inner, 10)
	ctx := context.Background()
	_, _ = enc.Embed(ctx, "ab")

	out, err := enc.EmbedBatch(ctx, []string{"ab", "abc", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if out[0][0] != 2 || out[1][0] != 3 || out[2][0] != 1 {
		t.Errorf("EmbedBatch = %v", out)
	}
	if inner.batches.Load() != 1 {
		t.Errorf("batches = %d, want 1", inner.batches.Load())
	}
	if _, err := enc.EmbedBatch(ctx, []string{"abc", "a"}); err != nil {
		t.Fatal(err)
	}
	if inner.batches.Load() != 1 {
		t.Error("fully cached batch should not reach the backend")
	}
}

func TestMockEncoder(t *testing.T) {
	enc := NewMockEncoder(16)
	ctx := context.Background()
	a, _ := enc.Embed(ctx, "hello world")
	b, _ := enc.Embed(ctx, "hello world")
	c, _ := enc.Embed(ctx, "goodbye")
	if len(a) != 16 || enc.Dimensions() != 16 {
		t.Fatalf("dimension: got %d", len(a))
	}
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock encoder should be deterministic")
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts should embed differently")
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if norm < 0.999 || norm > 1.001 {
		t.Errorf("expected unit norm, got %v", norm)
	}
}
