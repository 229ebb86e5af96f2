package submission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/speechlab/internal/embedding"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/transcribe"
	"github.com/hyperjump/speechlab/internal/vector"
)

type fixture struct {
	store   *storage.SQLiteStorage
	index   *vector.MemoryIndex
	encoder *embedding.MockEncoder
	ids     map[string]int64
}

func newFixture(t *testing.T, texts ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{store: store, index: vector.NewMemoryIndex(), encoder: embedding.NewMockEncoder(8), ids: map[string]int64{}}
	var entries []vector.Entry
	for _, text := range texts {
		emb, _ := f.encoder.Embed(ctx, text)
		sc := &models.Script{Text: text, Embedding: emb}
		if err := store.CreateScript(ctx, sc); err != nil {
			t.Fatal(err)
		}
		f.ids[text] = sc.ID
		entries = append(entries, vector.Entry{ID: sc.ID, Vector: emb})
	}
	if err := f.index.Build(entries); err != nil {
		t.Fatal(err)
	}
	return f
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "take.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) pipeline(tr transcribe.Transcriber, opts ...Option) *Pipeline {
	return NewPipeline(f.store, f.store, tr, f.encoder, f.index, opts...)
}

func TestSubmit_EndToEnd(t *testing.T) {
	f := newFixture(t, "I like pizza", "I like pasta", "The cat sat")
	p := f.pipeline(transcribe.NewMockTranscriber("I like pasta"))
	ctx := context.Background()

	res, err := p.Submit(ctx, Request{ScriptID: f.ids["I like pizza"], AudioPath: audioFile(t)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score != 75 {
		t.Errorf("score = %v, want 75", res.Score)
	}
	if !reflect.DeepEqual(res.MissingWords, []string{"pizza"}) {
		t.Errorf("missing = %v", res.MissingWords)
	}
	wantFeedback := "Good! A little more practice and it will be perfect. Missing words: pizza. Pay attention to pronouncing these words."
	if res.Feedback != wantFeedback {
		t.Errorf("feedback = %q", res.Feedback)
	}
	if res.RecognizedText != "I like pasta" || res.ScriptID != f.ids["I like pizza"] {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.SimilarScripts) != 2 {
		t.Fatalf("similar = %+v", res.SimilarScripts)
	}
	first := res.SimilarScripts[0]
	if first.ID != f.ids["I like pasta"] || first.Similarity != 100 || first.Text != "I like pasta" {
		t.Errorf("first similar = %+v", first)
	}
	for _, s := range res.SimilarScripts {
		if s.ID == f.ids["I like pizza"] {
			t.Error("source script must be excluded")
		}
	}

	fb, err := f.store.GetFeedback(ctx, res.FeedbackID)
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if fb.AccuracyScore != 75 || fb.RecognizedText != "I like pasta" || fb.FeedbackText != wantFeedback {
		t.Errorf("stored feedback = %+v", fb)
	}
}

func TestSubmit_SimilarCountTruncates(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "d", "e")
	p := f.pipeline(transcribe.NewMockTranscriber("b"), WithSimilarCount(2))
	res, err := p.Submit(context.Background(), Request{ScriptID: f.ids["c"], AudioPath: audioFile(t)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.SimilarScripts) != 2 {
		t.Errorf("similar = %+v", res.SimilarScripts)
	}
	if res.SimilarScripts[0].ID != f.ids["b"] {
		t.Errorf("nearest = %+v", res.SimilarScripts[0])
	}
}

func TestSubmit_ScriptNotFound(t *testing.T) {
	f := newFixture(t, "I like pizza")
	p := f.pipeline(transcribe.NewMockTranscriber("x"))
	_, err := p.Submit(context.Background(), Request{ScriptID: 999, AudioPath: audioFile(t)})
	if !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("err = %v, want ErrScriptNotFound", err)
	}
	if n, _ := f.store.CountFeedback(context.Background()); n != 0 {
		t.Errorf("feedback stored for missing script")
	}
}

func TestSubmit_TranscriptionError(t *testing.T) {
	f := newFixture(t, "I like pizza")
	p := f.pipeline(&transcribe.MockTranscriber{Err: errors.New("model crashed")})
	_, err := p.Submit(context.Background(), Request{ScriptID: f.ids["I like pizza"], AudioPath: audioFile(t)})
	if !errors.Is(err, transcribe.ErrTranscription) {
		t.Errorf("err = %v, want ErrTranscription", err)
	}
	if n, _ := f.store.CountFeedback(context.Background()); n != 0 {
		t.Errorf("feedback stored after transcription failure")
	}
}

type brokenEncoder struct{ *embedding.MockEncoder }

func (brokenEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("encoder offline")
}

func TestSubmit_EncodingErrorKeepsFeedback(t *testing.T) {
	f := newFixture(t, "I like pizza")
	p := NewPipeline(f.store, f.store, transcribe.NewMockTranscriber("I like pizza"),
		brokenEncoder{f.encoder}, f.index)
	_, err := p.Submit(context.Background(), Request{ScriptID: f.ids["I like pizza"], AudioPath: audioFile(t)})
	if !errors.Is(err, embedding.ErrEncoding) {
		t.Errorf("err = %v, want ErrEncoding", err)
	}
	if n, _ := f.store.CountFeedback(context.Background()); n != 1 {
		t.Errorf("feedback count = %d, want 1", n)
	}
}

func TestSubmit_EmptyIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := &models.Script{Text: "I like pizza"}
	if err := f.store.CreateScript(ctx, sc); err != nil {
		t.Fatal(err)
	}
	p := f.pipeline(transcribe.NewMockTranscriber("I like pizza"))
	res, err := p.Submit(ctx, Request{ScriptID: sc.ID, AudioPath: audioFile(t)})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.SimilarScripts == nil || len(res.SimilarScripts) != 0 {
		t.Errorf("similar = %#v, want empty list", res.SimilarScripts)
	}
	if res.Score != 100 {
		t.Errorf("score = %v", res.Score)
	}
}

func TestSubmit_DimensionMismatch(t *testing.T) {
	f := newFixture(t, "I like pizza")
	p := NewPipeline(f.store, f.store, transcribe.NewMockTranscriber("I like pizza"),
		embedding.NewMockEncoder(4), f.index)
	_, err := p.Submit(context.Background(), Request{ScriptID: f.ids["I like pizza"], AudioPath: audioFile(t)})
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestSubmit_SidecarTranscript(t *testing.T) {
	f := newFixture(t, "the cat sat")
	audio := audioFile(t)
	if err := os.WriteFile(audio+".txt", []byte("the dog sat\n"), 0600); err != nil {
		t.Fatal(err)
	}
	p := f.pipeline(transcribe.NewMockTranscriber("unused"))
	res, err := p.Submit(context.Background(), Request{ScriptID: f.ids["the cat sat"], AudioPath: audio})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.MissingWords, []string{"cat"}) {
		t.Errorf("missing = %v", res.MissingWords)
	}
}

func TestPipeline_Evaluate(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil, nil)
	res := p.Evaluate("I like pizza", "I like pizza")
	if res.Score != 100 || len(res.MissingWords) != 0 {
		t.Errorf("res = %+v", res)
	}
}
