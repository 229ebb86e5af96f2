package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/config"
	"github.com/hyperjump/speechlab/internal/embedding"
	"github.com/hyperjump/speechlab/internal/evaluator"
	"github.com/hyperjump/speechlab/internal/indexer"
	"github.com/hyperjump/speechlab/internal/keyword"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/server"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/submission"
	"github.com/hyperjump/speechlab/internal/transcribe"
	"github.com/hyperjump/speechlab/internal/vector"
)

const e2eDimensions = 8

type harness struct {
	cfg         *config.Config
	store       *storage.SQLiteStorage
	vec         *vector.MemoryIndex
	catalog     *indexer.Indexer
	transcriber *transcribe.MockTranscriber
	handler     http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{
		DatabasePath:    filepath.Join(dir, "db.sqlite"),
		BleveIndexPath:  filepath.Join(dir, "bleve"),
		VectorIndexPath: filepath.Join(dir, "vectors.bin"),
		UploadDir:       filepath.Join(dir, "uploads"),
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	kw, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })

	enc := embedding.NewMockEncoder(e2eDimensions)
	vec := vector.NewMemoryIndex()
	catalog := indexer.NewIndexer(store, enc, vec, kw, cfg.Storage.VectorIndexPath)
	tr := transcribe.NewMockTranscriber("")
	pipeline := submission.NewPipeline(store, store, tr, enc, vec,
		submission.WithEvaluator(evaluator.New()))
	uploads, err := submission.NewUploads(cfg.Storage.UploadDir, 0)
	if err != nil {
		t.Fatal(err)
	}
	srv := server.NewServer(store, catalog, pipeline, uploads, vec, cfg, zap.NewNop())
	return &harness{
		cfg:         cfg,
		store:       store,
		vec:         vec,
		catalog:     catalog,
		transcriber: tr,
		handler:     srv.Router(),
	}
}

// importCorpus writes each lesson in a different format and imports the inbox.
func (h *harness) importCorpus(t *testing.T, c *Corpus) *indexer.ImportResult {
	t.Helper()
	inbox := filepath.Join(t.TempDir(), "inbox")
	if err := os.MkdirAll(inbox, 0755); err != nil {
		t.Fatal(err)
	}
	for i, l := range c.Lessons {
		ext := SupportedFileExtensions[i%len(SupportedFileExtensions)]
		content, err := WriteMinimalFile(ext, l.Sentences)
		if err != nil {
			t.Fatalf("fixture %s: %v", ext, err)
		}
		if err := os.WriteFile(filepath.Join(inbox, l.Name+ext), content, 0644); err != nil {
			t.Fatal(err)
		}
	}
	res, err := h.catalog.ImportDirectory(context.Background(), inbox, SupportedFileExtensions)
	if err != nil {
		t.Fatalf("ImportDirectory: %v", err)
	}
	return res
}

func (h *harness) submit(t *testing.T, scriptID int64, heard string) models.SubmissionResult {
	t.Helper()
	h.transcriber.Text = heard
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("script_id", fmt.Sprint(scriptID))
	fw, err := mw.CreateFormFile("audio", "take.wav")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("RIFF"))
	_ = mw.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/submit", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: status %d, body %s", w.Code, w.Body.String())
	}
	var res models.SubmissionResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestE2E_ImportEveryFormat(t *testing.T) {
	h := newHarness(t)
	c := BuildCorpus()

	res := h.importCorpus(t, c)
	total := len(c.Sentences())
	if res.Files != len(c.Lessons) || res.Added != total || res.Skipped != 0 {
		t.Errorf("import result = %+v, want %d files and %d scripts", res, len(c.Lessons), total)
	}
	if h.vec.Size() != total || h.vec.Dimension() != e2eDimensions {
		t.Errorf("index size=%d dim=%d", h.vec.Size(), h.vec.Dimension())
	}
	ctx := context.Background()
	for _, s := range c.Sentences() {
		sc, err := h.store.FindScriptByText(ctx, s)
		if err != nil {
			t.Errorf("sentence %q not imported: %v", s, err)
			continue
		}
		if !strings.HasPrefix(sc.Source, indexer.SourceFile) {
			t.Errorf("sentence %q has source %q", s, sc.Source)
		}
	}

	again := h.importCorpus(t, c)
	if again.Added != 0 || again.Skipped != total {
		t.Errorf("re-import = %+v, want everything skipped", again)
	}
}

func TestE2E_PracticeWords(t *testing.T) {
	h := newHarness(t)
	c := BuildCorpus()
	h.importCorpus(t, c)

	for _, pc := range c.Practice {
		t.Run(pc.Word, func(t *testing.T) {
			scripts, err := h.catalog.PracticeScripts(context.Background(), pc.Word, 10)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, sc := range scripts {
				got = append(got, sc.Text)
			}
			sort.Strings(got)
			want := append([]string(nil), pc.Expected...)
			sort.Strings(want)
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("practice %q = %v, want %v", pc.Word, got, want)
			}
		})
	}
}

func TestE2E_SubmissionFlow(t *testing.T) {
	h := newHarness(t)
	c := BuildCorpus()
	h.importCorpus(t, c)
	ctx := context.Background()

	pizza, err := h.store.FindScriptByText(ctx, "I like pizza.")
	if err != nil {
		t.Fatal(err)
	}

	perfect := h.submit(t, pizza.ID, "I like pizza")
	if perfect.Score != 100 || len(perfect.MissingWords) != 0 {
		t.Errorf("perfect take = %+v", perfect)
	}
	// The submitted script may occupy one of the k slots.
	if n := len(perfect.SimilarScripts); n < submission.DefaultSimilarCount-1 || n > submission.DefaultSimilarCount {
		t.Errorf("similar scripts = %d, want %d or %d", n, submission.DefaultSimilarCount-1, submission.DefaultSimilarCount)
	}
	for _, s := range perfect.SimilarScripts {
		if s.ID == pizza.ID {
			t.Error("similar scripts include the submitted script")
		}
	}

	partial := h.submit(t, pizza.ID, "I like pasta")
	if partial.Score != 75 {
		t.Errorf("partial score = %v, want 75", partial.Score)
	}
	if len(partial.MissingWords) != 1 || partial.MissingWords[0] != "pizza" {
		t.Errorf("missing = %v", partial.MissingWords)
	}

	guitar, err := h.store.FindScriptByText(ctx, "The guitar is loud.")
	if err != nil {
		t.Fatal(err)
	}
	h.submit(t, guitar.ID, "the is loud")

	r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/dashboard", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	var stats models.DashboardStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalSubmissions != 3 {
		t.Errorf("total submissions = %d", stats.TotalSubmissions)
	}
	want := []models.WordCount{{Word: "guitar", Count: 1}, {Word: "pizza", Count: 1}}
	if fmt.Sprint(stats.TopMissingWords) != fmt.Sprint(want) {
		t.Errorf("top missing = %v, want %v", stats.TopMissingWords, want)
	}
}

func TestE2E_RestartRestoresIndex(t *testing.T) {
	h := newHarness(t)
	c := BuildCorpus()
	h.importCorpus(t, c)

	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	defer kw.Close()
	restored := vector.NewMemoryIndex()
	catalog := indexer.NewIndexer(h.store, embedding.NewMockEncoder(e2eDimensions), restored, kw, h.cfg.Storage.VectorIndexPath)
	if err := catalog.LoadIndex(context.Background()); err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if restored.Size() != h.vec.Size() || restored.SnapshotID() != h.vec.SnapshotID() {
		t.Errorf("restored size=%d snapshot=%s, want size=%d snapshot=%s",
			restored.Size(), restored.SnapshotID(), h.vec.Size(), h.vec.SnapshotID())
	}
	scripts, err := catalog.PracticeScripts(context.Background(), "umbrella", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) != 1 {
		t.Errorf("keyword index not repopulated: %d scripts", len(scripts))
	}
}
