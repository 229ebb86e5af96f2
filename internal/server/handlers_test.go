package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/config"
	"github.com/hyperjump/speechlab/internal/embedding"
	"github.com/hyperjump/speechlab/internal/evaluator"
	"github.com/hyperjump/speechlab/internal/indexer"
	"github.com/hyperjump/speechlab/internal/keyword"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/submission"
	"github.com/hyperjump/speechlab/internal/transcribe"
	"github.com/hyperjump/speechlab/internal/vector"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testEnv struct {
	srv         *Server
	handler     http.Handler
	store       *storage.SQLiteStorage
	catalog     *indexer.Indexer
	transcriber *transcribe.MockTranscriber
	cfg         *config.Config
	dir         string
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080, MaxUploadBytes: 1 << 10},
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db.sqlite"),
			BleveIndexPath:  filepath.Join(dir, "bleve"),
			VectorIndexPath: filepath.Join(dir, "vectors.idx"),
			UploadDir:       filepath.Join(dir, "uploads"),
		},
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

	enc := embedding.NewMockEncoder(8)
	vec := vector.NewMemoryIndex()
	catalog := indexer.NewIndexer(store, enc, vec, kw, cfg.Storage.VectorIndexPath)
	tr := transcribe.NewMockTranscriber("I like pasta")
	pipeline := submission.NewPipeline(store, store, tr, enc, vec,
		submission.WithEvaluator(evaluator.New(evaluator.WithTemplates(evaluator.EnglishTemplates))))
	uploads, err := submission.NewUploads(cfg.Storage.UploadDir, cfg.Server.MaxUploadBytes)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(store, catalog, pipeline, uploads, vec, cfg, zap.NewNop(), opts...)
	return &testEnv{
		srv:         srv,
		handler:     srv.Router(),
		store:       store,
		catalog:     catalog,
		transcriber: tr,
		cfg:         cfg,
		dir:         dir,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) submit(t *testing.T, scriptID, filename string, audio []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if scriptID != "" {
		_ = mw.WriteField("script_id", scriptID)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(audio)
	}
	_ = mw.Close()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/submit", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleCreateAndGetScript(t *testing.T) {
	env := newTestEnv(t)
	body, _ := json.Marshal(map[string]string{"text": " I like pizza "})
	w := env.do(t, http.MethodPost, "/api/v1/scripts", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var created models.Script
	decode(t, w, &created)
	if created.ID == 0 || created.Text != "I like pizza" {
		t.Errorf("created: %+v", created)
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/scripts/%d", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	var got models.Script
	decode(t, w, &got)
	if got.Text != "I like pizza" {
		t.Errorf("got: %+v", got)
	}

	w = env.do(t, http.MethodGet, "/api/v1/scripts", nil)
	var list []models.Script
	decode(t, w, &list)
	if len(list) != 1 {
		t.Errorf("list: got %d scripts", len(list))
	}
}

func TestHandleCreateScript_Invalid(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/v1/scripts", []byte("{")); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body: got %d", w.Code)
	}
	body, _ := json.Marshal(map[string]string{"text": "   "})
	if w := env.do(t, http.MethodPost, "/api/v1/scripts", body); w.Code != http.StatusBadRequest {
		t.Errorf("blank text: got %d", w.Code)
	}
}

func TestHandleGetScript_NotFound(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/v1/scripts/999", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing: got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/scripts/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d", w.Code)
	}
}

func TestHandleListScripts_Empty(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/scripts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if got := bytes.TrimSpace(w.Body.Bytes()); string(got) != "[]" {
		t.Errorf("body: got %s, want []", got)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/scripts?limit=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit: got %d", w.Code)
	}
}

func TestHandlePracticeScripts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, text := range []string{"I like pizza", "The cat sat", "Pizza is hot"} {
		if _, err := env.catalog.AddScript(ctx, text); err != nil {
			t.Fatal(err)
		}
	}
	w := env.do(t, http.MethodGet, "/api/v1/scripts/practice?word=pizza&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var scripts []models.Script
	decode(t, w, &scripts)
	if len(scripts) != 2 {
		t.Errorf("got %d scripts, want 2", len(scripts))
	}

	if w := env.do(t, http.MethodGet, "/api/v1/scripts/practice", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing word: got %d", w.Code)
	}
}

func TestHandleSubmit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sc, err := env.catalog.AddScript(ctx, "I like pizza")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.catalog.AddScript(ctx, "I like pasta"); err != nil {
		t.Fatal(err)
	}

	w := env.submit(t, fmt.Sprint(sc.ID), "take1.wav", []byte("RIFF"))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res models.SubmissionResult
	decode(t, w, &res)
	if res.Score != 75 {
		t.Errorf("score: got %v, want 75", res.Score)
	}
	if len(res.MissingWords) != 1 || res.MissingWords[0] != "pizza" {
		t.Errorf("missing: got %v", res.MissingWords)
	}
	for _, s := range res.SimilarScripts {
		if s.ID == sc.ID {
			t.Errorf("similar scripts include the submitted script")
		}
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/feedback/%d", res.FeedbackID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("feedback status: got %d", w.Code)
	}
	var fb models.Feedback
	decode(t, w, &fb)
	if fb.RecognizedText != "I like pasta" || fb.ScriptID != sc.ID {
		t.Errorf("feedback: %+v", fb)
	}
	if _, err := os.Stat(fb.AudioPath); err != nil {
		t.Errorf("uploaded audio missing: %v", err)
	}
}

func TestHandleSubmit_Errors(t *testing.T) {
	env := newTestEnv(t)
	sc, err := env.catalog.AddScript(context.Background(), "I like pizza")
	if err != nil {
		t.Fatal(err)
	}
	id := fmt.Sprint(sc.ID)

	tests := []struct {
		name     string
		scriptID string
		filename string
		audio    []byte
		want     int
	}{
		{"missing script id", "", "a.wav", []byte("x"), http.StatusBadRequest},
		{"bad script id", "abc", "a.wav", []byte("x"), http.StatusBadRequest},
		{"missing audio", id, "", nil, http.StatusBadRequest},
		{"unsupported audio", id, "a.exe", []byte("x"), http.StatusBadRequest},
		{"too large", id, "a.wav", bytes.Repeat([]byte("x"), 2<<10), http.StatusRequestEntityTooLarge},
		{"unknown script", "999", "a.wav", []byte("x"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.submit(t, tt.scriptID, tt.filename, tt.audio)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d, body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	t.Run("transcription failure", func(t *testing.T) {
		env.transcriber.Err = fmt.Errorf("%w: backend down", transcribe.ErrTranscription)
		defer func() { env.transcriber.Err = nil }()
		w := env.submit(t, id, "a.wav", []byte("x"))
		if w.Code != http.StatusBadGateway {
			t.Errorf("status: got %d, want 502", w.Code)
		}
	})
}

func TestHandleEvaluate(t *testing.T) {
	env := newTestEnv(t)
	body, _ := json.Marshal(models.EvaluateRequest{Reference: "I like pizza", Recognized: "I like pasta"})
	w := env.do(t, http.MethodPost, "/api/v1/evaluate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res evaluator.Result
	decode(t, w, &res)
	if res.Score != 75 {
		t.Errorf("score: got %v", res.Score)
	}

	body, _ = json.Marshal(models.EvaluateRequest{Reference: " "})
	if w := env.do(t, http.MethodPost, "/api/v1/evaluate", body); w.Code != http.StatusBadRequest {
		t.Errorf("blank reference: got %d", w.Code)
	}
}

func TestHandleDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sc, err := env.catalog.AddScript(ctx, "I like pizza")
	if err != nil {
		t.Fatal(err)
	}
	for i, missing := range [][]string{{"pizza"}, {"pizza", "like"}, nil} {
		fb := &models.Feedback{
			ScriptID:      sc.ID,
			AudioPath:     fmt.Sprintf("a%d.wav", i),
			AccuracyScore: 60,
			MissingWords:  missing,
		}
		if err := env.store.CreateFeedback(ctx, fb); err != nil {
			t.Fatal(err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/admin/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var stats models.DashboardStats
	decode(t, w, &stats)
	if stats.TotalSubmissions != 3 || stats.AverageScore != 60 {
		t.Errorf("stats: %+v", stats)
	}
	if len(stats.TopMissingWords) != 2 || stats.TopMissingWords[0] != (models.WordCount{Word: "pizza", Count: 2}) {
		t.Errorf("top missing: %+v", stats.TopMissingWords)
	}
}

func TestHandleFeedback_NotFound(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/v1/feedback/42", nil); w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.catalog.AddScript(context.Background(), "hello world"); err != nil {
		t.Fatal(err)
	}
	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var st models.Status
	decode(t, w, &st)
	if st.Scripts != 1 || st.Feedback != 0 {
		t.Errorf("counts: %+v", st)
	}
	if st.IndexSize != 1 || st.IndexDimension != 8 || st.SnapshotID == "" {
		t.Errorf("index: %+v", st)
	}
	if st.DiskUsageBytes < 1 {
		t.Errorf("disk_usage_bytes: got %d, want >= 1", st.DiskUsageBytes)
	}
}

func TestHandleHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/metrics", nil); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled: got %d", w.Code)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound},
		{submission.ErrScriptNotFound, http.StatusNotFound},
		{indexer.ErrEmptyScript, http.StatusBadRequest},
		{submission.ErrUnsupportedAudio, http.StatusBadRequest},
		{submission.ErrUploadTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: timeout", transcribe.ErrTranscription), http.StatusBadGateway},
		{fmt.Errorf("%w: down", embedding.ErrEncoding), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/scripts"}}
	env := newTestEnv(t, WithWatch(mock, ""))
	w := env.do(t, http.MethodGet, "/api/v1/watch/directories", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/scripts" {
		t.Errorf("directories: got %v", out.Directories)
	}
}

func TestHandleWatchDirectoriesList_NotEnabled(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/v1/watch/directories", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd(t *testing.T) {
	mock := &mockWatchService{}
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	env := newTestEnv(t, WithWatch(mock, configPath))
	inbox := filepath.Join(env.dir, "inbox")
	if err := os.Mkdir(inbox, 0755); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(map[string]string{"path": inbox})
	w := env.do(t, http.MethodPost, "/api/v1/watch/directories", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("expected 1 directory, got %v", mock.Directories())
	}
	saved, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config not persisted: %v", err)
	}
	if !bytes.Contains(saved, []byte(inbox)) {
		t.Errorf("persisted config lacks %s:\n%s", inbox, saved)
	}

	body, _ = json.Marshal(map[string]string{"path": filepath.Join(env.dir, "nonexistent")})
	if w := env.do(t, http.MethodPost, "/api/v1/watch/directories", body); w.Code != http.StatusNotFound {
		t.Errorf("nonexistent: got %d", w.Code)
	}
}

func TestHandleWatchDirectoriesRemove(t *testing.T) {
	mock := &mockWatchService{}
	env := newTestEnv(t, WithWatch(mock, ""))
	mock.dirs = []string{env.dir}

	w := env.do(t, http.MethodDelete, "/api/v1/watch/directories?path="+env.dir, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("expected 0 directories, got %v", mock.Directories())
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/watch/directories", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing path: got %d", w.Code)
	}
}
