package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/internal/config"
	"github.com/hyperjump/speechlab/internal/embedding"
	"github.com/hyperjump/speechlab/internal/indexer"
	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/internal/storage"
	"github.com/hyperjump/speechlab/internal/submission"
	"github.com/hyperjump/speechlab/internal/transcribe"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// multipartMemory is held in memory before form parts spill to disk.
	multipartMemory = 1 << 20
	// multipartOverhead allows for form fields and boundaries beyond the audio cap.
	multipartOverhead = 64 << 10
)

func (s *Server) handleCreateScript(w http.ResponseWriter, r *http.Request) {
	var input models.ScriptInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("create script request", zap.Int("length", len(input.Text)))
	sc, err := s.catalog.AddScript(r.Context(), input.Text)
	if err != nil {
		s.logger.Error("create script failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	scripts, err := s.storage.ListScripts(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list scripts failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	if scripts == nil {
		scripts = []*models.Script{}
	}
	s.respondJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	sc, err := s.storage.GetScript(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sc)
}

func (s *Server) handlePracticeScripts(w http.ResponseWriter, r *http.Request) {
	q := models.PracticeQuery{Word: r.URL.Query().Get("word")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	if err := q.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	scripts, err := s.catalog.PracticeScripts(r.Context(), q.Word, q.Limit)
	if err != nil {
		s.logger.Error("practice search failed", zap.String("word", q.Word), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	if scripts == nil {
		scripts = []*models.Script{}
	}
	s.respondJSON(w, http.StatusOK, scripts)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, submission.ErrUploadTooLarge.Error())
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	scriptID, err := strconv.ParseInt(r.FormValue("script_id"), 10, 64)
	if err != nil || scriptID <= 0 {
		s.respondError(w, http.StatusBadRequest, "script_id must be a positive integer")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audioPath, err := s.uploads.SaveUpload(file, header.Filename)
	if err != nil {
		s.logger.Warn("upload rejected", zap.String("filename", header.Filename), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.logger.Debug("submit request", zap.Int64("script_id", scriptID), zap.String("audio", audioPath))

	res, err := s.pipeline.Submit(r.Context(), submission.Request{ScriptID: scriptID, AudioPath: audioPath})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req models.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, s.pipeline.Evaluate(req.Reference, req.Recognized))
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	fb, err := s.storage.GetFeedback(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, fb)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := s.storage.CountFeedback(ctx)
	if err != nil {
		s.logger.Error("dashboard: count feedback failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	avg, err := s.storage.AverageScore(ctx)
	if err != nil {
		s.logger.Error("dashboard: average score failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	words, err := s.storage.MissingWordCounts(ctx, dashboardTopWords)
	if err != nil {
		s.logger.Error("dashboard: missing words failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	if words == nil {
		words = []models.WordCount{}
	}
	s.respondJSON(w, http.StatusOK, models.DashboardStats{
		TotalSubmissions: total,
		AverageScore:     avg,
		TopMissingWords:  words,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := CollectStatus(r.Context(), s.storage, s.index, s.config)
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.watchConfigMu.Lock()
	defer s.watchConfigMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func pagination(r *http.Request) (offset, limit int, err error) {
	limit = defaultListLimit
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("invalid offset")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return offset, limit, nil
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, submission.ErrScriptNotFound):
		return http.StatusNotFound
	case errors.Is(err, indexer.ErrEmptyScript), errors.Is(err, submission.ErrUnsupportedAudio):
		return http.StatusBadRequest
	case errors.Is(err, submission.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transcribe.ErrTranscription), errors.Is(err, embedding.ErrEncoding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusForError(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
