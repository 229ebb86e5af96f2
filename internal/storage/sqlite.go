package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/speechlab/internal/models"
	"github.com/hyperjump/speechlab/pkg/utils"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS scripts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scripts_text ON scripts(text);

	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		script_id INTEGER NOT NULL,
		audio_path TEXT NOT NULL,
		recognized_text TEXT NOT NULL,
		accuracy_score REAL NOT NULL,
		missing_words TEXT,
		feedback_text TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (script_id) REFERENCES scripts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_script_id ON feedback(script_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateScript inserts a script and sets its ID and CreatedAt.
func (s *SQLiteStorage) CreateScript(ctx context.Context, script *models.Script) error {
	script.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scripts (text, source, embedding, created_at) VALUES (?, ?, ?, ?)`,
		script.Text, script.Source, encodeEmbedding(script.Embedding), script.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert script: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert script: %w", err)
	}
	script.ID = id
	return nil
}

const scriptColumns = `id, text, source, embedding, created_at`

func scanScript(row interface{ Scan(...any) error }) (*models.Script, error) {
	var sc models.Script
	var blob []byte
	if err := row.Scan(&sc.ID, &sc.Text, &sc.Source, &blob, &sc.CreatedAt); err != nil {
		return nil, err
	}
	emb, err := decodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("script %d: %w", sc.ID, err)
	}
	sc.Embedding = emb
	return &sc, nil
}

// GetScript returns a script by ID, or ErrNotFound.
func (s *SQLiteStorage) GetScript(ctx context.Context, id int64) (*models.Script, error) {
	sc, err := scanScript(s.db.QueryRowContext(ctx,
		`SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("script %d: %w", id, ErrNotFound)
	}
	return sc, err
}

// FindScriptByText returns the oldest script with exactly text, or ErrNotFound.
func (s *SQLiteStorage) FindScriptByText(ctx context.Context, text string) (*models.Script, error) {
	sc, err := scanScript(s.db.QueryRowContext(ctx,
		`SELECT `+scriptColumns+` FROM scripts WHERE text = ? ORDER BY id LIMIT 1`, text))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("script with text %q: %w", utils.Truncate(text, 40), ErrNotFound)
	}
	return sc, err
}

// ListScripts returns scripts ascending by id. limit <= 0 returns all.
func (s *SQLiteStorage) ListScripts(ctx context.Context, offset, limit int) ([]*models.Script, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryScripts(ctx,
		`SELECT `+scriptColumns+` FROM scripts ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

// ListEmbedded returns all scripts with an embedding, ascending by id.
func (s *SQLiteStorage) ListEmbedded(ctx context.Context) ([]*models.Script, error) {
	return s.queryScripts(ctx,
		`SELECT `+scriptColumns+` FROM scripts WHERE embedding IS NOT NULL ORDER BY id`)
}

func (s *SQLiteStorage) queryScripts(ctx context.Context, query string, args ...any) ([]*models.Script, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scripts []*models.Script
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, sc)
	}
	return scripts, rows.Err()
}

// UpdateEmbedding replaces the embedding of script id.
func (s *SQLiteStorage) UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scripts SET embedding = ? WHERE id = ?`, encodeEmbedding(embedding), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("script %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountScripts returns the number of scripts.
func (s *SQLiteStorage) CountScripts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scripts`).Scan(&n)
	return n, err
}

// CreateFeedback inserts a feedback record and sets its ID and CreatedAt.
func (s *SQLiteStorage) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	fb.CreatedAt = time.Now().UTC()
	var missing sql.NullString
	if len(fb.MissingWords) > 0 {
		missing = sql.NullString{String: strings.Join(fb.MissingWords, ","), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (script_id, audio_path, recognized_text, accuracy_score, missing_words, feedback_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ScriptID, fb.AudioPath, fb.RecognizedText, fb.AccuracyScore, missing, fb.FeedbackText, fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	fb.ID = id
	return nil
}

const feedbackColumns = `id, script_id, audio_path, recognized_text, accuracy_score, missing_words, feedback_text, created_at`

func scanFeedback(row interface{ Scan(...any) error }) (*models.Feedback, error) {
	var fb models.Feedback
	var missing sql.NullString
	if err := row.Scan(&fb.ID, &fb.ScriptID, &fb.AudioPath, &fb.RecognizedText,
		&fb.AccuracyScore, &missing, &fb.FeedbackText, &fb.CreatedAt); err != nil {
		return nil, err
	}
	fb.MissingWords = splitWords(missing)
	return &fb, nil
}

// GetFeedback returns a feedback record by ID, or ErrNotFound.
func (s *SQLiteStorage) GetFeedback(ctx context.Context, id int64) (*models.Feedback, error) {
	fb, err := scanFeedback(s.db.QueryRowContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback %d: %w", id, ErrNotFound)
	}
	return fb, err
}

// ListFeedback returns feedback newest first. scriptID <= 0 lists all scripts.
func (s *SQLiteStorage) ListFeedback(ctx context.Context, scriptID int64, offset, limit int) ([]*models.Feedback, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + feedbackColumns + ` FROM feedback`
	args := []any{}
	if scriptID > 0 {
		query += ` WHERE script_id = ?`
		args = append(args, scriptID)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// CountFeedback returns the number of feedback records.
func (s *SQLiteStorage) CountFeedback(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n)
	return n, err
}

// AverageScore returns the mean accuracy score rounded to two decimals, or 0 with no feedback.
func (s *SQLiteStorage) AverageScore(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(accuracy_score) FROM feedback`).Scan(&avg); err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return utils.Round2(avg.Float64), nil
}

// MissingWordCounts tallies missing words across all feedback.
func (s *SQLiteStorage) MissingWordCounts(ctx context.Context, limit int) ([]models.WordCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT missing_words FROM feedback WHERE missing_words IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var missing sql.NullString
		if err := rows.Scan(&missing); err != nil {
			return nil, err
		}
		for _, w := range splitWords(missing) {
			counts[w]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.WordCount, 0, len(counts))
	for w, c := range counts {
		out = append(out, models.WordCount{Word: w, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func splitWords(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return []string{}
	}
	return strings.Split(ns.String, ",")
}

// encodeEmbedding stores a vector as little-endian float32s; nil stays NULL.
func encodeEmbedding(v []float32) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if b == nil {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
