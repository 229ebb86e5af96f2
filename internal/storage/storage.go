// Package storage defines persistence for scripts and submission feedback.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/speechlab/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ScriptStore persists reference scripts and their embeddings.
type ScriptStore interface {
	CreateScript(ctx context.Context, script *models.Script) error
	GetScript(ctx context.Context, id int64) (*models.Script, error)
	FindScriptByText(ctx context.Context, text string) (*models.Script, error)
	ListScripts(ctx context.Context, offset, limit int) ([]*models.Script, error)
	// ListEmbedded returns every script that has an embedding, ascending by id.
	ListEmbedded(ctx context.Context) ([]*models.Script, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
	CountScripts(ctx context.Context) (int64, error)
}

// FeedbackStore persists submission feedback and aggregates it for the dashboard.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, fb *models.Feedback) error
	GetFeedback(ctx context.Context, id int64) (*models.Feedback, error)
	ListFeedback(ctx context.Context, scriptID int64, offset, limit int) ([]*models.Feedback, error)
	CountFeedback(ctx context.Context) (int64, error)
	AverageScore(ctx context.Context) (float64, error)
	// MissingWordCounts returns the limit most frequently missed words,
	// descending by count with ties broken by word ascending.
	MissingWordCounts(ctx context.Context, limit int) ([]models.WordCount, error)
}

// Storage is the full persistence layer.
type Storage interface {
	ScriptStore
	FeedbackStore
	Close() error
}
