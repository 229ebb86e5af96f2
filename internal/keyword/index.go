// Package keyword indexes script text for word lookup.
package keyword

import (
	"context"

	"github.com/hyperjump/speechlab/internal/models"
)

// ScriptIndex finds scripts containing a word.
type ScriptIndex interface {
	Index(ctx context.Context, script *models.Script) error
	Search(ctx context.Context, word string, limit int) ([]Hit, error)
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single keyword search hit. Fuzzy marks hits found only by the
// typo-tolerant fallback.
type Hit struct {
	ScriptID int64
	Score    float64
	Fuzzy    bool
}
