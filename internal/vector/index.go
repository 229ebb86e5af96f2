// Package vector provides an exact nearest-neighbour index over sentence embeddings.
package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when vector lengths disagree with each other or with the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexEmpty is returned by Query when the index holds no entries.
	ErrIndexEmpty = errors.New("vector index is empty")
	// ErrInvalidK is returned by Query when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrCorruptSnapshot is returned by Load when the persisted files are unreadable or inconsistent.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")
)

// Entry associates an external id (a script id) with its embedding.
// Duplicate ids are allowed; each entry occupies its own slot.
type Entry struct {
	ID     int64
	Vector []float32
}

// Result is a single query hit.
type Result struct {
	ID         int64   `json:"id"`
	Distance   float64 `json:"distance"`   // squared Euclidean distance
	Similarity float64 `json:"similarity"` // max(0, 100 - Distance), two decimals
}

// Searcher is the read side of an index.
type Searcher interface {
	Query(vector []float32, k int) ([]Result, error)
}
