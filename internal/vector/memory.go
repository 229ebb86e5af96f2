package vector

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/speechlab/pkg/utils"
)

// snapshot is an immutable view of the index. data holds len(ids) vectors of
// dim floats each, row-major.
type snapshot struct {
	id   uuid.UUID
	dim  int
	ids  []int64
	data []float32
}

func (s *snapshot) row(i int) []float32 {
	return s.data[i*s.dim : (i+1)*s.dim]
}

// MemoryIndex is an in-memory index using brute-force squared L2 search.
// Readers never block: they work on the snapshot published by the last
// Build or Load. Writers are serialized.
type MemoryIndex struct {
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
	logger  *zap.Logger
}

// Option configures a MemoryIndex.
type Option func(*MemoryIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *MemoryIndex) { m.logger = l }
}

// NewMemoryIndex returns an empty index. Its dimension is fixed by the first Build or Load.
func NewMemoryIndex(opts ...Option) *MemoryIndex {
	m := &MemoryIndex{}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = utils.LoggerOrNop(m.logger)
	return m
}

// Build replaces the whole index with entries. An empty slice is a no-op.
// Entries of differing lengths yield ErrDimensionMismatch and leave the index untouched.
func (m *MemoryIndex) Build(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim := len(entries[0].Vector)
	if dim == 0 {
		return fmt.Errorf("%w: entry %d has an empty vector", ErrDimensionMismatch, entries[0].ID)
	}
	s := &snapshot{
		id:   uuid.New(),
		dim:  dim,
		ids:  make([]int64, len(entries)),
		data: make([]float32, 0, len(entries)*dim),
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
		s.ids[i] = e.ID
		s.data = append(s.data, e.Vector...)
	}

	m.mu.Lock()
	m.current.Store(s)
	m.mu.Unlock()
	m.logger.Debug("Vector index built", zap.Int("entries", len(entries)), zap.Int("dimension", dim))
	return nil
}

// Query returns the k+1 entries closest to vector, ascending by squared distance.
// Ties keep insertion order. Fewer entries than k+1 returns all of them.
// One extra hit is returned so callers can drop the source item and still keep k.
func (m *MemoryIndex) Query(vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	s := m.current.Load()
	if s == nil || len(s.ids) == 0 {
		return nil, ErrIndexEmpty
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), s.dim)
	}

	type scored struct {
		slot int
		dist float64
	}
	scores := make([]scored, len(s.ids))
	for i := range s.ids {
		scores[i] = scored{slot: i, dist: SquaredL2(vector, s.row(i))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	n := k + 1
	if n > len(scores) {
		n = len(scores)
	}
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		results[i] = Result{
			ID:         s.ids[scores[i].slot],
			Distance:   scores[i].dist,
			Similarity: SimilarityFromDistance(scores[i].dist),
		}
	}
	return results, nil
}

// Size returns the number of entries.
func (m *MemoryIndex) Size() int {
	if s := m.current.Load(); s != nil {
		return len(s.ids)
	}
	return 0
}

// Dimension returns the vector length, or 0 before the first Build or Load.
func (m *MemoryIndex) Dimension() int {
	if s := m.current.Load(); s != nil {
		return s.dim
	}
	return 0
}

// SnapshotID identifies the current contents; it changes on every Build.
func (m *MemoryIndex) SnapshotID() uuid.UUID {
	if s := m.current.Load(); s != nil {
		return s.id
	}
	return uuid.Nil
}
