package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

type memoryIndex struct {
	dimension int
	mu        sync.RWMutex
	vectors   map[string][]float32
}

// NewMemoryIndex returns a brute-force in-process index. It scans every
// stored vector on search, which is exact rather than approximate, and
// is intended for small corpora and tests.
func NewMemoryIndex(dimension int) Index {
	return &memoryIndex{
		dimension: dimension,
		vectors:   make(map[string][]float32),
	}
}

func (m *memoryIndex) Dimension() int {
	return m.dimension
}

func (m *memoryIndex) Insert(ctx context.Context, id string, vector []float32) error {
	if len(vector) != m.dimension {
		return fmt.Errorf("insert %s: got %d dims, index holds %d: %w", id, len(vector), m.dimension, appErr.ErrDimensionMismatch)
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vectors[id]; ok {
		return fmt.Errorf("insert %s: id already indexed: %w", id, appErr.ErrConflict)
	}
	m.vectors[id] = cp
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, vector []float32, topK int) ([]Neighbor, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("search: got %d dims, index holds %d: %w", len(vector), m.dimension, appErr.ErrDimensionMismatch)
	}
	if topK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	neighbors := make([]Neighbor, 0, len(m.vectors))
	for id, v := range m.vectors {
		neighbors = append(neighbors, Neighbor{ID: id, Similarity: Cosine(vector, v)})
	}
	m.mu.RUnlock()
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	return neighbors, nil
}
