package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force cosine distance.
// Upserting an existing ID replaces its vector.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	pos        map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an index. With dimensions <= 0 the dimension is fixed by
// the first vector added.
func NewMemoryIndex(dimensions int) *MemoryIndex {
	if dimensions < 0 {
		dimensions = 0
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
		pos:        make(map[string]int),
	}
}

// Dimensions returns the vector length, or 0 if not yet known.
func (m *MemoryIndex) Dimensions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimensions
}

// Upsert adds vectors, replacing any existing vector with the same ID.
func (m *MemoryIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dims := m.dimensions
	for _, v := range vectors {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) == 0 || len(v) != dims {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), dims)
		}
	}
	m.dimensions = dims
	for i, id := range ids {
		vec := make([]float32, dims)
		copy(vec, vectors[i])
		if p, ok := m.pos[id]; ok {
			m.vectors[p] = vec
			continue
		}
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns up to k accepted vectors ordered by ascending distance. Ties are
// broken by ID so results are deterministic.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, accept Predicate) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return []Result{}, nil
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	scored := make([]Result, 0, len(m.ids))
	for i, vec := range m.vectors {
		if accept != nil && !accept(m.ids[i]) {
			continue
		}
		scored = append(scored, Result{ID: m.ids[i], Distance: CosineDistance(query, vec)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].ID < scored[j].ID
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Remove deletes vectors by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		p, ok := m.pos[id]
		if !ok {
			continue
		}
		last := len(m.ids) - 1
		if p != last {
			m.ids[p] = m.ids[last]
			m.vectors[p] = m.vectors[last]
			m.pos[m.ids[p]] = p
		}
		m.ids = m.ids[:last]
		m.vectors = m.vectors[:last]
		delete(m.pos, id)
	}
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
