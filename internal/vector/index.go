// Package vector provides a brute-force cosine index over chunk embeddings.
package vector

import "context"

// Index stores vectors by ID and answers nearest-neighbour queries.
type Index interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int, accept Predicate) ([]Result, error)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Close() error
}

// Predicate restricts a search to IDs for which it returns true. A nil Predicate
// accepts everything.
type Predicate func(id string) bool

// Result is a single search hit.
type Result struct {
	ID string
	// Distance is the cosine distance to the query, in [0, 2].
	Distance float64
}
