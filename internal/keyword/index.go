// Package keyword provides a full-text index over chunk text, complementing vector
// search for exact terms such as policy numbers and road names.
package keyword

import (
	"context"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
)

// Index stores chunks for keyword search.
type Index interface {
	IndexChunks(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, query string, limit int, filter Filter, opts *SearchOptions) ([]Result, error)
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	DocCount() (uint64, error)
	Close() error
}

// Filter restricts a keyword search the same way storage.Filter restricts a vector search.
type Filter struct {
	CaseReference string
	DocumentTypes []string
}

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// PhraseBoost multiplies the score when the query appears as a phrase.
	// Values > 1 boost chunks with adjacent query terms (e.g. 1.5).
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
}

// Result is a single keyword hit. Score is Bleve's raw score.
type Result struct {
	ChunkID  string
	Score    float64
	Text     string
	Metadata models.ChunkMetadata
}
