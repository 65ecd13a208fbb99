// Package storage persists chunks with their vectors and the document registry.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
)

// DefaultDistanceScale maps cosine distance in [0, 2] onto relevance in [0, 1].
const DefaultDistanceScale = 2.0

// ErrDocumentNotFound is returned when no registry row exists for a document ID.
var ErrDocumentNotFound = errors.New("document not found")

// Store holds two namespaces: a chunk collection searchable by vector with
// equality/membership filters, and a metadata-only document registry.
type Store interface {
	// UpsertChunks writes chunks, overwriting any existing chunk with the same ID.
	UpsertChunks(ctx context.Context, chunks []models.Chunk) error
	// Search returns up to limit chunks matching filter, by descending relevance.
	// An empty store or no match yields an empty slice and a nil error.
	Search(ctx context.Context, query []float32, limit int, filter Filter) ([]models.SearchResult, error)
	// GetDocumentChunks returns every chunk of a document by ascending chunk index.
	GetDocumentChunks(ctx context.Context, documentID string) ([]models.Chunk, error)
	// DeleteDocument removes a document's chunks and registry row and returns the
	// number of chunks removed. Unknown IDs return 0.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	IsDocumentIngested(ctx context.Context, contentHash, caseReference string) (bool, error)
	RegisterDocument(ctx context.Context, rec models.DocumentRecord) error
	GetDocument(ctx context.Context, documentID string) (*models.DocumentRecord, error)
	ListDocuments(ctx context.Context, caseReference string) ([]models.DocumentRecord, error)
	Stats(ctx context.Context) (models.StoreStats, error)
	Close() error
}

// Filter restricts a search. Empty fields do not filter; set fields combine with AND.
type Filter struct {
	CaseReference string
	DocumentTypes []string
}

// Matches reports whether chunk metadata satisfies the filter.
func (f Filter) Matches(caseReference, documentType string) bool {
	if f.CaseReference != "" && caseReference != f.CaseReference {
		return false
	}
	if len(f.DocumentTypes) == 0 {
		return true
	}
	for _, t := range f.DocumentTypes {
		if t == documentType {
			return true
		}
	}
	return false
}

// BackendError wraps a failure of the underlying database so callers can tell
// storage faults apart from other errors with errors.As.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

// Relevance converts a distance into a score in [0, 1]: max(0, 1 - distance/scale).
func Relevance(distance, scale float64) float64 {
	if scale <= 0 {
		scale = DefaultDistanceScale
	}
	return math.Max(0, math.Min(1, 1-distance/scale))
}

// Option configures a store.
type Option func(*options)

type options struct {
	distanceScale float64
	logger        *zap.Logger
}

func buildOptions(opts []Option) options {
	o := options{distanceScale: DefaultDistanceScale, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDistanceScale sets the divisor used by Relevance. Values <= 0 are ignored.
func WithDistanceScale(scale float64) Option {
	return func(o *options) {
		if scale > 0 {
			o.distanceScale = scale
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
