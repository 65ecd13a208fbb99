// Package retrieval answers queries over the store: scoped similarity search,
// full document text, case listings, keyword and hybrid search, and deletes.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bicesterbug/bbug-planning-reporter/internal/keyword"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/storage"
)

// Limits applied to requests.
const (
	DefaultLimit    = 10
	DefaultMaxLimit = 100
)

// ErrInvalidRequest marks a request rejected before any lookup.
var ErrInvalidRequest = errors.New("invalid request")

// ErrKeywordDisabled is returned by keyword and hybrid search when no keyword
// index is configured.
var ErrKeywordDisabled = errors.New("keyword index not configured")

// Embedder encodes a query.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service implements the retrieval operations.
type Service struct {
	store        storage.Store
	embedder     Embedder
	keywordIndex keyword.Index
	maxLimit     int
	logger       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithKeywordIndex enables keyword and hybrid search, and keeps the index in
// step with deletes.
func WithKeywordIndex(k keyword.Index) Option {
	return func(s *Service) { s.keywordIndex = k }
}

// WithMaxLimit caps the number of results a request may ask for.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a retrieval service.
func NewService(store storage.Store, embedder Embedder, opts ...Option) *Service {
	s := &Service{
		store:    store,
		embedder: embedder,
		maxLimit: DefaultMaxLimit,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) limit(n int) int {
	if n <= 0 {
		n = DefaultLimit
	}
	if n > s.maxLimit {
		n = s.maxLimit
	}
	return n
}

func validateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	return nil
}

// Search embeds the query once and returns the most similar chunks within scope.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := s.store.Search(ctx, vec, s.limit(req.Limit), storage.Filter{
		CaseReference: req.CaseReference,
		DocumentTypes: req.DocumentTypes,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search",
		zap.String("query", req.Query),
		zap.String("case", req.CaseReference),
		zap.Int("results", len(results)))
	return searchResponse(results), nil
}

// KeywordSearch runs a full-text query. Scores are divided by the top score so
// the best hit has relevance 1.
func (s *Service) KeywordSearch(ctx context.Context, req KeywordSearchRequest) (*SearchResponse, error) {
	if s.keywordIndex == nil {
		return nil, ErrKeywordDisabled
	}
	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}
	hits, err := s.keywordIndex.Search(ctx, req.Query, s.limit(req.Limit), keyword.Filter{
		CaseReference: req.CaseReference,
		DocumentTypes: req.DocumentTypes,
	}, &keyword.SearchOptions{PhraseBoost: 1.5, FuzzyEnabled: req.Fuzzy})
	if err != nil {
		return nil, err
	}
	scores := NormalizeKeywordScores(hits)
	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = models.SearchResult{
			ChunkID:        h.ChunkID,
			Text:           h.Text,
			RelevanceScore: scores[h.ChunkID],
			Metadata:       h.Metadata,
		}
	}
	return searchResponse(results), nil
}

// HybridSearch runs keyword and vector search in parallel and fuses the scores
// with the request weights, normalised to sum to one.
func (s *Service) HybridSearch(ctx context.Context, req HybridSearchRequest) (*SearchResponse, error) {
	if s.keywordIndex == nil {
		return nil, ErrKeywordDisabled
	}
	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}
	kw, sem := req.KeywordWeight, req.SemanticWeight
	if kw < 0 || sem < 0 {
		return nil, fmt.Errorf("%w: weights must not be negative", ErrInvalidRequest)
	}
	if kw+sem == 0 {
		kw, sem = 0.5, 0.5
	}
	kw, sem = kw/(kw+sem), sem/(kw+sem)

	limit := s.limit(req.Limit)
	candidates := limit * 3
	var (
		keywordHits  []keyword.Result
		semanticHits []models.SearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.keywordIndex.Search(gctx, req.Query, candidates, keyword.Filter{
			CaseReference: req.CaseReference,
			DocumentTypes: req.DocumentTypes,
		}, nil)
		if err != nil {
			return fmt.Errorf("keyword search failed: %w", err)
		}
		keywordHits = hits
		return nil
	})
	g.Go(func() error {
		vec, err := s.embedder.Embed(gctx, req.Query)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		hits, err := s.store.Search(gctx, vec, candidates, storage.Filter{
			CaseReference: req.CaseReference,
			DocumentTypes: req.DocumentTypes,
		})
		if err != nil {
			return fmt.Errorf("vector search failed: %w", err)
		}
		semanticHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(keywordHits, semanticHits, kw, sem)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	results := make([]models.SearchResult, len(fused))
	for i, f := range fused {
		results[i] = f.SearchResult
	}
	return searchResponse(results), nil
}

// GetDocumentText rejoins a document's chunks in chunk order, separated by a
// blank line. A missing document or one without chunks is reported in the
// response, not as an error.
func (s *Service) GetDocumentText(ctx context.Context, documentID string) (*DocumentTextResponse, error) {
	chunks, err := s.store.GetDocumentChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetDocument(ctx, documentID)
	if err != nil && !errors.Is(err, storage.ErrDocumentNotFound) {
		return nil, err
	}
	if len(chunks) == 0 {
		if rec == nil {
			return &DocumentTextResponse{
				Status:    StatusError,
				ErrorType: models.ErrTypeDocumentNotFound,
				Message:   fmt.Sprintf("document %s not found", documentID),
			}, nil
		}
		return &DocumentTextResponse{
			Status:    StatusError,
			ErrorType: models.ErrTypeNoChunks,
			Message:   fmt.Sprintf("document %s has no chunks", documentID),
		}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	docType := chunks[0].Metadata.DocumentType
	if rec != nil {
		docType = rec.DocumentType
	}
	return &DocumentTextResponse{
		Status:       StatusSuccess,
		DocumentID:   documentID,
		DocumentType: docType,
		ChunkCount:   len(chunks),
		Text:         strings.Join(texts, "\n\n"),
	}, nil
}

// ListDocuments returns the registry rows for a case.
func (s *Service) ListDocuments(ctx context.Context, caseReference string) (*ListDocumentsResponse, error) {
	if strings.TrimSpace(caseReference) == "" {
		return nil, fmt.Errorf("%w: case_reference is required", ErrInvalidRequest)
	}
	recs, err := s.store.ListDocuments(ctx, caseReference)
	if err != nil {
		return nil, err
	}
	docs := make([]DocumentSummary, len(recs))
	for i, r := range recs {
		docs[i] = summarize(r)
	}
	return &ListDocumentsResponse{
		Status:        StatusSuccess,
		CaseReference: caseReference,
		DocumentCount: len(docs),
		Documents:     docs,
	}, nil
}

// DeleteDocument removes a document from the store and the keyword index.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) (*DeleteResponse, error) {
	n, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if s.keywordIndex != nil {
		if _, err := s.keywordIndex.DeleteDocument(ctx, documentID); err != nil {
			return nil, fmt.Errorf("delete from keyword index: %w", err)
		}
	}
	s.logger.Info("document deleted", zap.String("document_id", documentID), zap.Int("chunks", n))
	return &DeleteResponse{Status: StatusSuccess, DocumentID: documentID, ChunksDeleted: n}, nil
}

// Stats reports store and keyword index sizes.
func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	resp := &StatsResponse{Status: StatusSuccess, Store: st}
	if s.keywordIndex != nil {
		n, err := s.keywordIndex.DocCount()
		if err != nil {
			return nil, fmt.Errorf("keyword doc count: %w", err)
		}
		resp.KeywordChunks = n
	}
	return resp, nil
}
