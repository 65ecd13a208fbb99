package mcp

import (
	"context"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
)

// Retriever answers read-side tool calls.
type Retriever interface {
	Search(ctx context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error)
	KeywordSearch(ctx context.Context, req retrieval.KeywordSearchRequest) (*retrieval.SearchResponse, error)
	GetDocumentText(ctx context.Context, documentID string) (*retrieval.DocumentTextResponse, error)
	ListDocuments(ctx context.Context, caseReference string) (*retrieval.ListDocumentsResponse, error)
}

// Ingester ingests one file.
type Ingester interface {
	IngestDocument(ctx context.Context, path, caseReference, documentType string) models.IngestResult
}

// Ports aggregates the services the MCP server drives.
type Ports struct {
	// Retrieval is required.
	Retrieval Retriever

	// Ingest is optional; without it the ingest_document tool is not registered.
	Ingest Ingester

	// KeywordEnabled registers keyword_search.
	KeywordEnabled bool
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrieval
	}
	return nil
}
