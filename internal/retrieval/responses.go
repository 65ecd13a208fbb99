package retrieval

import (
	"time"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
)

// StatusSuccess and StatusError are the values of every response's status field.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SearchRequest is a scoped similarity query. Empty CaseReference or
// DocumentTypes do not filter. Limit <= 0 means the default.
type SearchRequest struct {
	Query         string   `json:"query"`
	CaseReference string   `json:"case_reference,omitempty"`
	DocumentTypes []string `json:"document_types,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// KeywordSearchRequest is a full-text query.
type KeywordSearchRequest struct {
	SearchRequest
	Fuzzy bool `json:"fuzzy,omitempty"`
}

// HybridSearchRequest mixes keyword and vector relevance. Zero weights mean 0.5 each.
type HybridSearchRequest struct {
	SearchRequest
	KeywordWeight  float64 `json:"keyword_weight,omitempty"`
	SemanticWeight float64 `json:"semantic_weight,omitempty"`
}

// SearchResponse lists ranked chunks.
type SearchResponse struct {
	Status       string                `json:"status"`
	ResultsCount int                   `json:"results_count"`
	Results      []models.SearchResult `json:"results"`
}

// DocumentTextResponse is a document's chunks rejoined in order, or an error
// outcome with ErrorType document_not_found or no_chunks.
type DocumentTextResponse struct {
	Status       string `json:"status"`
	DocumentID   string `json:"document_id,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	ChunkCount   int    `json:"chunk_count,omitempty"`
	Text         string `json:"text,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`
	Message      string `json:"message,omitempty"`
}

// DocumentSummary is one registry row as listed for a case.
type DocumentSummary struct {
	DocumentID       string    `json:"document_id"`
	FilePath         string    `json:"file_path"`
	DocumentType     string    `json:"document_type"`
	ChunkCount       int       `json:"chunk_count"`
	IngestedAt       time.Time `json:"ingested_at"`
	ExtractionMethod string    `json:"extraction_method"`
	ContainsDrawings bool      `json:"contains_drawings"`
}

// ListDocumentsResponse lists a case's documents in ingestion order.
type ListDocumentsResponse struct {
	Status        string            `json:"status"`
	CaseReference string            `json:"case_reference"`
	DocumentCount int               `json:"document_count"`
	Documents     []DocumentSummary `json:"documents"`
}

// DeleteResponse reports how many chunks a delete removed.
type DeleteResponse struct {
	Status        string `json:"status"`
	DocumentID    string `json:"document_id"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// StatsResponse summarises the store and keyword index.
type StatsResponse struct {
	Status        string            `json:"status"`
	Store         models.StoreStats `json:"store"`
	KeywordChunks uint64            `json:"keyword_chunks"`
}

func summarize(rec models.DocumentRecord) DocumentSummary {
	return DocumentSummary{
		DocumentID:       rec.DocumentID,
		FilePath:         rec.FilePath,
		DocumentType:     rec.DocumentType,
		ChunkCount:       rec.ChunkCount,
		IngestedAt:       rec.IngestedAt,
		ExtractionMethod: rec.ExtractionMethod,
		ContainsDrawings: rec.ContainsDrawings,
	}
}

func searchResponse(results []models.SearchResult) *SearchResponse {
	if results == nil {
		results = []models.SearchResult{}
	}
	return &SearchResponse{Status: StatusSuccess, ResultsCount: len(results), Results: results}
}
