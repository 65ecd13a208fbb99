package models

import "encoding/json"

// Ingestion statuses.
const (
	StatusSuccess         = "success"
	StatusAlreadyIngested = "already_ingested"
	StatusSkipped         = "skipped"
	StatusError           = "error"
)

// Ingestion error types and skip reasons.
const (
	ErrTypeFileNotFound     = "file_not_found"
	ErrTypeUnsupportedType  = "unsupported_file_type"
	ErrTypeExtractionFailed = "extraction_failed"
	ErrTypeNoContent        = "no_content"
	ErrTypeNoChunks         = "no_chunks"
	ErrTypeInvalidInput     = "invalid_input"
	ErrTypeEmbeddingFailed  = "embedding_failed"
	ErrTypeStorageFailed    = "storage_failed"
	ErrTypeDocumentNotFound = "document_not_found"
	ErrTypeCancelled        = "cancelled"

	SkipReasonImageBased = "image_based"
)

// IngestResult is the single outcome of one ingestion run. Which fields are set
// depends on Status.
type IngestResult struct {
	Status           string  `json:"status"`
	DocumentID       string  `json:"document_id,omitempty"`
	ChunksCreated    int     `json:"chunks_created,omitempty"`
	ExtractionMethod string  `json:"extraction_method,omitempty"`
	ContainsDrawings bool    `json:"contains_drawings,omitempty"`
	TotalChars       int     `json:"total_chars,omitempty"`
	TotalWords       int     `json:"total_words,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	ImageRatio       float64 `json:"image_ratio,omitempty"`
	TotalPages       int     `json:"total_pages,omitempty"`
	ErrorType        string  `json:"error_type,omitempty"`
	Message          string  `json:"message,omitempty"`
}

// MarshalJSON writes exactly the fields of the outcome's status, zero values
// included.
func (r IngestResult) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusSuccess:
		return json.Marshal(struct {
			Status           string `json:"status"`
			DocumentID       string `json:"document_id"`
			ChunksCreated    int    `json:"chunks_created"`
			ExtractionMethod string `json:"extraction_method"`
			ContainsDrawings bool   `json:"contains_drawings"`
			TotalChars       int    `json:"total_chars"`
			TotalWords       int    `json:"total_words"`
		}{r.Status, r.DocumentID, r.ChunksCreated, r.ExtractionMethod, r.ContainsDrawings, r.TotalChars, r.TotalWords})
	case StatusAlreadyIngested:
		return json.Marshal(struct {
			Status     string `json:"status"`
			DocumentID string `json:"document_id"`
		}{r.Status, r.DocumentID})
	case StatusSkipped:
		return json.Marshal(struct {
			Status     string  `json:"status"`
			Reason     string  `json:"reason"`
			ImageRatio float64 `json:"image_ratio"`
			TotalPages int     `json:"total_pages"`
		}{r.Status, r.Reason, r.ImageRatio, r.TotalPages})
	default:
		return json.Marshal(struct {
			Status    string `json:"status"`
			ErrorType string `json:"error_type"`
			Message   string `json:"message"`
		}{r.Status, r.ErrorType, r.Message})
	}
}

// IngestError builds an error outcome.
func IngestError(errorType, message string) IngestResult {
	return IngestResult{Status: StatusError, ErrorType: errorType, Message: message}
}

// SearchResult is a single similarity hit.
type SearchResult struct {
	ChunkID        string        `json:"chunk_id"`
	Text           string        `json:"text"`
	RelevanceScore float64       `json:"relevance_score"`
	Metadata       ChunkMetadata `json:"metadata"`
}
