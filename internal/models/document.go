// Package models defines core data structures for chunks, document records, and results.
package models

import "time"

// DocumentRecord is the registry row for one ingested file. Identity is
// (CaseReference, ContentHash); FilePath is informational only.
type DocumentRecord struct {
	DocumentID       string    `json:"document_id"`
	FilePath         string    `json:"file_path"`
	ContentHash      string    `json:"content_hash"`
	CaseReference    string    `json:"case_reference"`
	DocumentType     string    `json:"document_type"`
	ChunkCount       int       `json:"chunk_count"`
	IngestedAt       time.Time `json:"ingested_at"`
	ExtractionMethod string    `json:"extraction_method"`
	ContainsDrawings bool      `json:"contains_drawings"`
}

// Chunk is a contiguous slice of one document's extracted text, stored with its
// embedding and metadata.
type Chunk struct {
	ID        string        `json:"chunk_id"`
	Text      string        `json:"text"`
	Embedding []float32     `json:"-"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// ChunkMetadata is the descriptive data stored alongside each chunk.
type ChunkMetadata struct {
	CaseReference    string `json:"case_reference"`
	DocumentID       string `json:"document_id"`
	SourceFilename   string `json:"source_filename"`
	DocumentType     string `json:"document_type"`
	PageNumbers      []int  `json:"page_numbers"`
	ChunkIndex       int    `json:"chunk_index"`
	TotalChunks      int    `json:"total_chunks"`
	ExtractionMethod string `json:"extraction_method"`
	CharCount        int    `json:"char_count"`
	WordCount        int    `json:"word_count"`
}

// StoreStats summarises store contents.
type StoreStats struct {
	Backend   string `json:"backend"`
	Documents int64  `json:"documents"`
	Chunks    int64  `json:"chunks"`
	DiskBytes int64  `json:"disk_bytes,omitempty"`
}
