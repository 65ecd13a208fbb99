package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Scalar metadata keys. Stores accept only scalar values, so every field of
// ChunkMetadata maps to one of these keys.
const (
	MetaCaseReference    = "case_reference"
	MetaDocumentID       = "document_id"
	MetaSourceFilename   = "source_filename"
	MetaDocumentType     = "document_type"
	MetaPageNumbers      = "page_numbers"
	MetaChunkIndex       = "chunk_index"
	MetaTotalChunks      = "total_chunks"
	MetaExtractionMethod = "extraction_method"
	MetaCharCount        = "char_count"
	MetaWordCount        = "word_count"
)

const pageSeparator = ","

// EncodePageNumbers serializes page numbers to a comma-delimited string ("1,2,3").
// An empty list encodes to "".
func EncodePageNumbers(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, pageSeparator)
}

// DecodePageNumbers is the inverse of EncodePageNumbers. Whitespace around entries
// is ignored; a non-integer entry is an error.
func DecodePageNumbers(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, pageSeparator)
	pages := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q: %w", part, err)
		}
		pages = append(pages, n)
	}
	return pages, nil
}

// Scalars flattens the metadata into a map of scalar values suitable for storage.
func (m ChunkMetadata) Scalars() map[string]interface{} {
	return map[string]interface{}{
		MetaCaseReference:    m.CaseReference,
		MetaDocumentID:       m.DocumentID,
		MetaSourceFilename:   m.SourceFilename,
		MetaDocumentType:     m.DocumentType,
		MetaPageNumbers:      EncodePageNumbers(m.PageNumbers),
		MetaChunkIndex:       m.ChunkIndex,
		MetaTotalChunks:      m.TotalChunks,
		MetaExtractionMethod: m.ExtractionMethod,
		MetaCharCount:        m.CharCount,
		MetaWordCount:        m.WordCount,
	}
}

// ChunkMetadataFromScalars rebuilds ChunkMetadata from a scalar map produced by
// Scalars. Numbers may arrive as int, int64 or float64 (JSON decoding).
func ChunkMetadataFromScalars(m map[string]interface{}) (ChunkMetadata, error) {
	pages, err := DecodePageNumbers(scalarString(m, MetaPageNumbers))
	if err != nil {
		return ChunkMetadata{}, err
	}
	return ChunkMetadata{
		CaseReference:    scalarString(m, MetaCaseReference),
		DocumentID:       scalarString(m, MetaDocumentID),
		SourceFilename:   scalarString(m, MetaSourceFilename),
		DocumentType:     scalarString(m, MetaDocumentType),
		PageNumbers:      pages,
		ChunkIndex:       scalarInt(m, MetaChunkIndex),
		TotalChunks:      scalarInt(m, MetaTotalChunks),
		ExtractionMethod: scalarString(m, MetaExtractionMethod),
		CharCount:        scalarInt(m, MetaCharCount),
		WordCount:        scalarInt(m, MetaWordCount),
	}, nil
}

func scalarString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func scalarInt(m map[string]interface{}, key string) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		x, _ := strconv.Atoi(n)
		return x
	default:
		return 0
	}
}
