package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
)

// IngestInput is the input schema for the ingest_document tool.
type IngestInput struct {
	FilePath      string `json:"file_path" jsonschema:"absolute path of the file to ingest"`
	CaseReference string `json:"case_reference" jsonschema:"planning application reference, e.g. 25/01178/REM"`
	DocumentType  string `json:"document_type,omitempty" jsonschema:"document category; classified from filename and content when omitted"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query         string   `json:"query" jsonschema:"natural-language query"`
	CaseReference string   `json:"case_reference,omitempty" jsonschema:"restrict results to this case"`
	DocumentTypes []string `json:"document_types,omitempty" jsonschema:"restrict results to these document categories"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// KeywordSearchInput is the input schema for the keyword_search tool.
type KeywordSearchInput struct {
	Query         string   `json:"query" jsonschema:"words or phrase to match"`
	CaseReference string   `json:"case_reference,omitempty" jsonschema:"restrict results to this case"`
	DocumentTypes []string `json:"document_types,omitempty" jsonschema:"restrict results to these document categories"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Fuzzy         bool     `json:"fuzzy,omitempty" jsonschema:"tolerate small spelling differences"`
}

// DocumentTextInput is the input schema for the get_document_text tool.
type DocumentTextInput struct {
	DocumentID string `json:"document_id" jsonschema:"document id returned by ingest_document or search"`
}

// ListDocumentsInput is the input schema for the list_documents tool.
type ListDocumentsInput struct {
	CaseReference string `json:"case_reference" jsonschema:"planning application reference"`
}

// SearchOutput is the output schema for the search tools.
type SearchOutput struct {
	Status       string               `json:"status"`
	ResultsCount int                  `json:"results_count"`
	Results      []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	ChunkID        string               `json:"chunk_id"`
	Text           string               `json:"text"`
	RelevanceScore float64              `json:"relevance_score"`
	Metadata       models.ChunkMetadata `json:"metadata"`
}

// DocumentOutput is one registry row.
type DocumentOutput struct {
	DocumentID       string `json:"document_id"`
	FilePath         string `json:"file_path"`
	DocumentType     string `json:"document_type"`
	ChunkCount       int    `json:"chunk_count"`
	IngestedAt       string `json:"ingested_at"`
	ExtractionMethod string `json:"extraction_method"`
	ContainsDrawings bool   `json:"contains_drawings"`
}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Status        string           `json:"status"`
	CaseReference string           `json:"case_reference"`
	DocumentCount int              `json:"document_count"`
	Documents     []DocumentOutput `json:"documents"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest_document",
			Description: "Ingest a file into the document store for a planning case. Re-ingesting identical content is a no-op.",
		}, s.handleIngest)
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over ingested document chunks, optionally scoped to a case and document categories",
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_document_text",
		Description: "Full extracted text of one document, chunks joined in order",
	}, s.handleDocumentText)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the documents ingested for a planning case",
	}, s.handleListDocuments)
	if s.ports.KeywordEnabled {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "keyword_search",
			Description: "Full-text keyword search over ingested chunks",
		}, s.handleKeywordSearch)
	}
}

func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, models.IngestResult, error) {
	res := s.ports.Ingest.IngestDocument(ctx, input.FilePath, input.CaseReference, input.DocumentType)
	s.logger.Debug("mcp ingest_document",
		zap.String("path", input.FilePath),
		zap.String("status", res.Status),
		zap.String("error_type", res.ErrorType))
	return nil, res, nil
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := s.ports.Retrieval.Search(ctx, input.request())
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, searchOutput(resp), nil
}

func (s *Server) handleKeywordSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input KeywordSearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := s.ports.Retrieval.KeywordSearch(ctx, retrieval.KeywordSearchRequest{
		SearchRequest: retrieval.SearchRequest{
			Query:         input.Query,
			CaseReference: input.CaseReference,
			DocumentTypes: input.DocumentTypes,
			Limit:         input.Limit,
		},
		Fuzzy: input.Fuzzy,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, searchOutput(resp), nil
}

func (s *Server) handleDocumentText(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentTextInput,
) (*mcp.CallToolResult, retrieval.DocumentTextResponse, error) {
	resp, err := s.ports.Retrieval.GetDocumentText(ctx, input.DocumentID)
	if err != nil {
		return nil, retrieval.DocumentTextResponse{}, err
	}
	return nil, *resp, nil
}

func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	resp, err := s.ports.Retrieval.ListDocuments(ctx, input.CaseReference)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}
	out := ListDocumentsOutput{
		Status:        resp.Status,
		CaseReference: resp.CaseReference,
		DocumentCount: resp.DocumentCount,
		Documents:     make([]DocumentOutput, len(resp.Documents)),
	}
	for i, d := range resp.Documents {
		out.Documents[i] = DocumentOutput{
			DocumentID:       d.DocumentID,
			FilePath:         d.FilePath,
			DocumentType:     d.DocumentType,
			ChunkCount:       d.ChunkCount,
			IngestedAt:       d.IngestedAt.UTC().Format(time.RFC3339),
			ExtractionMethod: d.ExtractionMethod,
			ContainsDrawings: d.ContainsDrawings,
		}
	}
	return nil, out, nil
}

func (in SearchInput) request() retrieval.SearchRequest {
	return retrieval.SearchRequest{
		Query:         in.Query,
		CaseReference: in.CaseReference,
		DocumentTypes: in.DocumentTypes,
		Limit:         in.Limit,
	}
}

func searchOutput(resp *retrieval.SearchResponse) SearchOutput {
	out := SearchOutput{
		Status:       resp.Status,
		ResultsCount: resp.ResultsCount,
		Results:      make([]SearchResultOutput, len(resp.Results)),
	}
	for i, r := range resp.Results {
		md := r.Metadata
		if md.PageNumbers == nil {
			md.PageNumbers = []int{}
		}
		out.Results[i] = SearchResultOutput{
			ChunkID:        r.ChunkID,
			Text:           r.Text,
			RelevanceScore: r.RelevanceScore,
			Metadata:       md,
		}
	}
	return out
}
