package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
)

const uriScheme = "docstore://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}",
		Name:        "document-text",
		Description: "Full extracted text of a document",
		MIMEType:    "text/plain",
	}, s.handleDocumentResource)

	// Case references contain slashes, so the segment is path-escaped.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "cases/{caseReference}/documents",
		Name:        "case-documents",
		Description: "Documents ingested for a planning case",
		MIMEType:    "application/json",
	}, s.handleCaseDocumentsResource)
}

func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	resp, err := s.ports.Retrieval.GetDocumentText(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("getting document text: %w", err)
	}
	if resp.Status != retrieval.StatusSuccess {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     resp.Text,
		}},
	}, nil
}

func (s *Server) handleCaseDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	caseRef := extractCaseReference(req.Params.URI)
	if caseRef == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	resp, err := s.ports.Retrieval.ListDocuments(ctx, caseRef)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	data, err := json.MarshalIndent(resp.Documents, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID extracts the document ID from docstore://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

// extractCaseReference extracts and unescapes the case from
// docstore://cases/{caseReference}/documents.
func extractCaseReference(uri string) string {
	const prefix = uriScheme + "cases/"
	const suffix = "/documents"
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return ""
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	caseRef, err := url.PathUnescape(raw)
	if err != nil {
		return ""
	}
	return caseRef
}
