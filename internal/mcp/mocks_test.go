package mcp

import (
	"context"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
)

type mockRetriever struct {
	search   *retrieval.SearchResponse
	text     *retrieval.DocumentTextResponse
	list     *retrieval.ListDocumentsResponse
	err      error
	lastReq  retrieval.SearchRequest
	lastKw   retrieval.KeywordSearchRequest
	lastCase string
}

func (m *mockRetriever) Search(_ context.Context, req retrieval.SearchRequest) (*retrieval.SearchResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.search == nil {
		return &retrieval.SearchResponse{Status: retrieval.StatusSuccess, Results: []models.SearchResult{}}, nil
	}
	return m.search, nil
}

func (m *mockRetriever) KeywordSearch(_ context.Context, req retrieval.KeywordSearchRequest) (*retrieval.SearchResponse, error) {
	m.lastKw = req
	if m.err != nil {
		return nil, m.err
	}
	return m.search, nil
}

func (m *mockRetriever) GetDocumentText(_ context.Context, _ string) (*retrieval.DocumentTextResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.text, nil
}

func (m *mockRetriever) ListDocuments(_ context.Context, caseReference string) (*retrieval.ListDocumentsResponse, error) {
	m.lastCase = caseReference
	if m.err != nil {
		return nil, m.err
	}
	return m.list, nil
}

type mockIngester struct {
	result models.IngestResult
	calls  []string
}

func (m *mockIngester) IngestDocument(_ context.Context, path, caseReference, documentType string) models.IngestResult {
	m.calls = append(m.calls, path+"|"+caseReference+"|"+documentType)
	return m.result
}
