package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
)

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"roundabout"}, "roundabout"},
		{"multiple words", []string{"cycle", "parking"}, "cycle parking"},
		{"single quoted phrase", []string{"cycle parking"}, "cycle parking"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/documents.db"
  bleve_index_path: "./data/keyword.bleve"
embedding:
  backend: mock
  dimensions: 32
ingest:
  chunk_size: 20
  chunk_overlap: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_cwdFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir)
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "mock", cfg.Embedding.Backend)
	assert.Equal(t, filepath.Join(dir, "data", "documents.db"), cfg.Storage.DatabasePath)
}

func TestLoadConfig_defaultsWhenNoFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	t.Chdir(t.TempDir())

	cfg, resolved, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Empty(t, resolved, "built-in defaults must not name a save path")
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoadConfig_explicitMissingFile(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "case")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "nested"), 0o755))
	for _, name := range []string{"a.pdf", "nested/b.txt", "ignored.exe"} {
		require.NoError(t, os.WriteFile(filepath.Join(sub, name), []byte("x"), 0o600))
	}
	single := filepath.Join(dir, "single.docx")

	paths, err := expandPaths([]string{sub, single})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(sub, "a.pdf"),
		filepath.Join(sub, "nested", "b.txt"),
		single,
	}, paths)
}

func TestCallAPI(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/search":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_, _ = w.Write([]byte(`{"status":"success","results_count":0,"results":[]}`))
		default:
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		}
	}))
	defer ts.Close()

	var resp retrieval.SearchResponse
	err := callAPI(http.MethodPost, ts.URL+"/", "/api/v1/search", retrieval.SearchRequest{Query: "q"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, retrieval.StatusSuccess, resp.Status)

	err = callAPI(http.MethodGet, ts.URL, "/api/v1/missing", nil, &resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestBuildComponents_ingestAndSearch(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := loadConfig(writeTestConfig(t, dir))
	require.NoError(t, err)

	ctx := context.Background()
	c, err := buildComponents(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	assert.Empty(t, c.Observers)

	doc := filepath.Join(dir, "Travel_Plan.txt")
	require.NoError(t, os.WriteFile(doc, []byte(
		"The travel plan sets targets for walking and cycling to the new school. "+
			"Secure cycle parking is provided next to the main entrance."), 0o600))

	res := c.Indexer.IngestDocument(ctx, doc, "25/01178/REM", "")
	require.Equal(t, models.StatusSuccess, res.Status, res.Message)

	kw, err := c.Retrieval.KeywordSearch(ctx, retrieval.KeywordSearchRequest{
		SearchRequest: retrieval.SearchRequest{Query: "cycle parking", CaseReference: "25/01178/REM"},
	})
	require.NoError(t, err)
	assert.NotZero(t, kw.ResultsCount)

	list, err := c.Retrieval.ListDocuments(ctx, "25/01178/REM")
	require.NoError(t, err)
	require.Equal(t, 1, list.DocumentCount)
	assert.Equal(t, res.DocumentID, list.Documents[0].DocumentID)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetOut(nil)
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.HasPrefix(buf.String(), "docstore "))
}
