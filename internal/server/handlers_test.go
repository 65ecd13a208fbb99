package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bicesterbug/bbug-planning-reporter/internal/chunker"
	"github.com/bicesterbug/bbug-planning-reporter/internal/config"
	"github.com/bicesterbug/bbug-planning-reporter/internal/embedding"
	"github.com/bicesterbug/bbug-planning-reporter/internal/extract"
	"github.com/bicesterbug/bbug-planning-reporter/internal/indexer"
	"github.com/bicesterbug/bbug-planning-reporter/internal/keyword"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/progress"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
	"github.com/bicesterbug/bbug-planning-reporter/internal/storage"
	"github.com/bicesterbug/bbug-planning-reporter/internal/watcher"
)

const caseRef = "25/01178/REM"

type mockWatchService struct {
	inboxes []watcher.Inbox
}

func (m *mockWatchService) Inboxes() []watcher.Inbox {
	return append([]watcher.Inbox(nil), m.inboxes...)
}

func (m *mockWatchService) AddInbox(in watcher.Inbox, _ bool) error {
	for _, d := range m.inboxes {
		if d.Path == in.Path {
			return nil
		}
	}
	m.inboxes = append(m.inboxes, in)
	return nil
}

func (m *mockWatchService) RemoveInbox(path string) error {
	for i, d := range m.inboxes {
		if d.Path == path {
			m.inboxes = append(m.inboxes[:i], m.inboxes[i+1:]...)
			return nil
		}
	}
	return nil
}

type testEnv struct {
	srv *Server
	ts  *httptest.Server
	dir string
}

func newTestEnv(t *testing.T, withKeyword bool, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(context.Background(), filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb := embedding.NewServiceWithBackend(embedding.NewMockBackend(32))
	idxOpts := []indexer.Option{indexer.WithChunker(chunker.NewChunker(10, 2))}
	var retOpts []retrieval.Option
	if withKeyword {
		kw, err := keyword.NewBleveIndex("")
		require.NoError(t, err)
		t.Cleanup(func() { _ = kw.Close() })
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(kw))
		retOpts = append(retOpts, retrieval.WithKeywordIndex(kw))
	}
	idx := indexer.NewIndexer(store, emb, extract.NewExtractor(), idxOpts...)
	ret := retrieval.NewService(store, emb, retOpts...)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "store.db")

	srv := NewServer(ret, idx, cfg, nil, opts...)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return &testEnv{srv: srv, ts: ts, dir: dir}
}

func (e *testEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, false)
	var out map[string]string
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", nil, &out))
	assert.Equal(t, "ok", out["status"])
}

func TestIngestSearchTextListDelete(t *testing.T) {
	e := newTestEnv(t, true)
	path := e.writeFile(t, "Transport_Assessment.txt",
		"The junction capacity assessment shows the roundabout operates within capacity. "+
			"Cycle parking is provided at the entrance.")

	var res models.IngestResult
	code := e.do(t, http.MethodPost, "/api/v1/ingest",
		ingestRequest{FilePath: path, CaseReference: caseRef}, &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, models.StatusSuccess, res.Status, res.Message)
	require.NotEmpty(t, res.DocumentID)

	var again models.IngestResult
	e.do(t, http.MethodPost, "/api/v1/ingest", ingestRequest{FilePath: path, CaseReference: caseRef}, &again)
	assert.Equal(t, models.StatusAlreadyIngested, again.Status)

	var search retrieval.SearchResponse
	code = e.do(t, http.MethodPost, "/api/v1/search",
		retrieval.SearchRequest{Query: "cycle parking", CaseReference: caseRef}, &search)
	require.Equal(t, http.StatusOK, code)
	require.NotZero(t, search.ResultsCount)
	for _, r := range search.Results {
		assert.Equal(t, caseRef, r.Metadata.CaseReference)
	}

	var other retrieval.SearchResponse
	e.do(t, http.MethodPost, "/api/v1/search",
		retrieval.SearchRequest{Query: "cycle parking", CaseReference: "99/00001/F"}, &other)
	assert.Equal(t, 0, other.ResultsCount)

	var kw retrieval.SearchResponse
	code = e.do(t, http.MethodPost, "/api/v1/search/keyword",
		retrieval.KeywordSearchRequest{SearchRequest: retrieval.SearchRequest{Query: "roundabout", CaseReference: caseRef}}, &kw)
	require.Equal(t, http.StatusOK, code)
	assert.NotZero(t, kw.ResultsCount)

	var hybrid retrieval.SearchResponse
	code = e.do(t, http.MethodPost, "/api/v1/search/hybrid",
		retrieval.HybridSearchRequest{SearchRequest: retrieval.SearchRequest{Query: "roundabout capacity"}}, &hybrid)
	require.Equal(t, http.StatusOK, code)
	assert.NotZero(t, hybrid.ResultsCount)

	var text retrieval.DocumentTextResponse
	code = e.do(t, http.MethodGet, "/api/v1/documents/"+res.DocumentID+"/text", nil, &text)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, retrieval.StatusSuccess, text.Status)
	assert.Equal(t, "transport_assessment", text.DocumentType)
	assert.Contains(t, text.Text, "roundabout")

	var list retrieval.ListDocumentsResponse
	code = e.do(t, http.MethodGet, "/api/v1/cases/"+url.PathEscape(caseRef)+"/documents", nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, caseRef, list.CaseReference)
	require.Equal(t, 1, list.DocumentCount)
	assert.Equal(t, res.DocumentID, list.Documents[0].DocumentID)

	var del retrieval.DeleteResponse
	code = e.do(t, http.MethodDelete, "/api/v1/documents/"+res.DocumentID, nil, &del)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, res.ChunksCreated, del.ChunksDeleted)

	var gone retrieval.DocumentTextResponse
	code = e.do(t, http.MethodGet, "/api/v1/documents/"+res.DocumentID+"/text", nil, &gone)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, models.ErrTypeDocumentNotFound, gone.ErrorType)
}

func TestIngest_Errors(t *testing.T) {
	e := newTestEnv(t, false)

	resp, err := http.Post(e.ts.URL+"/api/v1/ingest", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var res models.IngestResult
	code := e.do(t, http.MethodPost, "/api/v1/ingest",
		ingestRequest{FilePath: filepath.Join(e.dir, "missing.pdf"), CaseReference: caseRef}, &res)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, models.ErrTypeFileNotFound, res.ErrorType)

	path := e.writeFile(t, "a.txt", "some text")
	code = e.do(t, http.MethodPost, "/api/v1/ingest", ingestRequest{FilePath: path}, &res)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, models.ErrTypeInvalidInput, res.ErrorType)
}

func TestSearch_InvalidAndDisabled(t *testing.T) {
	e := newTestEnv(t, false)
	var out map[string]string
	code := e.do(t, http.MethodPost, "/api/v1/search", retrieval.SearchRequest{Query: "  "}, &out)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, out["error"])

	code = e.do(t, http.MethodPost, "/api/v1/search/keyword",
		retrieval.KeywordSearchRequest{SearchRequest: retrieval.SearchRequest{Query: "x"}}, &out)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t, true)
	path := e.writeFile(t, "note.txt", "Drainage strategy for the site.")
	var res models.IngestResult
	e.do(t, http.MethodPost, "/api/v1/ingest", ingestRequest{FilePath: path, CaseReference: caseRef}, &res)
	require.Equal(t, models.StatusSuccess, res.Status, res.Message)

	var out struct {
		Store         models.StoreStats      `json:"store"`
		KeywordChunks uint64                 `json:"keyword_chunks"`
		Config        map[string]interface{} `json:"config"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/status", nil, &out))
	assert.Equal(t, int64(1), out.Store.Documents)
	assert.Equal(t, int64(res.ChunksCreated), out.Store.Chunks)
	assert.Equal(t, uint64(res.ChunksCreated), out.KeywordChunks)
	assert.Equal(t, "sqlite", out.Config["storage_backend"])
}

func TestIngestBatch_StreamsProgress(t *testing.T) {
	hub := progress.NewHub(nil)
	e := newTestEnv(t, false, WithHub(hub))
	e.writeFile(t, "inbox/one.txt", "Cycle route along the northern boundary.")
	e.writeFile(t, "inbox/two.md", "Bus stop relocation on Howes Lane.")
	e.writeFile(t, "inbox/skip.dwg", "binary")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.ts.URL, "http")+"/api/v1/progress/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	var accepted batchAccepted
	code := e.do(t, http.MethodPost, "/api/v1/ingest/batch",
		batchRequest{Directory: filepath.Join(e.dir, "inbox"), CaseReference: caseRef}, &accepted)
	require.Equal(t, http.StatusAccepted, code)
	require.NotEmpty(t, accepted.JobID)
	assert.Equal(t, 2, accepted.Files)

	var final progress.Snapshot
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		var s progress.Snapshot
		require.NoError(t, conn.ReadJSON(&s))
		if s.JobID == accepted.JobID && s.Finished && s.Done() == s.Total {
			final = s
			break
		}
	}
	assert.True(t, final.Finished, "finished snapshot not received")
	assert.Equal(t, 2, final.Ingested)
	assert.Equal(t, 0, final.Failed)
}

func TestIngestBatch_Validation(t *testing.T) {
	e := newTestEnv(t, false)
	var out map[string]string
	assert.Equal(t, http.StatusBadRequest,
		e.do(t, http.MethodPost, "/api/v1/ingest/batch", batchRequest{Paths: []string{"/x.txt"}}, &out))
	assert.Equal(t, http.StatusBadRequest,
		e.do(t, http.MethodPost, "/api/v1/ingest/batch", batchRequest{CaseReference: caseRef}, &out))
	assert.Equal(t, http.StatusBadRequest,
		e.do(t, http.MethodPost, "/api/v1/ingest/batch",
			batchRequest{CaseReference: caseRef, Directory: filepath.Join(e.dir, "nope")}, &out))
}

func TestWatchInboxes(t *testing.T) {
	mock := &mockWatchService{inboxes: []watcher.Inbox{{Path: "/tmp/docs", CaseReference: "A/1"}}}
	cfgDir := t.TempDir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")
	e := newTestEnv(t, false, WithWatch(mock, cfgPath))

	var list struct {
		Inboxes []watcher.Inbox `json:"inboxes"`
	}
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/watch/inboxes", nil, &list))
	require.Len(t, list.Inboxes, 1)
	assert.Equal(t, "A/1", list.Inboxes[0].CaseReference)

	inboxDir := t.TempDir()
	var added map[string]string
	code := e.do(t, http.MethodPost, "/api/v1/watch/inboxes",
		map[string]interface{}{"path": inboxDir, "case_reference": caseRef, "sync": false}, &added)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "added", added["status"])
	require.Len(t, mock.inboxes, 2)
	assert.Equal(t, caseRef, mock.inboxes[1].CaseReference)

	saved, err := config.Load(cfgPath)
	require.NoError(t, err)
	require.Len(t, saved.Watch.Inboxes, 2)

	var out map[string]string
	code = e.do(t, http.MethodPost, "/api/v1/watch/inboxes",
		map[string]interface{}{"path": filepath.Join(inboxDir, "missing"), "case_reference": caseRef}, &out)
	assert.Equal(t, http.StatusNotFound, code)
	code = e.do(t, http.MethodPost, "/api/v1/watch/inboxes", map[string]interface{}{"path": inboxDir}, &out)
	assert.Equal(t, http.StatusBadRequest, code)

	code = e.do(t, http.MethodDelete, "/api/v1/watch/inboxes?path="+url.QueryEscape(inboxDir), nil, &out)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, mock.inboxes, 1)
}

func TestWatchInboxes_NoSavePath(t *testing.T) {
	t.Chdir(t.TempDir())
	mock := &mockWatchService{}
	e := newTestEnv(t, false, WithWatch(mock, ""))

	var added map[string]string
	code := e.do(t, http.MethodPost, "/api/v1/watch/inboxes",
		map[string]interface{}{"path": t.TempDir(), "case_reference": caseRef, "sync": false}, &added)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, mock.inboxes, 1)

	entries, err := os.ReadDir(".")
	require.NoError(t, err)
	assert.Empty(t, entries, "no config file is written without a save path")
}

func TestIngestSuccessCarriesAllFields(t *testing.T) {
	e := newTestEnv(t, false)
	path := e.writeFile(t, "Notes.txt", "Cycle parking is provided at the entrance.")

	var raw map[string]interface{}
	code := e.do(t, http.MethodPost, "/api/v1/ingest",
		ingestRequest{FilePath: path, CaseReference: caseRef}, &raw)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, models.StatusSuccess, raw["status"])
	for _, key := range []string{"document_id", "chunks_created", "extraction_method", "contains_drawings", "total_chars", "total_words"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, false, raw["contains_drawings"])
}

func TestWatchInboxes_NotEnabled(t *testing.T) {
	e := newTestEnv(t, false)
	var out map[string]string
	assert.Equal(t, http.StatusNotImplemented, e.do(t, http.MethodGet, "/api/v1/watch/inboxes", nil, &out))
}

func TestIngestStatusCode(t *testing.T) {
	tests := []struct {
		res  models.IngestResult
		want int
	}{
		{models.IngestResult{Status: models.StatusSuccess}, http.StatusOK},
		{models.IngestResult{Status: models.StatusSkipped}, http.StatusOK},
		{models.IngestError(models.ErrTypeInvalidInput, ""), http.StatusBadRequest},
		{models.IngestError(models.ErrTypeUnsupportedType, ""), http.StatusBadRequest},
		{models.IngestError(models.ErrTypeFileNotFound, ""), http.StatusNotFound},
		{models.IngestError(models.ErrTypeEmbeddingFailed, ""), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.res.Status, tt.res.ErrorType), func(t *testing.T) {
			assert.Equal(t, tt.want, ingestStatusCode(tt.res))
		})
	}
}
