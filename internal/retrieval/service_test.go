package retrieval

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bicesterbug/bbug-planning-reporter/internal/chunker"
	"github.com/bicesterbug/bbug-planning-reporter/internal/embedding"
	"github.com/bicesterbug/bbug-planning-reporter/internal/extract"
	"github.com/bicesterbug/bbug-planning-reporter/internal/fileid"
	"github.com/bicesterbug/bbug-planning-reporter/internal/indexer"
	"github.com/bicesterbug/bbug-planning-reporter/internal/keyword"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/storage"
)

const caseA = "25/01178/REM"

type env struct {
	svc   *Service
	idx   *indexer.Indexer
	store *storage.SQLiteStore
	kw    *keyword.BleveIndex
	emb   *embedding.Service
	dir   string
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(context.Background(), filepath.Join(dir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kw.Close() })
	emb := embedding.NewServiceWithBackend(embedding.NewMockBackend(64))
	idx := indexer.NewIndexer(store, emb, extract.NewExtractor(),
		indexer.WithKeywordIndex(kw),
		indexer.WithChunker(chunker.NewChunker(10, 2)))
	opts = append([]Option{WithKeywordIndex(kw)}, opts...)
	return &env{
		svc:   NewService(store, emb, opts...),
		idx:   idx,
		store: store,
		kw:    kw,
		emb:   emb,
		dir:   dir,
	}
}

func (e *env) ingest(t *testing.T, name, caseRef, docType, content string) models.IngestResult {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	res := e.idx.IngestDocument(context.Background(), path, caseRef, docType)
	require.Equal(t, models.StatusSuccess, res.Status, res.Message)
	return res
}

func TestSearch_EmptyStore(t *testing.T) {
	e := newEnv(t)
	resp, err := e.svc.Search(context.Background(), SearchRequest{Query: "cycle parking", CaseReference: caseA})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, 0, resp.ResultsCount)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestSearch_Scoping(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, "a.txt", caseA, "travel_plan", "Secure cycle parking is provided for every dwelling with covered stands.")
	e.ingest(t, "b.txt", "25/00001/F", "travel_plan", "Cycle parking spaces are provided near the entrance of the store.")
	e.ingest(t, "c.txt", caseA, "officer_report", "The officer recommends approval subject to conditions on cycle parking.")

	ctx := context.Background()
	resp, err := e.svc.Search(ctx, SearchRequest{Query: "cycle parking", CaseReference: caseA})
	require.NoError(t, err)
	require.GreaterOrEqual(t, resp.ResultsCount, 1)
	for _, r := range resp.Results {
		assert.Equal(t, caseA, r.Metadata.CaseReference)
		assert.GreaterOrEqual(t, r.RelevanceScore, 0.0)
		assert.LessOrEqual(t, r.RelevanceScore, 1.0)
	}

	resp, err = e.svc.Search(ctx, SearchRequest{Query: "cycle parking", CaseReference: caseA, DocumentTypes: []string{"officer_report"}})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	for _, r := range resp.Results {
		assert.Equal(t, "officer_report", r.Metadata.DocumentType)
	}

	again, err := e.svc.Search(ctx, SearchRequest{Query: "cycle parking", CaseReference: caseA, DocumentTypes: []string{"officer_report"}})
	require.NoError(t, err)
	assert.Equal(t, resp, again)
}

func TestSearch_Limits(t *testing.T) {
	e := newEnv(t, WithMaxLimit(3))
	words := strings.Repeat("junction capacity modelling queue lengths ", 20)
	e.ingest(t, "ta.txt", caseA, "", words)

	resp, err := e.svc.Search(context.Background(), SearchRequest{Query: "junction", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.ResultsCount)

	_, err = e.svc.Search(context.Background(), SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, DefaultLimit, NewService(e.store, e.emb).limit(0))
}

func TestGetDocumentText_OrderAndErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hash := fileid.HashBytes([]byte("ordering"))
	docID := fileid.DocumentID(caseA, hash)
	chunks := make([]models.Chunk, 6)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:        fileid.ChunkID(caseA, hash, 1, i),
			Text:      fmt.Sprintf("part %d", i),
			Embedding: []float32{1, 0, 0, 0},
			Metadata: models.ChunkMetadata{
				CaseReference: caseA, DocumentID: docID, DocumentType: "travel_plan",
				PageNumbers: []int{1}, ChunkIndex: i, TotalChunks: len(chunks),
			},
		}
	}
	shuffled := append([]models.Chunk(nil), chunks...)
	rand.New(rand.NewSource(3)).Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	for _, c := range shuffled {
		require.NoError(t, e.store.UpsertChunks(ctx, []models.Chunk{c}))
	}

	resp, err := e.svc.GetDocumentText(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "part 0\n\npart 1\n\npart 2\n\npart 3\n\npart 4\n\npart 5", resp.Text)
	assert.Equal(t, 6, resp.ChunkCount)
	assert.Equal(t, "travel_plan", resp.DocumentType)

	missing, err := e.svc.GetDocumentText(ctx, "nope_000000")
	require.NoError(t, err)
	assert.Equal(t, StatusError, missing.Status)
	assert.Equal(t, models.ErrTypeDocumentNotFound, missing.ErrorType)

	require.NoError(t, e.store.RegisterDocument(ctx, models.DocumentRecord{
		DocumentID: "X_abcdef", CaseReference: "X", ContentHash: "abcdef", DocumentType: "other",
	}))
	empty, err := e.svc.GetDocumentText(ctx, "X_abcdef")
	require.NoError(t, err)
	assert.Equal(t, models.ErrTypeNoChunks, empty.ErrorType)
}

func TestListAndDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.ingest(t, "Travel_Plan.txt", caseA, "", "Targets for walking and cycling mode share.")
	e.ingest(t, "notes.txt", caseA, "", "General notes on the application.")

	list, err := e.svc.ListDocuments(ctx, caseA)
	require.NoError(t, err)
	assert.Equal(t, 2, list.DocumentCount)
	var tp *DocumentSummary
	for i := range list.Documents {
		if list.Documents[i].DocumentID == first.DocumentID {
			tp = &list.Documents[i]
		}
	}
	require.NotNil(t, tp)
	assert.Equal(t, "travel_plan", tp.DocumentType)
	assert.Equal(t, extract.MethodPlainText, tp.ExtractionMethod)

	_, err = e.svc.ListDocuments(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	del, err := e.svc.DeleteDocument(ctx, first.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, first.ChunksCreated, del.ChunksDeleted)

	chunks, err := e.store.GetDocumentChunks(ctx, first.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	kwResp, err := e.svc.KeywordSearch(ctx, KeywordSearchRequest{SearchRequest: SearchRequest{Query: "cycling"}})
	require.NoError(t, err)
	assert.Equal(t, 0, kwResp.ResultsCount)

	list, err = e.svc.ListDocuments(ctx, caseA)
	require.NoError(t, err)
	assert.Equal(t, 1, list.DocumentCount)

	del, err = e.svc.DeleteDocument(ctx, first.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 0, del.ChunksDeleted)
}

func TestKeywordSearch(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, "a.txt", caseA, "", "The A4095 Howes Lane realignment affects the bus route.")
	e.ingest(t, "b.txt", caseA, "", "Bus stops on Howes Lane will be relocated.")

	resp, err := e.svc.KeywordSearch(context.Background(), KeywordSearchRequest{
		SearchRequest: SearchRequest{Query: "Howes Lane", CaseReference: caseA},
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.ResultsCount)
	assert.InDelta(t, 1.0, resp.Results[0].RelevanceScore, 1e-9)
	for _, r := range resp.Results {
		assert.LessOrEqual(t, r.RelevanceScore, 1.0)
		assert.Greater(t, r.RelevanceScore, 0.0)
	}

	disabled := NewService(e.store, e.emb)
	_, err = disabled.KeywordSearch(context.Background(), KeywordSearchRequest{SearchRequest: SearchRequest{Query: "x"}})
	assert.ErrorIs(t, err, ErrKeywordDisabled)
}

func TestHybridSearch(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, "a.txt", caseA, "", "Cycle parking stands are provided at the north entrance.")
	e.ingest(t, "b.txt", caseA, "", "Drainage strategy for surface water attenuation.")

	resp, err := e.svc.HybridSearch(context.Background(), HybridSearchRequest{
		SearchRequest: SearchRequest{Query: "cycle parking", CaseReference: caseA, Limit: 5},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Contains(t, resp.Results[0].Text, "Cycle parking")
	for _, r := range resp.Results {
		assert.LessOrEqual(t, r.RelevanceScore, 1.0+1e-9)
	}

	_, err = e.svc.HybridSearch(context.Background(), HybridSearchRequest{
		SearchRequest: SearchRequest{Query: "x"}, KeywordWeight: -1,
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStats(t *testing.T) {
	e := newEnv(t)
	res := e.ingest(t, "a.txt", caseA, "", "Some words to store.")
	st, err := e.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Store.Documents)
	assert.Equal(t, int64(res.ChunksCreated), st.Store.Chunks)
	assert.Equal(t, uint64(res.ChunksCreated), st.KeywordChunks)
}

func TestEndToEnd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	path := filepath.Join(e.dir, "A.txt")
	content := "Page one describes the site.\fPage two covers cycle parking provision.\fPage three covers junctions."
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	hash := fileid.HashBytes([]byte(content))

	res := e.idx.IngestDocument(ctx, path, caseA, "")
	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Greater(t, res.ChunksCreated, 0)
	assert.Equal(t, "25_01178_REM_"+hash[:6], res.DocumentID)

	again := e.idx.IngestDocument(ctx, path, caseA, "")
	assert.Equal(t, models.StatusAlreadyIngested, again.Status)
	assert.Equal(t, res.DocumentID, again.DocumentID)

	resp, err := e.svc.Search(ctx, SearchRequest{Query: "cycle parking", CaseReference: caseA})
	require.NoError(t, err)
	require.GreaterOrEqual(t, resp.ResultsCount, 1)
	assert.Equal(t, caseA, resp.Results[0].Metadata.CaseReference)
}
