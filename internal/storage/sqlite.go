package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/fileid"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/vector"
)

// SQLiteStore implements Store with SQLite tables for chunks and the registry and
// an in-memory vector index rebuilt from the chunk table on open.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	index  *vector.MemoryIndex
	opts   options
	logger *zap.Logger

	// chunk ID -> filterable fields, for the search predicate
	mu   sync.RWMutex
	meta map[string]chunkKey
}

type chunkKey struct {
	caseReference string
	documentType  string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and loads every stored
// vector into memory. Parent directories are created if they do not exist.
func NewSQLiteStore(ctx context.Context, dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	o := buildOptions(opts)
	s := &SQLiteStore{
		db:     db,
		path:   dbPath,
		index:  vector.NewMemoryIndex(0),
		opts:   o,
		logger: o.logger,
		meta:   make(map[string]chunkKey),
	}
	if err := s.loadIndex(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		document_id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		case_reference TEXT NOT NULL,
		document_type TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		ingested_at TIMESTAMP NOT NULL,
		extraction_method TEXT NOT NULL,
		contains_drawings INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_documents_case ON documents(case_reference, ingested_at);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		case_reference TEXT NOT NULL,
		document_type TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) loadIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, case_reference, document_type, embedding FROM chunks`)
	if err != nil {
		return backendErr("load_index", err)
	}
	defer rows.Close()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id, caseRef, docType string
		var blob []byte
		if err := rows.Scan(&id, &caseRef, &docType, &blob); err != nil {
			return backendErr("load_index", err)
		}
		vec, err := vector.DecodeFloat32s(blob)
		if err != nil {
			return backendErr("load_index", fmt.Errorf("chunk %s: %w", id, err))
		}
		ids = append(ids, id)
		vecs = append(vecs, vec)
		s.meta[id] = chunkKey{caseReference: caseRef, documentType: docType}
	}
	if err := rows.Err(); err != nil {
		return backendErr("load_index", err)
	}
	if err := s.index.Upsert(ctx, ids, vecs); err != nil {
		return backendErr("load_index", err)
	}
	s.logger.Debug("vector index loaded", zap.Int("chunks", len(ids)))
	return nil
}

// UpsertChunks writes all chunks in one transaction, then updates the vector index.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, len(chunks))
	vecs := make([][]float32, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if d := s.index.Dimensions(); d != 0 && len(c.Embedding) != d {
			return fmt.Errorf("chunk %s: embedding has %d dimensions, store has %d", c.ID, len(c.Embedding), d)
		}
		ids[i] = c.ID
		vecs[i] = c.Embedding
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backendErr("upsert_chunks", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, document_id, case_reference, document_type, chunk_index, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			case_reference = excluded.case_reference,
			document_type = excluded.document_type,
			chunk_index = excluded.chunk_index,
			text = excluded.text,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return backendErr("upsert_chunks", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata.Scalars())
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Metadata.DocumentID, c.Metadata.CaseReference, c.Metadata.DocumentType,
			c.Metadata.ChunkIndex, c.Text, string(metaJSON), vector.EncodeFloat32s(c.Embedding),
		); err != nil {
			return backendErr("upsert_chunks", fmt.Errorf("chunk %s: %w", c.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return backendErr("upsert_chunks", err)
	}

	s.mu.Lock()
	for _, c := range chunks {
		s.meta[c.ID] = chunkKey{caseReference: c.Metadata.CaseReference, documentType: c.Metadata.DocumentType}
	}
	s.mu.Unlock()
	if err := s.index.Upsert(ctx, ids, vecs); err != nil {
		return backendErr("upsert_chunks", err)
	}
	return nil
}

// Search runs a brute-force cosine search over the accepted chunks and loads the
// hits from the chunk table.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, limit int, filter Filter) ([]models.SearchResult, error) {
	results := []models.SearchResult{}
	if limit <= 0 || s.index.Size() == 0 {
		return results, nil
	}

	s.mu.RLock()
	hits, err := s.index.Search(ctx, query, limit, func(id string) bool {
		k, ok := s.meta[id]
		return ok && filter.Matches(k.caseReference, k.documentType)
	})
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return results, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	chunks, err := s.chunksByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		c, ok := chunks[h.ID]
		if !ok {
			// deleted between index lookup and load
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID:        c.ID,
			Text:           c.Text,
			RelevanceScore: Relevance(h.Distance, s.opts.distanceScale),
			Metadata:       c.Metadata,
		})
	}
	return results, nil
}

func (s *SQLiteStore) chunksByID(ctx context.Context, ids []string) (map[string]models.Chunk, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, text, metadata FROM chunks WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, backendErr("search", err)
	}
	defer rows.Close()

	out := make(map[string]models.Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("search", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (models.Chunk, error) {
	var c models.Chunk
	var metaJSON string
	if err := row.Scan(&c.ID, &c.Text, &metaJSON); err != nil {
		return c, backendErr("scan_chunk", err)
	}
	var scalars map[string]interface{}
	if err := json.Unmarshal([]byte(metaJSON), &scalars); err != nil {
		return c, fmt.Errorf("failed to unmarshal metadata for %s: %w", c.ID, err)
	}
	meta, err := models.ChunkMetadataFromScalars(scalars)
	if err != nil {
		return c, fmt.Errorf("invalid metadata for %s: %w", c.ID, err)
	}
	c.Metadata = meta
	return c, nil
}

// GetDocumentChunks returns a document's chunks ordered by chunk index.
func (s *SQLiteStore) GetDocumentChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, text, metadata FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC, chunk_id ASC`,
		documentID)
	if err != nil {
		return nil, backendErr("get_document_chunks", err)
	}
	defer rows.Close()

	chunks := []models.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("get_document_chunks", err)
	}
	return chunks, nil
}

// DeleteDocument removes the document's chunks and registry row in one transaction.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, backendErr("delete_document", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT chunk_id FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, backendErr("delete_document", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, backendErr("delete_document", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, backendErr("delete_document", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return 0, backendErr("delete_document", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentID); err != nil {
		return 0, backendErr("delete_document", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, backendErr("delete_document", err)
	}

	if err := s.index.Remove(ctx, ids); err != nil {
		return 0, backendErr("delete_document", err)
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.meta, id)
	}
	s.mu.Unlock()
	return len(ids), nil
}

// IsDocumentIngested reports whether a registry row exists for the document ID
// derived from caseReference and contentHash, with a matching hash.
func (s *SQLiteStore) IsDocumentIngested(ctx context.Context, contentHash, caseReference string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM documents WHERE document_id = ?`,
		fileid.DocumentID(caseReference, contentHash),
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, backendErr("is_document_ingested", err)
	}
	return strings.EqualFold(stored, contentHash), nil
}

// RegisterDocument writes the registry row, replacing any row with the same ID.
func (s *SQLiteStore) RegisterDocument(ctx context.Context, rec models.DocumentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, file_path, content_hash, case_reference, document_type,
			chunk_count, ingested_at, extraction_method, contains_drawings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			file_path = excluded.file_path,
			content_hash = excluded.content_hash,
			case_reference = excluded.case_reference,
			document_type = excluded.document_type,
			chunk_count = excluded.chunk_count,
			ingested_at = excluded.ingested_at,
			extraction_method = excluded.extraction_method,
			contains_drawings = excluded.contains_drawings`,
		rec.DocumentID, rec.FilePath, rec.ContentHash, rec.CaseReference, rec.DocumentType,
		rec.ChunkCount, rec.IngestedAt.UTC(), rec.ExtractionMethod, rec.ContainsDrawings,
	)
	return backendErr("register_document", err)
}

const documentColumns = `document_id, file_path, content_hash, case_reference, document_type,
	chunk_count, ingested_at, extraction_method, contains_drawings`

func scanDocument(row rowScanner) (models.DocumentRecord, error) {
	var rec models.DocumentRecord
	var ingestedAt time.Time
	err := row.Scan(&rec.DocumentID, &rec.FilePath, &rec.ContentHash, &rec.CaseReference,
		&rec.DocumentType, &rec.ChunkCount, &ingestedAt, &rec.ExtractionMethod, &rec.ContainsDrawings)
	rec.IngestedAt = ingestedAt.UTC()
	return rec, err
}

// GetDocument returns the registry row for documentID or ErrDocumentNotFound.
func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*models.DocumentRecord, error) {
	rec, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE document_id = ?`, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, backendErr("get_document", err)
	}
	return &rec, nil
}

// ListDocuments returns the registry rows for a case in ingestion order.
func (s *SQLiteStore) ListDocuments(ctx context.Context, caseReference string) ([]models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE case_reference = ? ORDER BY ingested_at ASC, document_id ASC`,
		caseReference)
	if err != nil {
		return nil, backendErr("list_documents", err)
	}
	defer rows.Close()

	docs := []models.DocumentRecord{}
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, backendErr("list_documents", err)
		}
		docs = append(docs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("list_documents", err)
	}
	return docs, nil
}

// Stats returns row counts and the on-disk size of the database files.
func (s *SQLiteStore) Stats(ctx context.Context) (models.StoreStats, error) {
	stats := models.StoreStats{Backend: "sqlite"}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.Documents); err != nil {
		return stats, backendErr("stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return stats, backendErr("stats", err)
	}
	size, err := DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
	if err != nil {
		s.logger.Warn("failed to measure database size", zap.Error(err))
	}
	stats.DiskBytes = size
	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
