package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/fileid"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
)

// PostgresStore implements Store on PostgreSQL with the pgvector extension. Search
// filters and ordering run in SQL using the <=> cosine distance operator.
type PostgresStore struct {
	pool   *pgxpool.Pool
	opts   options
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, backendErr("connect", err)
	}
	o := buildOptions(opts)
	s := &PostgresStore{pool: pool, opts: o, logger: o.logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
  document_id TEXT PRIMARY KEY,
  file_path TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  case_reference TEXT NOT NULL,
  document_type TEXT NOT NULL,
  chunk_count INTEGER NOT NULL,
  ingested_at TIMESTAMPTZ NOT NULL,
  extraction_method TEXT NOT NULL,
  contains_drawings BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_documents_case ON documents(case_reference, ingested_at);

CREATE TABLE IF NOT EXISTS chunks (
  chunk_id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  case_reference TEXT NOT NULL,
  document_type TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  text TEXT NOT NULL,
  metadata JSONB NOT NULL,
  embedding vector NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);
CREATE INDEX IF NOT EXISTS idx_chunks_case ON chunks(case_reference, document_type);`)
	return backendErr("migrate", err)
}

// UpsertChunks writes all chunks in one transaction.
func (s *PostgresStore) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return backendErr("upsert_chunks", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		metaJSON, err := json.Marshal(c.Metadata.Scalars())
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, document_id, case_reference, document_type, chunk_index, text, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::vector)
ON CONFLICT (chunk_id)
DO UPDATE SET
  document_id = EXCLUDED.document_id,
  case_reference = EXCLUDED.case_reference,
  document_type = EXCLUDED.document_type,
  chunk_index = EXCLUDED.chunk_index,
  text = EXCLUDED.text,
  metadata = EXCLUDED.metadata,
  embedding = EXCLUDED.embedding`,
			c.ID, c.Metadata.DocumentID, c.Metadata.CaseReference, c.Metadata.DocumentType,
			c.Metadata.ChunkIndex, c.Text, string(metaJSON), pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return backendErr("upsert_chunks", fmt.Errorf("chunk %s: %w", c.ID, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return backendErr("upsert_chunks", err)
	}
	return nil
}

// searchQuery builds the filtered nearest-neighbour query. $1 is the query vector
// and $2 the limit; filter arguments follow.
func searchQuery(filter Filter) (string, []any) {
	var where []string
	var args []any
	if filter.CaseReference != "" {
		args = append(args, filter.CaseReference)
		where = append(where, fmt.Sprintf("case_reference = $%d", len(args)+2))
	}
	if len(filter.DocumentTypes) > 0 {
		args = append(args, filter.DocumentTypes)
		where = append(where, fmt.Sprintf("document_type = ANY($%d)", len(args)+2))
	}
	q := `
SELECT chunk_id, text, metadata, embedding <=> $1::vector AS distance
FROM chunks`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY distance ASC, chunk_id ASC\nLIMIT $2"
	return q, args
}

// Search orders by cosine distance in SQL and converts distance to relevance.
func (s *PostgresStore) Search(ctx context.Context, query []float32, limit int, filter Filter) ([]models.SearchResult, error) {
	results := []models.SearchResult{}
	if limit <= 0 {
		return results, nil
	}
	q, filterArgs := searchQuery(filter)
	args := append([]any{pgvector.NewVector(query), limit}, filterArgs...)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, backendErr("search", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, text string
		var metaJSON []byte
		var distance float64
		if err := rows.Scan(&id, &text, &metaJSON, &distance); err != nil {
			return nil, backendErr("search", err)
		}
		meta, err := decodeMetadata(id, metaJSON)
		if err != nil {
			return nil, err
		}
		results = append(results, models.SearchResult{
			ChunkID:        id,
			Text:           text,
			RelevanceScore: Relevance(distance, s.opts.distanceScale),
			Metadata:       meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, backendErr("search", err)
	}
	return results, nil
}

func decodeMetadata(id string, raw []byte) (models.ChunkMetadata, error) {
	var scalars map[string]interface{}
	if err := json.Unmarshal(raw, &scalars); err != nil {
		return models.ChunkMetadata{}, fmt.Errorf("failed to unmarshal metadata for %s: %w", id, err)
	}
	meta, err := models.ChunkMetadataFromScalars(scalars)
	if err != nil {
		return meta, fmt.Errorf("invalid metadata for %s: %w", id, err)
	}
	return meta, nil
}

// GetDocumentChunks returns a document's chunks ordered by chunk index.
func (s *PostgresStore) GetDocumentChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
SELECT chunk_id, text, metadata
FROM chunks
WHERE document_id = $1
ORDER BY chunk_index ASC, chunk_id ASC`, documentID)
	if err != nil {
		return nil, backendErr("get_document_chunks", err)
	}
	defer rows.Close()

	chunks := []models.Chunk{}
	for rows.Next() {
		var c models.Chunk
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.Text, &metaJSON); err != nil {
			return nil, backendErr("get_document_chunks", err)
		}
		if c.Metadata, err = decodeMetadata(c.ID, metaJSON); err != nil {
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
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, backendErr("delete_document", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, backendErr("delete_document", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE document_id = $1`, documentID); err != nil {
		return 0, backendErr("delete_document", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, backendErr("delete_document", err)
	}
	return int(tag.RowsAffected()), nil
}

// IsDocumentIngested reports whether a registry row with a matching hash exists.
func (s *PostgresStore) IsDocumentIngested(ctx context.Context, contentHash, caseReference string) (bool, error) {
	var stored string
	err := s.pool.QueryRow(ctx, `SELECT content_hash FROM documents WHERE document_id = $1`,
		fileid.DocumentID(caseReference, contentHash)).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, backendErr("is_document_ingested", err)
	}
	return strings.EqualFold(stored, contentHash), nil
}

// RegisterDocument writes the registry row, replacing any row with the same ID.
func (s *PostgresStore) RegisterDocument(ctx context.Context, rec models.DocumentRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (document_id, file_path, content_hash, case_reference, document_type,
  chunk_count, ingested_at, extraction_method, contains_drawings)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (document_id)
DO UPDATE SET
  file_path = EXCLUDED.file_path,
  content_hash = EXCLUDED.content_hash,
  case_reference = EXCLUDED.case_reference,
  document_type = EXCLUDED.document_type,
  chunk_count = EXCLUDED.chunk_count,
  ingested_at = EXCLUDED.ingested_at,
  extraction_method = EXCLUDED.extraction_method,
  contains_drawings = EXCLUDED.contains_drawings`,
		rec.DocumentID, rec.FilePath, rec.ContentHash, rec.CaseReference, rec.DocumentType,
		rec.ChunkCount, rec.IngestedAt.UTC(), rec.ExtractionMethod, rec.ContainsDrawings,
	)
	return backendErr("register_document", err)
}

func scanDocumentRow(row pgx.Row) (models.DocumentRecord, error) {
	var rec models.DocumentRecord
	err := row.Scan(&rec.DocumentID, &rec.FilePath, &rec.ContentHash, &rec.CaseReference,
		&rec.DocumentType, &rec.ChunkCount, &rec.IngestedAt, &rec.ExtractionMethod, &rec.ContainsDrawings)
	rec.IngestedAt = rec.IngestedAt.UTC()
	return rec, err
}

// GetDocument returns the registry row for documentID or ErrDocumentNotFound.
func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*models.DocumentRecord, error) {
	rec, err := scanDocumentRow(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE document_id = $1`, documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, backendErr("get_document", err)
	}
	return &rec, nil
}

// ListDocuments returns the registry rows for a case in ingestion order.
func (s *PostgresStore) ListDocuments(ctx context.Context, caseReference string) ([]models.DocumentRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE case_reference = $1 ORDER BY ingested_at ASC, document_id ASC`,
		caseReference)
	if err != nil {
		return nil, backendErr("list_documents", err)
	}
	defer rows.Close()

	docs := []models.DocumentRecord{}
	for rows.Next() {
		rec, err := scanDocumentRow(rows)
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

// Stats returns row counts.
func (s *PostgresStore) Stats(ctx context.Context) (models.StoreStats, error) {
	stats := models.StoreStats{Backend: "postgres"}
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)`,
	).Scan(&stats.Documents, &stats.Chunks)
	return stats, backendErr("stats", err)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
