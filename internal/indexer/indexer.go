// Package indexer ingests files for a case: dedup, image screening, extraction,
// chunking, embedding, then storage and registration.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bicesterbug/bbug-planning-reporter/internal/chunker"
	"github.com/bicesterbug/bbug-planning-reporter/internal/classify"
	"github.com/bicesterbug/bbug-planning-reporter/internal/extract"
	"github.com/bicesterbug/bbug-planning-reporter/internal/fileid"
	"github.com/bicesterbug/bbug-planning-reporter/internal/keyword"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/storage"
)

// Embedder is the batch-encode capability the indexer needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits extracted pages into chunks.
type Chunker interface {
	Chunk(pages []extract.Page) []chunker.Chunk
}

// Indexer runs ingestion for single files and batches.
type Indexer struct {
	store        storage.Store
	embedder     Embedder
	extractor    extract.Extractor
	keywordIndex keyword.Index
	chunker      Chunker
	classifier   *classify.Classifier
	concurrency  int
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithKeywordIndex also indexes chunks for keyword search.
func WithKeywordIndex(k keyword.Index) Option {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithChunker replaces the default chunker.
func WithChunker(c Chunker) Option {
	return func(idx *Indexer) {
		if c != nil {
			idx.chunker = c
		}
	}
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(idx *Indexer) {
		if c != nil {
			idx.classifier = c
		}
	}
}

// WithConcurrency sets how many files a batch ingests at once.
func WithConcurrency(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.concurrency = n
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(store storage.Store, embedder Embedder, extractor extract.Extractor, opts ...Option) *Indexer {
	idx := &Indexer{
		store:       store,
		embedder:    embedder,
		extractor:   extractor,
		chunker:     chunker.NewChunker(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap),
		classifier:  classify.Default(),
		concurrency: 1,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IngestDocument ingests one file for caseReference. documentType may be empty,
// in which case the file is classified. It never returns a Go error: every run
// ends in exactly one IngestResult. Nothing is written before the embedding
// step has succeeded, and the registry row is written last. The run ignores
// cancellation of ctx once it has started, so the chunk, keyword and registry
// writes are never left half done.
func (idx *Indexer) IngestDocument(ctx context.Context, path, caseReference, documentType string) models.IngestResult {
	ctx = context.WithoutCancel(ctx)
	log := idx.logger.With(zap.String("path", path), zap.String("case", caseReference))

	caseReference = strings.TrimSpace(caseReference)
	if caseReference == "" || fileid.SanitizeCaseReference(caseReference) == "" {
		return models.IngestError(models.ErrTypeInvalidInput, "case_reference is required")
	}
	if documentType != "" {
		t, err := classify.ParseType(documentType)
		if err != nil {
			return models.IngestError(models.ErrTypeInvalidInput, err.Error())
		}
		documentType = t
	}

	// 1. validate
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.IngestError(models.ErrTypeFileNotFound, fmt.Sprintf("file not found: %s", path))
		}
		return models.IngestError(models.ErrTypeFileNotFound, err.Error())
	}
	if !info.Mode().IsRegular() {
		return models.IngestError(models.ErrTypeFileNotFound, fmt.Sprintf("not a regular file: %s", path))
	}
	if !extract.IsSupported(path) {
		return models.IngestError(models.ErrTypeUnsupportedType,
			fmt.Sprintf("unsupported file type %q", strings.ToLower(filepath.Ext(path))))
	}

	// 2. dedup
	hash, err := fileid.HashFile(path)
	if err != nil {
		return models.IngestError(models.ErrTypeExtractionFailed, err.Error())
	}
	docID := fileid.DocumentID(caseReference, hash)
	ingested, err := idx.store.IsDocumentIngested(ctx, hash, caseReference)
	if err != nil {
		return models.IngestError(models.ErrTypeStorageFailed, err.Error())
	}
	if ingested {
		log.Debug("indexer skipping already ingested file", zap.String("document_id", docID))
		return models.IngestResult{Status: models.StatusAlreadyIngested, DocumentID: docID}
	}

	// 3. extract and image screen, from one parse
	extracted, profile, err := idx.extractor.Analyze(ctx, path)
	if err != nil {
		return extractionFailure(err)
	}
	if profile.IsImageBased {
		log.Info("indexer skipping image-based file",
			zap.Float64("image_ratio", profile.AverageImageRatio),
			zap.Int("pages", profile.PageCount))
		return models.IngestResult{
			Status:     models.StatusSkipped,
			Reason:     models.SkipReasonImageBased,
			ImageRatio: profile.AverageImageRatio,
			TotalPages: profile.PageCount,
		}
	}

	// 4. require text
	if extracted.TotalChars == 0 {
		return models.IngestError(models.ErrTypeNoContent, "no text could be extracted")
	}

	// 5. chunk
	pieces := idx.chunker.Chunk(extracted.Pages)
	if len(pieces) == 0 {
		return models.IngestError(models.ErrTypeNoChunks, "extracted text produced no chunks")
	}

	// 6. embed
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return models.IngestError(models.ErrTypeEmbeddingFailed, err.Error())
	}
	if len(vectors) != len(pieces) {
		return models.IngestError(models.ErrTypeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(pieces)))
	}

	// 7. resolve type
	fullText := extracted.FullText()
	if documentType == "" {
		c := idx.classifier.Classify(filepath.Base(path), fullText)
		documentType = c.Type
		log.Debug("indexer classified file",
			zap.String("type", c.Type),
			zap.String("confidence", c.Confidence),
			zap.String("method", c.Method))
	}

	// 8. store chunks, then keyword index, then registry
	filename := filepath.Base(path)
	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{
			ID:        fileid.ChunkID(caseReference, hash, p.FirstPage(), i),
			Text:      p.Text,
			Embedding: vectors[i],
			Metadata: models.ChunkMetadata{
				CaseReference:    caseReference,
				DocumentID:       docID,
				SourceFilename:   filename,
				DocumentType:     documentType,
				PageNumbers:      p.PageNumbers,
				ChunkIndex:       i,
				TotalChunks:      len(pieces),
				ExtractionMethod: extracted.Method,
				CharCount:        p.CharCount,
				WordCount:        p.WordCount,
			},
		}
	}
	if err := idx.store.UpsertChunks(ctx, chunks); err != nil {
		return models.IngestError(models.ErrTypeStorageFailed, err.Error())
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.IndexChunks(ctx, chunks); err != nil {
			return models.IngestError(models.ErrTypeStorageFailed, err.Error())
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	rec := models.DocumentRecord{
		DocumentID:       docID,
		FilePath:         absPath,
		ContentHash:      hash,
		CaseReference:    caseReference,
		DocumentType:     documentType,
		ChunkCount:       len(chunks),
		IngestedAt:       idx.now().UTC(),
		ExtractionMethod: extracted.Method,
		ContainsDrawings: extracted.ContainsDrawings,
	}
	if err := idx.store.RegisterDocument(ctx, rec); err != nil {
		return models.IngestError(models.ErrTypeStorageFailed, err.Error())
	}

	// 9. report
	log.Info("indexer file ingested",
		zap.String("document_id", docID),
		zap.String("type", documentType),
		zap.Int("chunks", len(chunks)))
	return models.IngestResult{
		Status:           models.StatusSuccess,
		DocumentID:       docID,
		ChunksCreated:    len(chunks),
		ExtractionMethod: extracted.Method,
		ContainsDrawings: extracted.ContainsDrawings,
		TotalChars:       extracted.TotalChars,
		TotalWords:       len(strings.Fields(fullText)),
	}
}

func extractionFailure(err error) models.IngestResult {
	if errors.Is(err, extract.ErrUnsupportedType) {
		return models.IngestError(models.ErrTypeUnsupportedType, err.Error())
	}
	return models.IngestError(models.ErrTypeExtractionFailed, err.Error())
}
