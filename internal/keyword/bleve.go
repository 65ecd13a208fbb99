package keyword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
)

const (
	fieldText     = "text"
	fieldFilename = "filename_terms"
)

var filenameSeparators = regexp.MustCompile(`[_\-.]+`)

// BleveIndex implements Index using Bleve. Each chunk is one Bleve document keyed by
// chunk ID, carrying its text plus the scalar metadata as stored fields.
type BleveIndex struct {
	index bleve.Index
}

func chunkMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	// standard analyzer: lowercase and tokenize, no stemming, so "S106" and road
	// names match as typed
	text.Analyzer = standard.Name
	text.Store = true
	doc.AddFieldMappingsAt(fieldText, text)

	// portal filenames join words with underscores, which the standard tokenizer
	// keeps together
	filename := bleve.NewTextFieldMapping()
	filename.Analyzer = standard.Name
	filename.Store = false
	doc.AddFieldMappingsAt(fieldFilename, filename)

	exact := bleve.NewKeywordFieldMapping()
	exact.Store = true
	for _, f := range []string{
		models.MetaCaseReference, models.MetaDocumentID, models.MetaDocumentType,
		models.MetaSourceFilename, models.MetaPageNumbers, models.MetaExtractionMethod,
	} {
		doc.AddFieldMappingsAt(f, exact)
	}

	num := bleve.NewNumericFieldMapping()
	num.Store = true
	for _, f := range []string{
		models.MetaChunkIndex, models.MetaTotalChunks, models.MetaCharCount, models.MetaWordCount,
	} {
		doc.AddFieldMappingsAt(f, num)
	}

	im.AddDocumentMapping("chunk", doc)
	im.DefaultType = "chunk"
	im.DefaultMapping = doc
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an
// in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := chunkMapping()
	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks indexes chunks in one batch, replacing any with the same ID.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []models.Chunk) error {
	batch := b.index.NewBatch()
	for _, c := range chunks {
		doc := c.Metadata.Scalars()
		doc[fieldText] = c.Text
		doc[fieldFilename] = filenameSeparators.ReplaceAllString(c.Metadata.SourceFilename, " ")
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to write keyword batch: %w", err)
	}
	return nil
}

// Search matches query against chunk text and filename within the filter. When
// opts.FuzzyEnabled is set each term is matched within the edit distance.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, filter Filter, opts *SearchOptions) ([]Result, error) {
	results := []Result{}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return results, nil
	}
	phraseBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 1
	if opts != nil {
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var match blevequery.Query
	if fuzzyEnabled {
		match = buildFuzzyQuery(query, fuzziness)
	} else {
		textQ := bleve.NewMatchQuery(query)
		textQ.SetField(fieldText)
		nameQ := bleve.NewMatchQuery(query)
		nameQ.SetField(fieldFilename)
		match = bleve.NewDisjunctionQuery(textQ, nameQ)
	}

	must := []blevequery.Query{match}
	if filter.CaseReference != "" {
		tq := bleve.NewTermQuery(filter.CaseReference)
		tq.SetField(models.MetaCaseReference)
		must = append(must, tq)
	}
	if len(filter.DocumentTypes) > 0 {
		types := make([]blevequery.Query, len(filter.DocumentTypes))
		for i, t := range filter.DocumentTypes {
			tq := bleve.NewTermQuery(t)
			tq.SetField(models.MetaDocumentType)
			types[i] = tq
		}
		must = append(must, bleve.NewDisjunctionQuery(types...))
	}

	bq := bleve.NewBooleanQuery()
	bq.AddMust(must...)
	if phraseBoost > 1 && len(strings.Fields(query)) > 1 {
		pq := bleve.NewMatchPhraseQuery(query)
		pq.SetField(fieldText)
		pq.SetBoost(phraseBoost)
		bq.AddShould(pq)
	}

	req := bleve.NewSearchRequest(bq)
	req.Size = limit
	req.Fields = []string{"*"}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	for _, hit := range res.Hits {
		meta, err := models.ChunkMetadataFromScalars(hit.Fields)
		if err != nil {
			return nil, fmt.Errorf("invalid stored metadata for %s: %w", hit.ID, err)
		}
		text, _ := hit.Fields[fieldText].(string)
		results = append(results, Result{ChunkID: hit.ID, Score: hit.Score, Text: text, Metadata: meta})
	}
	return results, nil
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per term, over the text field.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(queryStr))
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(fieldText)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DeleteDocument removes every chunk of a document and returns how many were removed.
func (b *BleveIndex) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tq := bleve.NewTermQuery(documentID)
	tq.SetField(models.MetaDocumentID)

	removed := 0
	for {
		req := bleve.NewSearchRequest(tq)
		req.Size = 500
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return removed, fmt.Errorf("Bleve search failed: %w", err)
		}
		if len(res.Hits) == 0 {
			return removed, nil
		}
		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return removed, fmt.Errorf("failed to delete keyword entries: %w", err)
		}
		removed += len(res.Hits)
	}
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
