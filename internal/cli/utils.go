// Package cli provides output formatting for the docstore command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bicesterbug/bbug-planning-reporter/internal/indexer"
	"github.com/bicesterbug/bbug-planning-reporter/internal/models"
	"github.com/bicesterbug/bbug-planning-reporter/internal/retrieval"
	"github.com/bicesterbug/bbug-planning-reporter/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetLen = 200

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *retrieval.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results\n\n", response.ResultsCount)
	for i := range response.Results {
		writeOneResult(w, i+1, &response.Results[i])
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, result *models.SearchResult) {
	md := result.Metadata
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Rank: %d | Relevance: %.4f | %s\n", rank, result.RelevanceScore, md.DocumentType)
	fmt.Fprintf(w, "Chunk: %s\n", result.ChunkID)
	fmt.Fprintf(w, "Source: %s (case %s, pages %s)\n",
		md.SourceFilename, md.CaseReference, models.EncodePageNumbers(md.PageNumbers))
	fmt.Fprintf(w, "\n%s\n", utils.Truncate(result.Text, snippetLen))
	fmt.Fprintln(w)
}

// WriteIngestResults writes one line per file, then a summary.
func WriteIngestResults(w io.Writer, items []indexer.BatchItem, format OutputFormat) error {
	if format == OutputJSON {
		if items == nil {
			items = []indexer.BatchItem{}
		}
		return WriteJSON(w, items)
	}
	counts := map[string]int{}
	for _, it := range items {
		res := it.Result
		counts[res.Status]++
		name := filepath.Base(it.Path)
		switch res.Status {
		case models.StatusSuccess:
			fmt.Fprintf(w, "ingested  %s -> %s (%d chunks, %s)\n", name, res.DocumentID, res.ChunksCreated, res.ExtractionMethod)
		case models.StatusAlreadyIngested:
			fmt.Fprintf(w, "unchanged %s -> %s\n", name, res.DocumentID)
		case models.StatusSkipped:
			fmt.Fprintf(w, "skipped   %s (%s, image ratio %.2f over %d pages)\n", name, res.Reason, res.ImageRatio, res.TotalPages)
		default:
			fmt.Fprintf(w, "failed    %s [%s] %s\n", name, res.ErrorType, res.Message)
		}
	}
	fmt.Fprintf(w, "\n%d files: %d ingested, %d unchanged, %d skipped, %d failed\n", len(items),
		counts[models.StatusSuccess], counts[models.StatusAlreadyIngested],
		counts[models.StatusSkipped], counts[models.StatusError])
	return nil
}

// WriteDocuments writes a case's document listing.
func WriteDocuments(w io.Writer, response *retrieval.ListDocumentsResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "%d documents for %s\n\n", response.DocumentCount, response.CaseReference)
	for _, d := range response.Documents {
		drawings := ""
		if d.ContainsDrawings {
			drawings = " drawings"
		}
		fmt.Fprintf(w, "%-28s %-28s %4d chunks  %s%s\n  %s\n",
			d.DocumentID, d.DocumentType, d.ChunkCount,
			d.IngestedAt.Format("2006-01-02 15:04"), drawings, d.FilePath)
	}
	return nil
}

// WriteDocumentText writes a document's text, or the reason it has none.
func WriteDocumentText(w io.Writer, response *retrieval.DocumentTextResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	if response.Status != retrieval.StatusSuccess {
		fmt.Fprintf(w, "%s: %s\n", response.ErrorType, response.Message)
		return nil
	}
	fmt.Fprintf(w, "# %s (%s, %d chunks)\n\n%s\n", response.DocumentID, response.DocumentType, response.ChunkCount, response.Text)
	return nil
}

// WriteStats writes store totals and, when known, disk usage.
func WriteStats(w io.Writer, stats *retrieval.StatsResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, stats)
	}
	fmt.Fprintf(w, "Backend:        %s\n", stats.Store.Backend)
	fmt.Fprintf(w, "Documents:      %d\n", stats.Store.Documents)
	fmt.Fprintf(w, "Chunks:         %d\n", stats.Store.Chunks)
	fmt.Fprintf(w, "Keyword chunks: %d\n", stats.KeywordChunks)
	if stats.Store.DiskBytes > 0 {
		fmt.Fprintf(w, "Disk usage:     %.2f MB\n", float64(stats.Store.DiskBytes)/(1024*1024))
	}
	return nil
}
