// Package chunker splits extracted pages into overlapping, page-tagged word windows.
package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bicesterbug/bbug-planning-reporter/internal/extract"
)

// Defaults in words.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 40
)

// Chunk is one bounded slice of a document's text.
type Chunk struct {
	Text        string `json:"text"`
	PageNumbers []int  `json:"page_numbers"`
	CharCount   int    `json:"char_count"`
	WordCount   int    `json:"word_count"`
}

// Chunker splits pages into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
// Non-positive sizes fall back to the defaults; an overlap that does not leave
// room to advance is clamped.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

type word struct {
	text string
	page int
}

// Chunk splits pages into chunks with overlapping windows. Words keep the number
// of the page they came from, so a window spanning a page break lists both pages.
// Output order follows the input; the same pages always give the same chunks.
func (c *Chunker) Chunk(pages []extract.Page) []Chunk {
	var words []word
	for _, p := range pages {
		for _, w := range strings.Fields(Preprocess(p.Text)) {
			words = append(words, word{text: w, page: p.Number})
		}
	}
	if len(words) == 0 {
		return nil
	}

	step := c.chunkSize - c.chunkOverlap
	chunks := make([]Chunk, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, build(words[i:end]))
		if end >= len(words) {
			break
		}
	}
	return chunks
}

func build(words []word) Chunk {
	parts := make([]string, len(words))
	seen := make(map[int]struct{})
	pages := make([]int, 0, 2)
	for i, w := range words {
		parts[i] = w.text
		if _, ok := seen[w.page]; !ok {
			seen[w.page] = struct{}{}
			pages = append(pages, w.page)
		}
	}
	sort.Ints(pages)
	text := strings.Join(parts, " ")
	return Chunk{
		Text:        text,
		PageNumbers: pages,
		CharCount:   utf8.RuneCountInString(text),
		WordCount:   len(words),
	}
}

// FirstPage returns the lowest page number of a chunk, or 1 if it has none.
func (c Chunk) FirstPage() int {
	if len(c.PageNumbers) == 0 {
		return 1
	}
	return c.PageNumbers[0]
}
