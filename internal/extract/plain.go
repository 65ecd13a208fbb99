package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns the content split into pages on form feeds. Invalid UTF-8
// sequences are replaced with the replacement character.
func extractPlain(content []byte) []Page {
	s := string(content)
	if !utf8.Valid(content) {
		s = strings.ToValidUTF8(s, "\ufffd")
	}
	parts := strings.Split(s, "\f")
	pages := make([]Page, len(parts))
	for i, p := range parts {
		pages[i] = Page{Number: i + 1, Text: p}
	}
	return pages
}
