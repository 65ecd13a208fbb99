package chunker

import (
	"strings"
	"unicode"
)

// Preprocess normalizes page text before chunking: trims, drops control
// characters other than whitespace, and collapses whitespace runs to one space.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
