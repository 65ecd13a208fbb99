package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

// extractRTF converts RTF to plain text. RTF has no reliable page model, so the
// whole document is one page.
func extractRTF(content []byte) ([]Page, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("extract RTF: %w", err)
	}
	return []Page{{Number: 1, Text: strings.TrimSpace(text)}}, nil
}
