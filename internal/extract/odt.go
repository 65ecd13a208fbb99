package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// odtContentPath is the path to the main content inside an OpenDocument zip.
const odtContentPath = "content.xml"

var (
	// odtBlock matches paragraphs and headings with their inner markup.
	odtBlock = regexp.MustCompile(`(?s)<text:(p|h)\b[^>]*>(.*?)</text:(p|h)>`)
	// odtPageBreak marks where the producing application broke a page.
	odtPageBreak = regexp.MustCompile(`<text:soft-page-break\s*/>`)
	anyTag       = regexp.MustCompile(`<[^>]+>`)
)

// extractODT extracts text from .odt bytes. Soft page breaks recorded by the
// authoring application start a new page.
func extractODT(content []byte) ([]Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract ODT: not a zip: %w", err)
	}
	contentXML, err := readZipEntry(zr, odtContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract ODT: %w", err)
	}
	if contentXML == nil {
		return nil, fmt.Errorf("extract ODT: %s not found", odtContentPath)
	}

	sections := odtPageBreak.Split(string(contentXML), -1)
	pages := make([]Page, 0, len(sections))
	for i, section := range sections {
		var lines []string
		for _, m := range odtBlock.FindAllStringSubmatch(section, -1) {
			if t := strings.TrimSpace(anyTag.ReplaceAllString(m[2], "")); t != "" {
				lines = append(lines, unescapeXML(t))
			}
		}
		pages = append(pages, Page{Number: i + 1, Text: strings.Join(lines, "\n")})
	}
	return pages, nil
}
