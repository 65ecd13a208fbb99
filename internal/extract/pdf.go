package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

type pdfPage struct {
	number int
	text   string
	images int
}

// readPDF returns the text and image XObject count of every page. The pdf
// package panics on some malformed files, so panics become errors.
func readPDF(content []byte) (pages []pdfPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages = make([]pdfPage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, pdfPage{number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, pdfPage{number: i, text: text, images: countImages(page)})
	}
	return pages, nil
}

func countImages(page pdf.Page) int {
	xobjects := page.Resources().Key("XObject")
	if xobjects.IsNull() {
		return 0
	}
	n := 0
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}
