package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(body))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func docxBody(inner string) string {
	return `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + inner + `</w:body></w:document>`
}

func pageTexts(r *Result) []string {
	out := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		out[i] = p.Text
	}
	return out
}

func TestExtractBytes_plainPages(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("Page one text\fPage two"), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(got.Pages) != 2 || got.Pages[1].Number != 2 || got.Pages[1].Text != "Page two" {
		t.Errorf("pages = %+v", got.Pages)
	}
	if got.TotalChars != len("Page one text")+len("Page two") {
		t.Errorf("TotalChars = %d", got.TotalChars)
	}
	if got.Method != MethodPlainText {
		t.Errorf("Method = %q", got.Method)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("hello\x80world"), ".md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got.Pages[0].Text != "hello�world" {
		t.Errorf("got %q", got.Pages[0].Text)
	}
}

func TestExtractBytes_excelSheetPerPage(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Junction")
	f.SetCellValue("Sheet1", "A2", "Flow 1")
	f.SetCellValue("Sheet1", "B2", "Flow 2")
	if _, err := f.NewSheet("Parking"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Parking", "A1", "Cycle spaces")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	texts := pageTexts(got)
	if len(texts) != 2 || texts[0] != "Junction\nFlow 1\tFlow 2" || texts[1] != "Cycle spaces" {
		t.Errorf("got %q", texts)
	}
}

func TestExtractBytes_docx(t *testing.T) {
	content := zipBytes(t, map[string]string{
		"word/document.xml": docxBody(`<w:p w:rsidR="00AB"><w:r><w:t xml:space="preserve">Cycle &amp; walking </w:t></w:r><w:r><w:t>routes</w:t></w:r></w:p>`),
	})
	got, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(got.Pages) != 1 || got.Pages[0].Text != "Cycle & walking routes" {
		t.Errorf("got %q", pageTexts(got))
	}
}

func TestExtractBytes_docxPageBreaks(t *testing.T) {
	content := zipBytes(t, map[string]string{
		"word/document.xml": docxBody(`<w:p><w:r><w:t>First</w:t></w:r></w:p><w:p><w:r><w:br w:type="page"/></w:r><w:r><w:t>Second</w:t></w:r></w:p>`),
	})
	got, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	texts := pageTexts(got)
	if len(texts) != 2 || texts[0] != "First" || texts[1] != "Second" {
		t.Errorf("got %q", texts)
	}
}

func TestExtractBytes_docxContentTypes(t *testing.T) {
	tests := []struct {
		name     string
		override string
	}{
		{"part name first", `<Override PartName="/word/document2.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`},
		{"content type first", `<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document2.xml"/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := zipBytes(t, map[string]string{
				"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + tt.override + `</Types>`,
				"word/document2.xml":  docxBody(`<w:p><w:r><w:t>Content from document2</w:t></w:r></w:p>`),
			})
			got, err := NewExtractor().ExtractBytes(content, ".docx")
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got.Pages[0].Text != "Content from document2" {
				t.Errorf("got %q", got.Pages[0].Text)
			}
		})
	}
}

func TestExtractBytes_docxNotZip(t *testing.T) {
	if _, err := NewExtractor().ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip docx")
	}
}

func TestExtractBytes_odt(t *testing.T) {
	content := zipBytes(t, map[string]string{
		"content.xml": `<office:document-content><office:body><office:text>` +
			`<text:h text:outline-level="1">Travel Plan</text:h>` +
			`<text:p text:style-name="P1">Targets for <text:span>mode share</text:span></text:p>` +
			`<text:soft-page-break/>` +
			`<text:p>Monitoring</text:p>` +
			`</office:text></office:body></office:document-content>`,
	})
	got, err := NewExtractor().ExtractBytes(content, ".odt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	texts := pageTexts(got)
	if len(texts) != 2 || texts[0] != "Travel Plan\nTargets for mode share" || texts[1] != "Monitoring" {
		t.Errorf("got %q", texts)
	}
	if got.Method != MethodODT {
		t.Errorf("Method = %q", got.Method)
	}
}

func TestExtractBytes_odtContentNotFound(t *testing.T) {
	content := zipBytes(t, map[string]string{"meta.xml": "<x/>"})
	if _, err := NewExtractor().ExtractBytes(content, ".odt"); err == nil {
		t.Error("expected error when content.xml is missing")
	}
}

func TestExtract_unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drawing.dwg")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := NewExtractor().Extract(context.Background(), path)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if IsSupported(path) {
		t.Error("IsSupported(.dwg) should be false")
	}
	if !IsSupported("A.PDF") {
		t.Error("IsSupported should ignore extension case")
	}
}

func TestExtract_nonexistent(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Errorf("expected *ExtractionError, got %v", err)
	}
}

func TestExtract_corruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	var exErr *ExtractionError
	if _, err := e.Extract(context.Background(), path); !errors.As(err, &exErr) {
		t.Errorf("Extract: expected *ExtractionError, got %v", err)
	}
	if _, err := e.Profile(context.Background(), path); !errors.As(err, &exErr) {
		t.Errorf("Profile: expected *ExtractionError, got %v", err)
	}
}

func TestProfile_nonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("a\fb\fc"), 0600); err != nil {
		t.Fatal(err)
	}
	prof, err := NewExtractor().Profile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if prof.IsImageBased || prof.AverageImageRatio != 0 || prof.PageCount != 3 {
		t.Errorf("profile = %+v", prof)
	}
}

func TestAnalyze_plainMatchesExtractAndProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("first page\fsecond page"), 0600); err != nil {
		t.Fatal(err)
	}
	e := NewExtractor()
	res, prof, err := e.Analyze(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	want, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalChars != want.TotalChars || len(res.Pages) != 2 || res.Method != MethodPlainText {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if prof.PageCount != 2 || prof.IsImageBased {
		t.Errorf("profile = %+v", prof)
	}
}

func TestAnalyze_corruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	var exErr *ExtractionError
	if _, _, err := NewExtractor().Analyze(context.Background(), path); !errors.As(err, &exErr) {
		t.Errorf("expected *ExtractionError, got %v", err)
	}
}

func TestPDFResultAndProfileShareOneParse(t *testing.T) {
	e := NewExtractor(WithMinPageChars(10))
	info := []pdfPage{
		{number: 1, text: "Site location plan", images: 1},
		{number: 2, images: 3},
		{number: 3, text: strings.Repeat("access road ", 5)},
	}
	res := pdfResult(info)
	if len(res.Pages) != 3 || res.Pages[1].Number != 2 || !res.ContainsDrawings || res.Method != MethodTextLayer {
		t.Errorf("result = %+v", res)
	}
	if res.TotalChars == 0 {
		t.Error("expected text to be counted")
	}
	prof := e.pdfProfile(info)
	if prof.PageCount != 3 {
		t.Errorf("page count = %d", prof.PageCount)
	}
	if want := 1.5 / 3; prof.AverageImageRatio != want || prof.IsImageBased {
		t.Errorf("profile = %+v, want ratio %v", prof, want)
	}
}

func TestPageImageRatio(t *testing.T) {
	e := NewExtractor(WithMinPageChars(10))
	tests := []struct {
		name string
		page pdfPage
		want float64
	}{
		{"no images", pdfPage{text: "short"}, 0},
		{"image with no text", pdfPage{images: 1, text: " "}, 1},
		{"image with caption", pdfPage{images: 2, text: "Fig 1"}, 1},
		{"image with body text", pdfPage{images: 1, text: strings.Repeat("word ", 10)}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.pageImageRatio(tt.page); got != tt.want {
				t.Errorf("ratio = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResult_FullText(t *testing.T) {
	r := &Result{Pages: []Page{{1, " one "}, {2, ""}, {3, "three"}}}
	if got := r.FullText(); got != "one\n\nthree" {
		t.Errorf("FullText = %q", got)
	}
}

func TestSupportedExtensions(t *testing.T) {
	exts := SupportedExtensions()
	for _, want := range []string{".pdf", ".docx", ".txt"} {
		found := false
		for _, e := range exts {
			if e == want {
				found = true
			}
		}
		if !found {
			t.Errorf("missing %s in %v", want, exts)
		}
	}
}
