// Package extract turns uploaded files into page-level text plus an image signal
// used to skip drawing-only documents.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Extraction methods reported in results.
const (
	MethodTextLayer   = "text_layer"
	MethodDOCX        = "docx"
	MethodODT         = "odt"
	MethodRTF         = "rtf"
	MethodSpreadsheet = "spreadsheet"
	MethodPlainText   = "plain_text"
)

// Defaults for the image heuristic.
const (
	DefaultImageThreshold = 0.7
	DefaultMinPageChars   = 100
)

// ErrUnsupportedType is returned for file extensions with no extractor.
var ErrUnsupportedType = errors.New("unsupported file type")

// ExtractionError reports a file that exists but could not be parsed.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Page is the text of one page (or sheet, or page-break section), numbered from 1.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Result is the extracted content of a file.
type Result struct {
	Pages            []Page `json:"pages"`
	TotalChars       int    `json:"total_char_count"`
	ContainsDrawings bool   `json:"contains_drawings"`
	Method           string `json:"extraction_method"`
}

// FullText joins the page texts with blank lines.
func (r *Result) FullText() string {
	parts := make([]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ImageProfile summarises how much of a file is image content.
type ImageProfile struct {
	IsImageBased      bool    `json:"is_image_based"`
	AverageImageRatio float64 `json:"average_image_ratio"`
	PageCount         int     `json:"page_count"`
}

// Extractor is the contract the ingestion pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Result, error)
	Profile(ctx context.Context, path string) (*ImageProfile, error)
	// Analyze returns both from a single read and parse of the file.
	Analyze(ctx context.Context, path string) (*Result, *ImageProfile, error)
}

var supported = map[string]string{
	".pdf":  MethodTextLayer,
	".docx": MethodDOCX,
	".odt":  MethodODT,
	".rtf":  MethodRTF,
	".xlsx": MethodSpreadsheet,
	".txt":  MethodPlainText,
	".md":   MethodPlainText,
	".csv":  MethodPlainText,
}

// SupportedExtensions returns the lowercase extensions (with dot) that can be extracted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supported))
	for ext := range supported {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// IsSupported reports whether path has an extractable extension.
func IsSupported(path string) bool {
	_, ok := supported[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileExtractor is the default Extractor.
type FileExtractor struct {
	imageThreshold float64
	minPageChars   int
	logger         *zap.Logger
}

// Option configures a FileExtractor.
type Option func(*FileExtractor)

// WithImageThreshold sets the average image ratio above which a file is image based.
func WithImageThreshold(t float64) Option {
	return func(e *FileExtractor) {
		if t > 0 {
			e.imageThreshold = t
		}
	}
}

// WithMinPageChars sets how many characters a page with images needs before it
// counts as a text page.
func WithMinPageChars(n int) Option {
	return func(e *FileExtractor) {
		if n > 0 {
			e.minPageChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *FileExtractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor returns a new FileExtractor.
func NewExtractor(opts ...Option) *FileExtractor {
	e := &FileExtractor{
		imageThreshold: DefaultImageThreshold,
		minPageChars:   DefaultMinPageChars,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *FileExtractor) read(path string) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := supported[ext]; !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &ExtractionError{Path: path, Err: fmt.Errorf("read file: %w", err)}
	}
	return content, ext, nil
}

// Extract reads the file at path and returns its pages.
func (e *FileExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	content, ext, err := e.read(path)
	if err != nil {
		return nil, err
	}
	res, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	e.logger.Debug("extracted",
		zap.String("path", path),
		zap.Int("pages", len(res.Pages)),
		zap.Int("chars", res.TotalChars))
	return res, nil
}

// Profile measures the image coverage of the file at path.
func (e *FileExtractor) Profile(ctx context.Context, path string) (*ImageProfile, error) {
	content, ext, err := e.read(path)
	if err != nil {
		return nil, err
	}
	prof, err := e.ProfileBytes(content, ext)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	return prof, nil
}

// Analyze extracts the file at path and profiles it in one pass.
func (e *FileExtractor) Analyze(ctx context.Context, path string) (*Result, *ImageProfile, error) {
	content, ext, err := e.read(path)
	if err != nil {
		return nil, nil, err
	}
	res, prof, err := e.AnalyzeBytes(content, ext)
	if err != nil {
		return nil, nil, &ExtractionError{Path: path, Err: err}
	}
	e.logger.Debug("analyzed",
		zap.String("path", path),
		zap.Int("pages", len(res.Pages)),
		zap.Int("chars", res.TotalChars),
		zap.Float64("image_ratio", prof.AverageImageRatio))
	return res, prof, nil
}

// AnalyzeBytes is Analyze on in-memory content. A PDF is parsed once for both
// results.
func (e *FileExtractor) AnalyzeBytes(content []byte, ext string) (*Result, *ImageProfile, error) {
	if ext == ".pdf" {
		info, err := readPDF(content)
		if err != nil {
			return nil, nil, err
		}
		return pdfResult(info), e.pdfProfile(info), nil
	}
	res, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, nil, err
	}
	return res, &ImageProfile{PageCount: len(res.Pages)}, nil
}

// ExtractBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *FileExtractor) ExtractBytes(content []byte, ext string) (*Result, error) {
	var pages []Page
	var err error
	switch ext {
	case ".pdf":
		info, err := readPDF(content)
		if err != nil {
			return nil, err
		}
		return pdfResult(info), nil
	case ".docx":
		pages, err = extractDOCX(content)
	case ".odt":
		pages, err = extractODT(content)
	case ".rtf":
		pages, err = extractRTF(content)
	case ".xlsx":
		pages, err = extractExcel(content)
	case ".txt", ".md", ".csv":
		pages = extractPlain(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if err != nil {
		return nil, err
	}
	return newResult(pages, false, supported[ext]), nil
}

func newResult(pages []Page, drawings bool, method string) *Result {
	res := &Result{Pages: pages, ContainsDrawings: drawings, Method: method}
	for _, p := range pages {
		res.TotalChars += utf8.RuneCountInString(strings.TrimSpace(p.Text))
	}
	return res
}

func pdfResult(info []pdfPage) *Result {
	pages := make([]Page, 0, len(info))
	drawings := false
	for _, p := range info {
		pages = append(pages, Page{Number: p.number, Text: p.text})
		drawings = drawings || p.images > 0
	}
	return newResult(pages, drawings, MethodTextLayer)
}

// ProfileBytes computes the image profile. Only PDFs carry images; every other
// format reports a ratio of zero.
func (e *FileExtractor) ProfileBytes(content []byte, ext string) (*ImageProfile, error) {
	if ext != ".pdf" {
		_, prof, err := e.AnalyzeBytes(content, ext)
		return prof, err
	}
	pages, err := readPDF(content)
	if err != nil {
		return nil, err
	}
	return e.pdfProfile(pages), nil
}

func (e *FileExtractor) pdfProfile(pages []pdfPage) *ImageProfile {
	prof := &ImageProfile{PageCount: len(pages)}
	if len(pages) == 0 {
		return prof
	}
	var sum float64
	for _, p := range pages {
		sum += e.pageImageRatio(p)
	}
	prof.AverageImageRatio = sum / float64(len(pages))
	prof.IsImageBased = prof.AverageImageRatio > e.imageThreshold
	return prof
}

// pageImageRatio estimates the share of a page covered by images: a page with
// images and almost no text is all image, a page with images and real text is
// half, a page without images is none.
func (e *FileExtractor) pageImageRatio(p pdfPage) float64 {
	if p.images == 0 {
		return 0
	}
	if utf8.RuneCountInString(strings.TrimSpace(p.text)) < e.minPageChars {
		return 1
	}
	return 0.5
}
