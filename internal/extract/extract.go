// Package extract turns PDF documents into ordered text blocks. Layout
// segmentation is delegated to a PDF library; this package only joins the
// spans of each block, trims the result and drops blocks too short to carry
// meaning.
//
// Two backends are available:
//
//	native: github.com/ledongthuc/pdf, pure Go, no CGO (default)
//	mupdf : github.com/gen2brain/go-fitz, the MuPDF engine
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultMinChars is the shortest trimmed block, in runes, that is kept.
const DefaultMinChars = 10

// Backend names accepted by New.
const (
	BackendNative = "native"
	BackendMuPDF  = "mupdf"
)

// Block is one extracted unit of text.
type Block struct {
	// Title is the source document's filename without extension.
	Title string

	// Page is the 1-based page number.
	Page int

	// Text is the block content, spans joined with single spaces and trimmed.
	Text string
}

// Result holds everything extracted from one document.
type Result struct {
	// Title is the document title shared by every block.
	Title string

	// Pages is the page count reported by the parser.
	Pages int

	// Blocks are the surviving blocks in page order, then layout order.
	Blocks []Block

	// Discarded counts blocks dropped by the minimum-length filter.
	Discarded int

	// SkippedPages counts pages the parser could not read.
	SkippedPages int
}

// Extractor produces the text blocks of a single PDF. Implementations open
// and release the document within one call and are safe for concurrent use
// on different paths.
type Extractor interface {
	// Extract reads the PDF at path.
	Extract(ctx context.Context, path string) (*Result, error)
}

// New returns the extractor for the named backend. An empty name selects
// the native backend; minChars <= 0 selects DefaultMinChars.
func New(backend string, minChars int) (Extractor, error) {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	switch strings.ToLower(backend) {
	case "", BackendNative:
		return NewNativeExtractor(minChars), nil
	case BackendMuPDF:
		return NewMuPDFExtractor(minChars), nil
	default:
		return nil, fmt.Errorf("extract: unknown backend %q — valid values: native, mupdf", backend)
	}
}

// Title derives the document title from its path: the base name with the
// extension stripped.
func Title(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// collector applies the shared span-joining and length rules.
type collector struct {
	minChars int
	res      *Result
}

func newCollector(path string, minChars int) *collector {
	return &collector{
		minChars: minChars,
		res:      &Result{Title: Title(path), Blocks: []Block{}},
	}
}

// add joins the spans of one block and keeps it if long enough.
func (c *collector) add(page int, spans []string) {
	text := JoinSpans(spans)
	if utf8.RuneCountInString(text) < c.minChars {
		c.res.Discarded++
		return
	}
	c.res.Blocks = append(c.res.Blocks, Block{Title: c.res.Title, Page: page, Text: text})
}

// JoinSpans concatenates span texts with single spaces and trims the result.
func JoinSpans(spans []string) string {
	return strings.TrimSpace(strings.Join(spans, " "))
}
