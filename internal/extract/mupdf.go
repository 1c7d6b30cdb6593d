package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// MuPDFExtractor reads PDFs with github.com/gen2brain/go-fitz. MuPDF's
// structured text output ends every line with a newline and every block
// with an extra one, so blank lines delimit blocks.
type MuPDFExtractor struct {
	minChars int
}

// NewMuPDFExtractor constructs a MuPDFExtractor.
func NewMuPDFExtractor(minChars int) *MuPDFExtractor {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return &MuPDFExtractor{minChars: minChars}
}

// Extract reads every page of the PDF at path.
func (e *MuPDFExtractor) Extract(ctx context.Context, path string) (*Result, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer doc.Close()

	c := newCollector(path, e.minChars)
	c.res.Pages = doc.NumPage()

	for i := 0; i < c.res.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			c.res.SkippedPages++
			continue
		}
		for _, block := range splitBlocks(text) {
			c.add(i+1, block)
		}
	}

	return c.res, nil
}

// splitBlocks splits MuPDF page text on blank lines. Each block is returned
// as its list of non-empty lines.
func splitBlocks(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks [][]string
	var current []string
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, ln)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}
