package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// spaceGapRatio is the horizontal gap, as a fraction of the font size,
	// above which two runs on the same line are separated by a space.
	spaceGapRatio = 0.15

	// lineGapRatio is the vertical distance between baselines, as a multiple
	// of the font size, above which a new block starts.
	lineGapRatio = 1.6

	// sizeChangeRatio starts a new block when the font size between two
	// consecutive lines changes by more than this factor (headings).
	sizeChangeRatio = 1.25
)

// lineTolerance is the baseline drift, as a fraction of the font size,
// still treated as the same line (sub- and superscripts).
const lineTolerance = 0.5

// NativeExtractor reads PDFs with github.com/ledongthuc/pdf. The library
// interprets each page's content stream and reports positioned glyphs;
// glyphs sharing a baseline become lines and vertically adjacent lines of
// similar size become blocks.
type NativeExtractor struct {
	minChars int
}

// NewNativeExtractor constructs a NativeExtractor.
func NewNativeExtractor(minChars int) *NativeExtractor {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return &NativeExtractor{minChars: minChars}
}

// Extract reads every page of the PDF at path. ledongthuc/pdf panics on
// some malformed files (bad xref offsets, broken trailers) while building
// the reader or resolving pages; those panics surface as errors.
func (e *NativeExtractor) Extract(ctx context.Context, path string) (res *Result, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("extract: open %s: malformed PDF: %v", path, r)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}

	c := newCollector(path, e.minChars)
	c.res.Pages = r.NumPage()

	for i := 1; i <= c.res.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		glyphs, err := pageText(page)
		if err != nil {
			c.res.SkippedPages++
			continue
		}
		for _, block := range groupLines(toLines(glyphs)) {
			c.add(i, block)
		}
	}

	return c.res, nil
}

// pageText wraps Page.Content, which panics on malformed content streams
// instead of returning an error.
func pageText(page pdf.Page) (text []pdf.Text, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract: malformed page content: %v", r)
		}
	}()
	return page.Content().Text, nil
}

// run is one positioned text fragment.
type run struct {
	x, w float64
	s    string
}

// line is one row of text on a page. y grows upwards (PDF user space).
type line struct {
	y    float64
	size float64
	runs []run
}

// toLines walks glyphs in content-stream order and starts a new line
// whenever the baseline moves by more than lineTolerance of the font size.
// Line breaks emitted by the library are dropped; space glyphs are kept.
func toLines(glyphs []pdf.Text) []line {
	var out []line
	var cur *line
	for _, g := range glyphs {
		if g.S == "" || g.S == "\n" || g.S == "\r" {
			continue
		}
		size := math.Abs(g.FontSize)
		if cur == nil || math.Abs(g.Y-cur.y) > lineTolerance*math.Max(math.Max(size, cur.size), 1) {
			out = append(out, line{y: g.Y})
			cur = &out[len(out)-1]
		}
		cur.runs = append(cur.runs, run{x: g.X, w: g.W, s: g.S})
		if size > cur.size {
			cur.size = size
		}
	}

	kept := out[:0]
	for _, l := range out {
		if strings.TrimSpace(l.text()) != "" {
			kept = append(kept, l)
		}
	}
	return kept
}

// text renders the runs of a line left to right, inserting a space where
// the gap between consecutive runs is wider than a fraction of the font size,
// and collapses whitespace runs. Glyphs of fonts without width tables share
// one x, so the stable sort keeps them in stream order.
func (l line) text() string {
	runs := append([]run(nil), l.runs...)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].x < runs[j].x })

	var b strings.Builder
	for i, r := range runs {
		if i > 0 {
			prev := runs[i-1]
			gap := r.x - (prev.x + prev.w)
			if gap > spaceGapRatio*l.size && !endsWithSpace(&b) && !strings.HasPrefix(r.s, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(r.s)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s != "" && s[len(s)-1] == ' '
}

// groupLines orders lines top to bottom and splits them into blocks. Each
// returned block is the list of its line texts, which act as the spans.
func groupLines(lines []line) [][]string {
	if len(lines) == 0 {
		return nil
	}
	sorted := append([]line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var blocks [][]string
	var current []string
	var prev line
	for i, l := range sorted {
		if i > 0 && startsNewBlock(prev, l) {
			blocks = append(blocks, current)
			current = nil
		}
		current = append(current, l.text())
		prev = l
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// startsNewBlock reports whether cur belongs to a different block than prev.
func startsNewBlock(prev, cur line) bool {
	size := math.Max(prev.size, cur.size)
	if size <= 0 {
		size = 1
	}
	if prev.y-cur.y > lineGapRatio*size {
		return true
	}
	lo, hi := math.Min(prev.size, cur.size), math.Max(prev.size, cur.size)
	return lo > 0 && hi/lo > sizeChangeRatio
}
