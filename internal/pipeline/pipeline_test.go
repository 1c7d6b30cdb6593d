package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docrank/internal/embedder"
	"github.com/54b3r/docrank/internal/extract"
	"github.com/54b3r/docrank/internal/logging"
	"github.com/54b3r/docrank/internal/metrics"
	"github.com/54b3r/docrank/internal/rank"
	"github.com/54b3r/docrank/internal/report"
)

// fakeExtractor returns canned blocks keyed by file base name.
type fakeExtractor struct {
	mu     sync.Mutex
	blocks map[string][]string
	fail   map[string]bool
	calls  []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (*extract.Result, error) {
	name := filepath.Base(path)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	if f.fail[name] {
		return nil, fmt.Errorf("extract: open %s: malformed PDF", path)
	}
	res := &extract.Result{Title: extract.Title(path), Pages: len(f.blocks[name]), Blocks: []extract.Block{}}
	for i, text := range f.blocks[name] {
		res.Blocks = append(res.Blocks, extract.Block{Title: res.Title, Page: i + 1, Text: text})
	}
	return res, nil
}

type failingRanker struct{}

func (failingRanker) Rank(context.Context, string, []extract.Block, int) ([]rank.Ranked, error) {
	return nil, errors.New("embedding backend unavailable")
}

type fixture struct {
	input, output string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	return fixture{input: filepath.Join(root, "inputs"), output: filepath.Join(root, "outputs")}
}

// addCollection writes input.json and an empty placeholder for every PDF in
// present.
func (f fixture) addCollection(t *testing.T, name, role, task string, docs []string, present ...string) {
	t.Helper()
	dir := filepath.Join(f.input, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "PDFs"), 0o755))

	entries := make([]map[string]string, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, map[string]string{"filename": d})
	}
	body, err := json.Marshal(map[string]any{
		"persona":        map[string]string{"role": role},
		"job_to_be_done": map[string]string{"task": task},
		"documents":      entries,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.json"), body, 0o644))

	for _, p := range present {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "PDFs", p), []byte("%PDF-1.4"), 0o644))
	}
}

func (f fixture) readReport(t *testing.T, name string) report.Report {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.output, name+"_output.json"))
	require.NoError(t, err)
	var r report.Report
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func newOrchestrator(t *testing.T, f fixture, ex extract.Extractor, logs *bytes.Buffer, mutate ...func(*Options)) *Orchestrator {
	t.Helper()
	ranker, err := rank.NewRanker(embedder.NewTFIDFEmbedder(), rank.MemoryFactory{}, 0)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.InputDir, opts.OutputDir = f.input, f.output
	for _, m := range mutate {
		m(&opts)
	}

	log := logging.Discard()
	if logs != nil {
		log = logging.NewWithWriter(logs)
	}
	o, err := New(opts, ex, ranker, metrics.New(), log)
	require.NoError(t, err)
	o.now = func() time.Time { return time.Date(2025, 7, 10, 15, 31, 22, 0, time.Local) }
	return o
}

func TestNew_InvalidOptions(t *testing.T) {
	t.Parallel()
	ranker, err := rank.NewRanker(embedder.NewTFIDFEmbedder(), rank.MemoryFactory{}, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"no input", func(o *Options) { o.InputDir = "" }},
		{"no output", func(o *Options) { o.OutputDir = "" }},
		{"zero top-k", func(o *Options) { o.TopK = 0 }},
		{"zero workers", func(o *Options) { o.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := New(opts, &fakeExtractor{}, ranker, nil, nil)
			require.Error(t, err)
		})
	}

	_, err = New(DefaultOptions(), nil, ranker, nil, nil)
	require.Error(t, err)
	_, err = New(DefaultOptions(), &fakeExtractor{}, nil, nil, nil)
	require.Error(t, err)
}

func TestRun_NoCollections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.input, 0o755))

	var logs bytes.Buffer
	sum, err := newOrchestrator(t, f, &fakeExtractor{}, &logs).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.Collections)
	assert.Contains(t, logs.String(), "no input folders found")
	assert.DirExists(t, f.output)

	entries, err := os.ReadDir(f.output)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_MissingInputRootBehavesLikeEmpty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	var logs bytes.Buffer
	sum, err := newOrchestrator(t, f, &fakeExtractor{}, &logs).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.Collections)
	assert.Contains(t, logs.String(), "no input folders found")
}

func TestRun_InputRootIsAFile(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.input), 0o755))
	require.NoError(t, os.WriteFile(f.input, []byte("not a directory"), 0o644))

	_, err := newOrchestrator(t, f, &fakeExtractor{}, nil).Run(context.Background())
	require.Error(t, err)
}

func TestRun_MissingDescriptorSkipsOnlyThatCollection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.input, "foo"), 0o755))
	f.addCollection(t, "travel", "Travel Planner", "plan a trip", []string{"Cities.pdf"}, "Cities.pdf")

	ex := &fakeExtractor{blocks: map[string][]string{"Cities.pdf": {"Nice is a coastal city for a trip"}}}
	var logs bytes.Buffer
	sum, err := newOrchestrator(t, f, ex, &logs).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Collections, 2)
	assert.Equal(t, Outcome{Name: "foo", Status: StatusSkipped, Reason: ReasonNoDescriptor}, sum.Collections[0])
	assert.Equal(t, StatusProcessed, sum.Collections[1].Status)
	assert.Equal(t, 1, sum.Processed())
	assert.Equal(t, 1, sum.Skipped())

	assert.Contains(t, logs.String(), "missing input.json")
	assert.NoFileExists(t, filepath.Join(f.output, "foo_output.json"))
	assert.FileExists(t, filepath.Join(f.output, "travel_output.json"))
}

func TestRun_MalformedDescriptorSkipsCollection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	dir := filepath.Join(f.input, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input.json"), []byte(`{"persona": `), 0o644))

	sum, err := newOrchestrator(t, f, &fakeExtractor{}, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Collections, 1)
	assert.Equal(t, ReasonInvalidDescriptor, sum.Collections[0].Reason)
}

func TestRun_MissingPDFSkipsDocumentOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, "travel", "Travel Planner", "plan beaches trip",
		[]string{"Missing.pdf", "Coast.pdf"}, "Coast.pdf")

	ex := &fakeExtractor{blocks: map[string][]string{"Coast.pdf": {"Beaches of the coast are great", "Hidden coves and beaches"}}}
	var logs bytes.Buffer
	sum, err := newOrchestrator(t, f, ex, &logs).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Collections, 1)
	c := sum.Collections[0]
	assert.Equal(t, StatusProcessed, c.Status)
	require.Len(t, c.Documents, 2)
	assert.Equal(t, ReasonNotFound, c.Documents[0].Reason)
	assert.Equal(t, StatusProcessed, c.Documents[1].Status)
	assert.Equal(t, []string{"Coast.pdf"}, ex.calls)
	assert.Contains(t, logs.String(), "PDF not found")

	r := f.readReport(t, "travel")
	assert.Equal(t, []string{"Missing.pdf", "Coast.pdf"}, r.Metadata.InputDocuments)
	require.Len(t, r.ExtractedSections, 2)
	for _, s := range r.ExtractedSections {
		assert.Equal(t, "Coast.pdf", s.Document)
	}
}

func TestRun_UnreadablePDFSkipsDocument(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, "c", "Analyst", "review revenue", []string{"bad.pdf", "good.pdf"}, "bad.pdf", "good.pdf")
	ex := &fakeExtractor{
		blocks: map[string][]string{"good.pdf": {"Quarterly revenue grew strongly"}},
		fail:   map[string]bool{"bad.pdf": true},
	}

	sum, err := newOrchestrator(t, f, ex, nil).Run(context.Background())
	require.NoError(t, err)
	c := sum.Collections[0]
	assert.Equal(t, StatusProcessed, c.Status)
	assert.Equal(t, ReasonUnreadable, c.Documents[0].Reason)
	assert.Len(t, f.readReport(t, "c").SubsectionAnalysis, 1)
}

func TestRun_ZeroBlocksWritesEmptyReport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, "empty", "Student", "study chemistry", []string{"scan.pdf"}, "scan.pdf")

	sum, err := newOrchestrator(t, f, &fakeExtractor{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, sum.Collections[0].Status)

	data, err := os.ReadFile(filepath.Join(f.output, "empty_output.json"))
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, `[]`, string(raw["extracted_sections"]))
	assert.JSONEq(t, `[]`, string(raw["subsection_analysis"]))
}

func TestRun_TopFiveAcrossDocuments(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, "forms", "HR professional", "create fillable forms for onboarding",
		[]string{"A.pdf", "B.pdf"}, "A.pdf", "B.pdf")

	ex := &fakeExtractor{blocks: map[string][]string{
		"A.pdf": {
			"Export a PDF to Microsoft Word",
			"Share documents with reviewers by email",
			"Compress large scans to save space",
			"Print booklets double sided",
		},
		"B.pdf": {
			"Create fillable forms with the Prepare Forms tool",
			"Add signature fields to onboarding forms",
			"Fillable text fields and checkboxes for forms",
			"Convert clipboard images to PDF",
		},
	}}

	_, err := newOrchestrator(t, f, ex, nil).Run(context.Background())
	require.NoError(t, err)

	r := f.readReport(t, "forms")
	require.Len(t, r.ExtractedSections, 5)
	require.Len(t, r.SubsectionAnalysis, 5)
	assert.Equal(t, "B.pdf", r.ExtractedSections[0].Document)
	for i, s := range r.ExtractedSections {
		assert.Equal(t, i+1, s.ImportanceRank)
		assert.Equal(t, s.Document, r.SubsectionAnalysis[i].Document)
		assert.Equal(t, s.PageNumber, r.SubsectionAnalysis[i].PageNumber)
		assert.Equal(t, rank.SectionTitle(r.SubsectionAnalysis[i].RefinedText, rank.DefaultTitleChars), s.SectionTitle)
	}
	assert.Equal(t, "HR professional", r.Metadata.Persona)
	assert.Equal(t, "2025-07-10T15:31:22.000000", r.Metadata.ProcessingTimestamp)
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, "travel", "Travel Planner", "plan a trip with friends", []string{"Cities.pdf"}, "Cities.pdf")
	ex := &fakeExtractor{blocks: map[string][]string{"Cities.pdf": {
		"Marseille is a port city", "Nice has a famous promenade", "Trip ideas for friends in Provence",
	}}}

	o := newOrchestrator(t, f, ex, nil)
	_, err := o.Run(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(f.output, "travel_output.json"))
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(f.output, "travel_output.json"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestRun_RankFailureSkipsCollection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, "c", "r", "t", []string{"a.pdf"}, "a.pdf")
	ex := &fakeExtractor{blocks: map[string][]string{"a.pdf": {"some long enough text"}}}

	o, err := New(Options{InputDir: f.input, OutputDir: f.output, TopK: 5, Workers: 1}, ex, failingRanker{}, nil, logging.Discard())
	require.NoError(t, err)
	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonRankFailed, sum.Collections[0].Reason)
	assert.NoFileExists(t, filepath.Join(f.output, "c_output.json"))
}

func TestRun_ConcurrentWorkers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ex := &fakeExtractor{blocks: map[string][]string{}}
	for i := range 6 {
		name := fmt.Sprintf("col%d", i)
		doc := name + ".pdf"
		f.addCollection(t, name, "Researcher", "summarise findings", []string{doc}, doc)
		ex.blocks[doc] = []string{"Findings summary for " + name, "Methods section text"}
	}

	sum, err := newOrchestrator(t, f, ex, nil, func(o *Options) { o.Workers = 3 }).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Collections, 6)
	assert.Equal(t, 6, sum.Processed())
	for i, c := range sum.Collections {
		assert.Equal(t, fmt.Sprintf("col%d", i), c.Name)
		assert.FileExists(t, c.Output)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addCollection(t, "c", "r", "t", []string{"a.pdf"}, "a.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := newOrchestrator(t, f, &fakeExtractor{}, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Skipped())
}
