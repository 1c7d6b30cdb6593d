// Package pipeline runs the batch: discover collections, load each task,
// extract its documents, rank the blocks and write one report per
// collection. Failures are contained to the unit they occur in; a bad
// collection or document is logged, recorded as a skipped Outcome and the
// run moves on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docrank/internal/collection"
	"github.com/54b3r/docrank/internal/extract"
	"github.com/54b3r/docrank/internal/metrics"
	"github.com/54b3r/docrank/internal/rank"
	"github.com/54b3r/docrank/internal/report"
)

// Default directories, relative to the working directory.
const (
	DefaultInputDir  = "inputs"
	DefaultOutputDir = "outputs"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

// Options configures a run.
type Options struct {
	// InputDir holds one sub-directory per collection.
	InputDir string `validate:"required"`

	// OutputDir receives <collection>_output.json; created if absent.
	OutputDir string `validate:"required"`

	// TopK is the number of ranked sections per collection.
	TopK int `validate:"min=1"`

	// Workers bounds how many collections are processed at once.
	Workers int `validate:"min=1"`
}

// DefaultOptions returns the options of a plain `docrank` invocation.
func DefaultOptions() Options {
	return Options{
		InputDir:  DefaultInputDir,
		OutputDir: DefaultOutputDir,
		TopK:      rank.DefaultTopK,
		Workers:   1,
	}
}

// Ranker selects the blocks most relevant to a goal statement.
type Ranker interface {
	Rank(ctx context.Context, goal string, blocks []extract.Block, k int) ([]rank.Ranked, error)
}

// Orchestrator drives a run. Construct with New.
type Orchestrator struct {
	opts      Options
	extractor extract.Extractor
	ranker    Ranker
	metrics   *metrics.Metrics
	log       *slog.Logger

	// now stamps reports; replaced in tests.
	now func() time.Time
}

// New validates opts and builds an Orchestrator. m may be nil.
func New(opts Options, extractor extract.Extractor, ranker Ranker, m *metrics.Metrics, log *slog.Logger) (*Orchestrator, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("pipeline: invalid options: %w", err)
	}
	if extractor == nil {
		return nil, errors.New("pipeline: extractor must not be nil")
	}
	if ranker == nil {
		return nil, errors.New("pipeline: ranker must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		opts:      opts,
		extractor: extractor,
		ranker:    ranker,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}, nil
}

// Run processes every collection under InputDir. A missing input root is
// treated like an empty one. Only an unreadable input root, an uncreatable
// output directory or cancellation are returned as errors; everything else
// is reported through the Summary.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create output directory: %w", err)
	}

	cols, err := collection.Discover(o.opts.InputDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	summary := &Summary{Collections: make([]Outcome, len(cols))}
	if len(cols) == 0 {
		o.log.Info("no input folders found", slog.String("input_dir", o.opts.InputDir))
		return summary, nil
	}

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, c := range cols {
		g.Go(func() error {
			summary.Collections[i] = o.processCollection(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	o.log.Info("run complete",
		slog.Int("collections", len(cols)),
		slog.Int("processed", summary.Processed()),
		slog.Int("skipped", summary.Skipped()),
		slog.Duration("elapsed", time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("pipeline: run interrupted: %w", err)
	}
	return summary, nil
}

// processCollection handles one collection end to end.
func (o *Orchestrator) processCollection(ctx context.Context, c collection.Collection) Outcome {
	log := o.log.With(slog.String("collection", c.Name))
	out := Outcome{Name: c.Name}

	skip := func(reason string) Outcome {
		out.Status = StatusSkipped
		out.Reason = reason
		o.metrics.Collection(metrics.OutcomeSkipped)
		return out
	}

	if err := ctx.Err(); err != nil {
		return skip("cancelled")
	}

	task, err := collection.LoadTask(c)
	if err != nil {
		if errors.Is(err, collection.ErrNoDescriptor) {
			log.Warn("missing input.json", slog.String("path", c.DescriptorPath()))
			return skip(ReasonNoDescriptor)
		}
		log.Warn("invalid input.json", slog.String("path", c.DescriptorPath()), slog.Any("error", err))
		return skip(ReasonInvalidDescriptor)
	}

	log.Info("processing collection",
		slog.String("persona", task.Persona.Role),
		slog.Int("documents", len(task.Documents)),
	)

	blocks, docs := o.extractDocuments(ctx, log, c, task)
	out.Documents = docs
	if err := ctx.Err(); err != nil {
		return skip("cancelled")
	}

	ranked, err := o.ranker.Rank(ctx, task.Goal(), blocks, o.opts.TopK)
	if err != nil {
		log.Error("ranking failed", slog.Int("blocks", len(blocks)), slog.Any("error", err))
		return skip(ReasonRankFailed)
	}
	o.metrics.RankResults(len(ranked))

	path := filepath.Join(o.opts.OutputDir, c.OutputName())
	if err := report.Write(path, report.Build(task, ranked, o.now())); err != nil {
		log.Error("write failed", slog.String("path", path), slog.Any("error", err))
		return skip(ReasonWriteFailed)
	}
	log.Info("saved", slog.String("path", path), slog.Int("sections", len(ranked)))

	out.Status = StatusProcessed
	out.Output = path
	out.Sections = len(ranked)
	o.metrics.Collection(metrics.OutcomeProcessed)
	return out
}

// extractDocuments extracts every listed document in descriptor order and
// returns the pooled blocks. Missing or unreadable documents are skipped.
func (o *Orchestrator) extractDocuments(ctx context.Context, log *slog.Logger, c collection.Collection, task *collection.Task) ([]extract.Block, []Outcome) {
	blocks := []extract.Block{}
	docs := make([]Outcome, 0, len(task.Documents))

	for _, name := range task.Filenames() {
		if ctx.Err() != nil {
			break
		}
		path := c.DocumentPath(name)
		doc := Outcome{Name: name}

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			log.Warn("PDF not found", slog.String("path", path))
			doc.Status, doc.Reason = StatusSkipped, ReasonNotFound
			docs = append(docs, doc)
			o.metrics.Document(metrics.OutcomeSkipped)
			continue
		}

		res, err := o.extractor.Extract(ctx, path)
		if err != nil {
			log.Warn("PDF could not be read", slog.String("path", path), slog.Any("error", err))
			doc.Status, doc.Reason = StatusSkipped, ReasonUnreadable
			docs = append(docs, doc)
			o.metrics.Document(metrics.OutcomeSkipped)
			continue
		}

		if res.SkippedPages > 0 {
			log.Warn("unreadable pages skipped", slog.String("path", path), slog.Int("pages", res.SkippedPages))
		}
		log.Debug("extracted",
			slog.String("document", name),
			slog.Int("pages", res.Pages),
			slog.Int("blocks", len(res.Blocks)),
			slog.Int("discarded", res.Discarded),
		)

		blocks = append(blocks, res.Blocks...)
		doc.Status = StatusProcessed
		doc.Sections = len(res.Blocks)
		docs = append(docs, doc)
		o.metrics.Document(metrics.OutcomeProcessed)
		o.metrics.Blocks(len(res.Blocks), res.Discarded)
	}
	return blocks, docs
}
