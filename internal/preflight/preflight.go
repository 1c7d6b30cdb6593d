// Package preflight probes the dependencies of a run before any collection
// is processed: the input tree, the embedding backend and, when configured,
// the vector store. It backs the `docrank check` command.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/54b3r/docrank/internal/collection"
	"github.com/54b3r/docrank/internal/rank"
)

// probeTimeout bounds each individual probe.
const probeTimeout = 10 * time.Second

// probeText is embedded to exercise the embedding backend.
const probeText = "docrank preflight probe"

// Pinger is implemented by any dependency that can report its own
// reachability. Implementations must be safe to call from multiple
// goroutines.
type Pinger interface {
	// Ping returns nil when the dependency is usable.
	Ping(ctx context.Context) error

	// Name is a short label used in the report.
	Name() string
}

// Result is the outcome of one probe.
type Result struct {
	Name    string
	Err     error
	Elapsed time.Duration
	Detail  string
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Run executes every probe sequentially, each with its own timeout, and
// returns one Result per pinger in order.
func Run(ctx context.Context, pingers ...Pinger) []Result {
	results := make([]Result, 0, len(pingers))
	for _, p := range pingers {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		start := time.Now()
		err := p.Ping(pctx)
		cancel()

		r := Result{Name: p.Name(), Err: err, Elapsed: time.Since(start)}
		if d, ok := p.(interface{ Detail() string }); ok && err == nil {
			r.Detail = d.Detail()
		}
		results = append(results, r)
	}
	return results
}

// Failed counts unsuccessful results.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// EmbedderPinger embeds a short probe text.
type EmbedderPinger struct {
	embedder rank.Embedder
	name     string
	dim      int
}

// NewEmbedderPinger constructs an EmbedderPinger. name labels the backend.
func NewEmbedderPinger(e rank.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name implements Pinger.
func (p *EmbedderPinger) Name() string { return "embedder " + p.name }

// Ping implements Pinger.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{probeText, probeText + " two"})
	if err != nil {
		return err
	}
	if len(vecs) != 2 || len(vecs[0]) == 0 {
		return errors.New("embedder returned no vectors")
	}
	p.dim = len(vecs[0])
	return nil
}

// Detail reports the vector dimension seen on the last successful ping.
func (p *EmbedderPinger) Detail() string { return fmt.Sprintf("dim=%d", p.dim) }

// StorePinger adapts a vector store factory with a Ping method.
type StorePinger struct {
	name string
	ping func(ctx context.Context) error
}

// NewStorePinger wraps ping under the given name.
func NewStorePinger(name string, ping func(ctx context.Context) error) *StorePinger {
	return &StorePinger{name: name, ping: ping}
}

// Name implements Pinger.
func (p *StorePinger) Name() string { return "vector store " + p.name }

// Ping implements Pinger.
func (p *StorePinger) Ping(ctx context.Context) error { return p.ping(ctx) }

// InputPinger checks the input tree: the root exists and every collection
// has a valid descriptor.
type InputPinger struct {
	root   string
	detail string
}

// NewInputPinger constructs an InputPinger for root.
func NewInputPinger(root string) *InputPinger {
	return &InputPinger{root: root}
}

// Name implements Pinger.
func (p *InputPinger) Name() string { return "input " + p.root }

// Ping implements Pinger. Collections without a usable descriptor, or with
// missing PDFs, fail the probe; a run would skip them.
func (p *InputPinger) Ping(ctx context.Context) error {
	cols, err := collection.Discover(p.root)
	if err != nil {
		return err
	}

	var problems []error
	docs := 0
	for _, c := range cols {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, err := collection.LoadTask(c)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		for _, name := range task.Filenames() {
			docs++
			if _, err := os.Stat(c.DocumentPath(name)); err != nil {
				problems = append(problems, fmt.Errorf("%s: %s: %w", c.Name, name, err))
			}
		}
	}

	p.detail = fmt.Sprintf("collections=%d documents=%d", len(cols), docs)
	return errors.Join(problems...)
}

// Detail summarises what was found.
func (p *InputPinger) Detail() string { return p.detail }
