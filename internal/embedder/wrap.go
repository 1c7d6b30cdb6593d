package embedder

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docrank/internal/budget"
	"github.com/54b3r/docrank/internal/rank"
)

// named is implemented by embedders that can describe themselves.
type named interface {
	Name() string
}

// NameOf returns e's backend name, or "embedder" when it has none.
func NameOf(e rank.Embedder) string {
	if n, ok := e.(named); ok {
		return n.Name()
	}
	return "embedder"
}

// Batched splits one logical Embed call into requests bounded by an
// estimated token budget and an input count, then stitches the results back
// together in input order.
type Batched struct {
	inner     rank.Embedder
	maxTokens int
	maxItems  int
}

// NewBatched wraps inner. Non-positive limits disable that bound.
func NewBatched(inner rank.Embedder, maxTokens, maxItems int) *Batched {
	return &Batched{inner: inner, maxTokens: maxTokens, maxItems: maxItems}
}

// Name reports the wrapped backend.
func (b *Batched) Name() string { return NameOf(b.inner) }

// Embed implements rank.Embedder.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	spans := budget.Batches(texts, b.maxTokens, b.maxItems)
	if len(spans) <= 1 {
		return b.inner.Embed(ctx, texts)
	}

	out := make([][]float32, 0, len(texts))
	for _, s := range spans {
		vecs, err := b.inner.Embed(ctx, texts[s.Start:s.End])
		if err != nil {
			return nil, fmt.Errorf("embedder: batch [%d:%d]: %w", s.Start, s.End, err)
		}
		if len(vecs) != s.End-s.Start {
			return nil, fmt.Errorf("embedder: batch [%d:%d] returned %d vectors", s.Start, s.End, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Limited throttles Embed calls to a fixed request rate.
type Limited struct {
	inner   rank.Embedder
	limiter *rate.Limiter
}

// NewLimited wraps inner so that at most rps calls start per second.
func NewLimited(inner rank.Embedder, rps float64) *Limited {
	burst := max(1, int(rps))
	return &Limited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Name reports the wrapped backend.
func (l *Limited) Name() string { return NameOf(l.inner) }

// Embed waits for a token, then calls the wrapped embedder.
func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder: rate limit wait: %w", err)
	}
	return l.inner.Embed(ctx, texts)
}

// ObserveFunc receives the duration and outcome of one Embed call.
type ObserveFunc func(d time.Duration, err error)

// Timed reports the wall-clock duration of every Embed call.
type Timed struct {
	inner   rank.Embedder
	observe ObserveFunc
}

// NewTimed wraps inner. observe must be safe for concurrent use.
func NewTimed(inner rank.Embedder, observe ObserveFunc) *Timed {
	return &Timed{inner: inner, observe: observe}
}

// Name reports the wrapped backend.
func (t *Timed) Name() string { return NameOf(t.inner) }

// Embed implements rank.Embedder.
func (t *Timed) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := t.inner.Embed(ctx, texts)
	t.observe(time.Since(start), err)
	return vecs, err
}
