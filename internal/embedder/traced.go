package embedder

import (
	"context"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/embedding"

	"github.com/54b3r/docrank/internal/budget"
	"github.com/54b3r/docrank/internal/rank"
)

// traceType is the RunInfo type attached to every traced call.
const traceType = "docrank"

// Traced reports every Embed call to an eino callbacks handler as an
// Embedding component run. Vectors are not attached to the trace; only the
// input texts, the model name and an estimated prompt token count are.
type Traced struct {
	inner   rank.Embedder
	handler callbacks.Handler
	name    string
}

// NewTraced wraps inner. A nil handler returns inner unchanged.
func NewTraced(inner rank.Embedder, handler callbacks.Handler) rank.Embedder {
	if handler == nil {
		return inner
	}
	return &Traced{inner: inner, handler: handler, name: NameOf(inner)}
}

// Name reports the wrapped backend.
func (t *Traced) Name() string { return t.name }

// Embed implements rank.Embedder.
func (t *Traced) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	info := &callbacks.RunInfo{
		Name:      t.name,
		Type:      traceType,
		Component: components.ComponentOfEmbedding,
	}
	cfg := &embedding.Config{Model: t.name}

	ctx = callbacks.InitCallbacks(ctx, info, t.handler)
	ctx = callbacks.OnStart(ctx, &embedding.CallbackInput{Texts: texts, Config: cfg})

	vecs, err := t.inner.Embed(ctx, texts)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}

	tokens := budget.EstimateAll(texts)
	callbacks.OnEnd(ctx, &embedding.CallbackOutput{
		Config: cfg,
		TokenUsage: &embedding.TokenUsage{
			PromptTokens: tokens,
			TotalTokens:  tokens,
		},
	})
	return vecs, nil
}
