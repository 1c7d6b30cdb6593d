package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docrank/internal/rank"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		assert.True(t, req.Truncate)

		resp := ollamaEmbedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "all-minilm"})
	got, err := emb.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, got)
	assert.Equal(t, "ollama/all-minilm", emb.Name())
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"all-minilm\" not found, try pulling it first"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "all-minilm"}).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "try pulling it first")
}

func TestOllamaEmbedder_NonJSONError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"}).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestOpenAIEmbedder_OutOfOrderData(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openaiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 8, req.Dimensions)
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`)
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small", Dimensions: 8})
	got, err := emb.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
}

func TestOpenAIEmbedder_Azure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/embed-small/embeddings", r.URL.Path)
		assert.Equal(t, "2025-04-01-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"index":0,"embedding":[0.5]}]}`)
	}))
	t.Cleanup(srv.Close)

	emb := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL + "/openai", APIKey: "az-key", Model: "embed-small",
		Azure: true, APIVersion: "2025-04-01-preview",
	})
	got, err := emb.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5}}, got)
	assert.Equal(t, "azure/embed-small", emb.Name())
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", Model: "m"}).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Incorrect API key")
}

func TestTFIDFEmbedder_RanksOverlap(t *testing.T) {
	t.Parallel()
	emb := NewTFIDFEmbedder()
	texts := []string{
		"plan a trip to coastal beaches with nightlife",
		"The best beaches and nightlife on the coast",
		"Corporate tax depreciation schedules",
	}
	vecs, err := emb.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Greater(t, rank.Cosine(vecs[0], vecs[1]), rank.Cosine(vecs[0], vecs[2]))
	assert.InDelta(t, 0, rank.Cosine(vecs[0], vecs[2]), 1e-6)

	for _, v := range vecs {
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, norm, 1e-5)
	}
}

func TestTFIDFEmbedder_Deterministic(t *testing.T) {
	t.Parallel()
	texts := []string{"alpha beta gamma", "beta delta", "épée über naïve"}
	a, err := NewTFIDFEmbedder().Embed(context.Background(), texts)
	require.NoError(t, err)
	b, err := NewTFIDFEmbedder().Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTFIDFEmbedder_StopwordsOnlyIsZero(t *testing.T) {
	t.Parallel()
	vecs, err := NewTFIDFEmbedder().Embed(context.Background(), []string{"the and of", "real content here"})
	require.NoError(t, err)
	for _, x := range vecs[0] {
		assert.Zero(t, x)
	}

	_, err = NewTFIDFEmbedder().Embed(context.Background(), []string{"the", "and"})
	require.Error(t, err)
}

// countingEmbedder records the size of every call it receives.
type countingEmbedder struct {
	mu    sync.Mutex
	sizes []int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.sizes = append(c.sizes, len(texts))
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s))}
	}
	return out, nil
}

func TestBatched_SplitsAndPreservesOrder(t *testing.T) {
	t.Parallel()
	inner := &countingEmbedder{}
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	got, err := NewBatched(inner, 0, 2).Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, inner.sizes)
	assert.Equal(t, [][]float32{{1}, {2}, {3}, {4}, {5}}, got)
}

func TestBatched_SingleBatchPassthrough(t *testing.T) {
	t.Parallel()
	inner := &countingEmbedder{}
	_, err := NewBatched(inner, 1000, 100).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, inner.sizes)
}

func TestBatched_PropagatesError(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("down")
	_, err := NewBatched(&countingEmbedder{err: sentinel}, 0, 1).Embed(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, sentinel)
}

func TestLimited_HonoursCancellation(t *testing.T) {
	t.Parallel()
	l := NewLimited(&countingEmbedder{}, 0.001)
	_, err := l.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Embed(ctx, []string{"b"})
	require.Error(t, err)
}

func TestTimed_Observes(t *testing.T) {
	t.Parallel()
	var calls int
	var lastErr error
	sentinel := errors.New("x")
	timed := NewTimed(&countingEmbedder{err: sentinel}, func(d time.Duration, err error) {
		calls++
		lastErr = err
		assert.GreaterOrEqual(t, d, time.Duration(0))
	})
	_, _ = timed.Embed(context.Background(), []string{"a"})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, lastErr, sentinel)
}

func TestNameOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "tfidf", NameOf(NewBatched(NewTFIDFEmbedder(), 0, 0)))
	assert.Equal(t, "embedder", NameOf(&countingEmbedder{}))
}

func TestTraced_ReportsStartAndEnd(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var events []string
	var texts []string

	handler := callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "start:"+info.Name)
			if in := embedding.ConvCallbackInput(input); in != nil {
				texts = in.Texts
			}
			return ctx
		}).
		OnEndFn(func(ctx context.Context, _ *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			mu.Lock()
			defer mu.Unlock()
			out := embedding.ConvCallbackOutput(output)
			if out != nil && out.TokenUsage != nil {
				events = append(events, "end")
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, _ *callbacks.RunInfo, _ error) context.Context {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "error")
			return ctx
		}).
		Build()

	traced := NewTraced(NewTFIDFEmbedder(), handler)
	_, err := traced.Embed(context.Background(), []string{"hello world", "world peace"})
	require.NoError(t, err)
	assert.Equal(t, []string{"start:tfidf", "end"}, events)
	assert.Equal(t, []string{"hello world", "world peace"}, texts)

	events = nil
	failing := NewTraced(&countingEmbedder{err: errors.New("x")}, handler)
	_, err = failing.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, []string{"start:embedder", "error"}, events)
}

func TestNewTraced_NilHandler(t *testing.T) {
	t.Parallel()
	inner := NewTFIDFEmbedder()
	assert.Same(t, inner, NewTraced(inner, nil))
}

func TestNewFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, e rank.Embedder)
	}{
		{
			name: "default ollama",
			env:  map[string]string{},
			check: func(t *testing.T, e rank.Embedder) {
				assert.IsType(t, &Batched{}, e)
				assert.Equal(t, "ollama/all-minilm", NameOf(e))
			},
		},
		{
			name: "tfidf is not batched",
			env:  map[string]string{"EMBEDDING_PROVIDER": "TFIDF"},
			check: func(t *testing.T, e rank.Embedder) {
				assert.IsType(t, &TFIDFEmbedder{}, e)
			},
		},
		{
			name: "rate limited openai",
			env:  map[string]string{"EMBEDDING_PROVIDER": "openai", "OPENAI_API_KEY": "sk", "EMBEDDING_RPS": "2"},
			check: func(t *testing.T, e rank.Embedder) {
				b, ok := e.(*Batched)
				require.True(t, ok)
				assert.IsType(t, &Limited{}, b.inner)
				assert.Equal(t, "openai/text-embedding-3-small", NameOf(e))
			},
		},
		{name: "openai without key", env: map[string]string{"EMBEDDING_PROVIDER": "openai"}, wantErr: "OPENAI_API_KEY"},
		{name: "azure without endpoint", env: map[string]string{"EMBEDDING_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k"}, wantErr: "AZURE_OPENAI_ENDPOINT"},
		{name: "unknown", env: map[string]string{"EMBEDDING_PROVIDER": "bert"}, wantErr: "unknown backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{
				"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT",
				"EMBEDDING_RPS", "OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_HOST",
			} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			e, err := NewFromEnv()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "llama3:8b")
	t.Setenv("EMBEDDING_RPS", "")

	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))
	require.NoError(t, Validate(log))
	assert.Contains(t, buf.String(), "looks like a chat model")

	t.Setenv("EMBEDDING_PROVIDER", "azure")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	require.Error(t, Validate(log))

	t.Setenv("EMBEDDING_PROVIDER", "nope")
	require.Error(t, Validate(log))
}
