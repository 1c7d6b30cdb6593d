// Package rank scores extracted text blocks against a goal statement by
// embedding similarity. The goal and every block of a collection are embedded
// together so their vectors share one space, loaded into a per-collection
// VectorStore and searched with the goal vector.
package rank

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/54b3r/docrank/internal/extract"
)

const (
	// DefaultTopK is the number of results kept per collection.
	DefaultTopK = 5

	// DefaultTitleChars is the rune length of a section title before the
	// ellipsis.
	DefaultTitleChars = 70
)

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their embeddings. The returned
	// slice is parallel to texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Ranked is one block selected for the report.
type Ranked struct {
	extract.Block

	// Rank is the 1-based importance rank within the collection.
	Rank int

	// Score is the cosine similarity between the block and the goal.
	Score float32

	// SectionTitle is the truncated block text shown in extracted_sections.
	SectionTitle string
}

// Ranker selects the blocks most relevant to a goal statement.
type Ranker struct {
	// embedder converts the goal and the blocks to vectors.
	embedder Embedder

	// stores opens one vector store per Rank call.
	stores StoreFactory

	// titleChars bounds SectionTitle.
	titleChars int
}

// NewRanker constructs a Ranker. titleChars <= 0 selects DefaultTitleChars.
func NewRanker(embedder Embedder, stores StoreFactory, titleChars int) (*Ranker, error) {
	if embedder == nil {
		return nil, errors.New("rank: embedder must not be nil")
	}
	if stores == nil {
		return nil, errors.New("rank: store factory must not be nil")
	}
	if titleChars <= 0 {
		titleChars = DefaultTitleChars
	}
	return &Ranker{embedder: embedder, stores: stores, titleChars: titleChars}, nil
}

// Rank returns the top min(k, len(blocks)) blocks by similarity to goal, in
// descending order. Zero blocks return an empty slice without calling the
// embedder. k <= 0 selects DefaultTopK.
func (r *Ranker) Rank(ctx context.Context, goal string, blocks []extract.Block, k int) ([]Ranked, error) {
	if len(blocks) == 0 {
		return []Ranked{}, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}
	k = min(k, len(blocks))

	texts := make([]string, 0, len(blocks)+1)
	texts = append(texts, goal)
	for _, b := range blocks {
		texts = append(texts, b.Text)
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("rank: embedding failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("rank: embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("rank: embedder returned empty vectors")
	}

	store, err := r.stores.NewStore(ctx, dim)
	if err != nil {
		return nil, fmt.Errorf("rank: open vector store: %w", err)
	}
	defer store.Close()

	if err := store.Upsert(ctx, vectors[1:]); err != nil {
		return nil, fmt.Errorf("rank: store vectors: %w", err)
	}

	matches, err := store.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("rank: search: %w", err)
	}

	out := make([]Ranked, 0, len(matches))
	for i, m := range matches {
		if m.Index < 0 || m.Index >= len(blocks) {
			return nil, fmt.Errorf("rank: store returned unknown index %d", m.Index)
		}
		b := blocks[m.Index]
		out = append(out, Ranked{
			Block:        b,
			Rank:         i + 1,
			Score:        m.Score,
			SectionTitle: SectionTitle(b.Text, r.titleChars),
		})
	}
	return out, nil
}

// SectionTitle returns the first n runes of text followed by "...". The
// ellipsis is appended even when text is shorter than n.
func SectionTitle(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text + "..."
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
