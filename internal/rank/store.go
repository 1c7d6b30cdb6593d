package rank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Store backend names accepted by NewStoreFactory.
const (
	StoreMemory = "memory"
	StoreQdrant = "qdrant"
)

// Match is one search hit.
type Match struct {
	// Index is the position of the vector in the Upsert call.
	Index int

	// Score is the cosine similarity to the query.
	Score float32
}

// VectorStore holds the block vectors of one collection.
type VectorStore interface {
	// Upsert stores vectors; each vector's id is its position in the slice.
	Upsert(ctx context.Context, vectors [][]float32) error

	// Search returns up to topK matches in descending score order.
	Search(ctx context.Context, query []float32, topK int) ([]Match, error)

	// Close releases the store.
	Close() error
}

// StoreFactory opens a fresh VectorStore for vectors of the given dimension.
// Implementations must be safe to call from multiple goroutines.
type StoreFactory interface {
	NewStore(ctx context.Context, dim int) (VectorStore, error)
}

// NewStoreFactory returns the factory for the named backend. An empty name
// selects the in-memory store. qdrant may be nil unless backend is qdrant.
func NewStoreFactory(backend string, qdrant *QdrantConfig) (StoreFactory, error) {
	switch strings.ToLower(backend) {
	case "", StoreMemory:
		return MemoryFactory{}, nil
	case StoreQdrant:
		if qdrant == nil {
			qdrant = &QdrantConfig{}
		}
		return NewQdrantFactory(qdrant)
	default:
		return nil, fmt.Errorf("rank: unknown vector store %q — valid values: memory, qdrant", backend)
	}
}

// MemoryFactory opens MemoryStores.
type MemoryFactory struct{}

// NewStore implements StoreFactory.
func (MemoryFactory) NewStore(_ context.Context, dim int) (VectorStore, error) {
	return &MemoryStore{dim: dim}, nil
}

// MemoryStore is a brute-force cosine similarity store. Ties keep insertion
// order.
type MemoryStore struct {
	dim     int
	vectors [][]float32
}

// Upsert implements VectorStore.
func (s *MemoryStore) Upsert(_ context.Context, vectors [][]float32) error {
	for i, v := range vectors {
		if s.dim > 0 && len(v) != s.dim {
			return fmt.Errorf("rank: vector %d has dimension %d, want %d", i, len(v), s.dim)
		}
	}
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search implements VectorStore.
func (s *MemoryStore) Search(_ context.Context, query []float32, topK int) ([]Match, error) {
	if s.dim > 0 && len(query) != s.dim {
		return nil, fmt.Errorf("rank: query has dimension %d, want %d", len(query), s.dim)
	}
	matches := make([]Match, len(s.vectors))
	for i, v := range s.vectors {
		matches[i] = Match{Index: i, Score: Cosine(query, v)}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK >= 0 && topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Close implements VectorStore.
func (s *MemoryStore) Close() error {
	s.vectors = nil
	return nil
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length or with zero norm score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
