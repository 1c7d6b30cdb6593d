package rank

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// collectionPrefix names the throwaway collections created per Rank call.
const collectionPrefix = "docrank-"

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantFactory opens a temporary Qdrant collection per store. One gRPC
// client is shared by every store it opens.
type QdrantFactory struct {
	client *qdrant.Client
}

// NewQdrantFactory connects to Qdrant. The connection is lazy; errors from an
// unreachable server surface on the first NewStore call.
func NewQdrantFactory(cfg *QdrantConfig) (*QdrantFactory, error) {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &QdrantFactory{client: client}, nil
}

// NewStore creates a cosine-distance collection sized for dim.
func (f *QdrantFactory) NewStore(ctx context.Context, dim int) (VectorStore, error) {
	name := collectionPrefix + uuid.NewString()
	err := f.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}
	return &QdrantStore{client: f.client, collection: name}, nil
}

// Close closes the shared gRPC connection.
func (f *QdrantFactory) Close() error {
	return f.client.Close()
}

// QdrantStore is one temporary collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// Upsert stores vectors under numeric ids equal to their position.
func (s *QdrantStore) Upsert(ctx context.Context, vectors [][]float32) error {
	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for i, v := range vectors {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i)),
			Vectors: qdrant.NewVectors(v...),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search queries the collection with the goal vector.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int) ([]Match, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{Index: int(r.GetId().GetNum()), Score: r.GetScore()})
	}
	return matches, nil
}

// Close drops the temporary collection. The shared client stays open.
func (s *QdrantStore) Close() error {
	if err := s.client.DeleteCollection(context.Background(), s.collection); err != nil {
		return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.collection, err)
	}
	return nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (f *QdrantFactory) Ping(ctx context.Context) error {
	if _, err := f.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}
