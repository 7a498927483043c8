// Package retrieval owns the private-corpus side of the assistant: it embeds
// text, writes chunks to a vector store and answers filtered similarity
// queries against it.
package retrieval

import (
	"context"
	"errors"

	"learning-assistant/internal/models"
)

var (
	ErrLengthMismatch     = errors.New("texts and metadatas must have the same length")
	ErrDimensionMismatch  = errors.New("vector dimension does not match collection")
	ErrUnsupportedMetric  = errors.New("unsupported distance metric")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Store is the vector backend. Implementations must be safe for concurrent use.
type Store interface {
	// EnsureCollection creates the collection if it does not exist. An existing
	// collection with another dimension or metric yields ErrDimensionMismatch
	// or ErrUnsupportedMetric.
	EnsureCollection(ctx context.Context, name string, dim int, metric models.Distance) error

	// Upsert writes points; it is not transactional across points.
	Upsert(ctx context.Context, collection string, points []models.Point) error

	// Query returns at most limit points whose score is >= minScore and whose
	// metadata matches every filter pair exactly, best first.
	Query(ctx context.Context, collection string, vector []float32, limit int, minScore float32, filter map[string]string) ([]models.ScoredPoint, error)

	// DeleteDocument removes every point of documentID. No match is not an error.
	DeleteDocument(ctx context.Context, collection, documentID string) error

	Stats(ctx context.Context, collection string) (models.CollectionStats, error)

	Close() error
}

// Embedder turns text into vectors. *embeddings.EmbedderImpl from langchaingo
// satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}
