package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"learning-assistant/internal/helper"
	"learning-assistant/internal/models"
)

// Options fixes the collection the engine works on.
type Options struct {
	Collection string
	Dimension  int
}

// Engine is the retrieval entry point. One Engine is built at startup and
// shared by every request.
type Engine struct {
	store    Store
	embedder Embedder
	opts     Options

	initMu      sync.Mutex
	initialized bool

	docLocks *keyedMutex
}

func New(store Store, embedder Embedder, opts Options) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		opts:     opts,
		docLocks: newKeyedMutex(),
	}
}

// Collection returns the configured collection name.
func (e *Engine) Collection() string {
	return e.opts.Collection
}

// EnsureCollection creates the named collection if absent. Calling it again
// with the same arguments is a no-op.
func (e *Engine) EnsureCollection(ctx context.Context, name string, dim int, metric models.Distance) error {
	if metric != models.DistanceCosine {
		return fmt.Errorf("%w: %q", ErrUnsupportedMetric, metric)
	}
	if dim < 1 {
		return fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}
	if err := e.store.EnsureCollection(ctx, name, dim, metric); err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", name, err)
	}
	log.Ctx(ctx).Info().Str("collection", name).Int("dimension", dim).Msg("Collection ready")
	return nil
}

// ensureReady lazily initializes the configured collection. The flag is only
// set on success so a failed attempt is retried by the next caller.
func (e *Engine) ensureReady(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.initialized {
		return nil
	}
	if err := e.EnsureCollection(ctx, e.opts.Collection, e.opts.Dimension, models.DistanceCosine); err != nil {
		return err
	}
	e.initialized = true
	return nil
}

// UpsertChunks embeds texts and stores one chunk per text under documentID.
// Writes are not transactional: a failure part way through may leave some
// chunks stored, and is always reported.
func (e *Engine) UpsertChunks(ctx context.Context, texts []string, metadatas []models.Metadata, documentID string) (int, error) {
	if len(texts) != len(metadatas) {
		return 0, fmt.Errorf("%w: %d texts, %d metadatas", ErrLengthMismatch, len(texts), len(metadatas))
	}
	if len(texts) == 0 {
		return 0, nil
	}
	if err := e.ensureReady(ctx); err != nil {
		return 0, err
	}

	unlock := e.docLocks.Lock(documentID)
	defer unlock()

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	points := make([]models.Point, 0, len(texts))
	for i, text := range texts {
		if len(vectors[i]) != e.opts.Dimension {
			return 0, fmt.Errorf("%w: chunk %d has %d, want %d", ErrDimensionMismatch, i, len(vectors[i]), e.opts.Dimension)
		}
		id, err := helper.NewPointID()
		if err != nil {
			return 0, err
		}
		meta := metadatas[i].Copy()
		meta[models.MetaDocumentID] = documentID
		points = append(points, models.Point{
			ID:         id,
			Vector:     vectors[i],
			Text:       text,
			Metadata:   meta,
			DocumentID: documentID,
		})
	}

	if err := e.store.Upsert(ctx, e.opts.Collection, points); err != nil {
		return 0, fmt.Errorf("failed to write chunks for document %s: %w", documentID, err)
	}

	log.Ctx(ctx).Info().Str("document_id", documentID).Int("chunks", len(points)).Msg("Added chunks")
	return len(points), nil
}

// SimilaritySearch returns at most k chunks scoring at least scoreThreshold,
// best first. Backend or embedding failures yield an empty result: callers
// must read empty as "no usable context".
func (e *Engine) SimilaritySearch(ctx context.Context, query string, k int, scoreThreshold float32, filter map[string]string) []models.RetrievalResult {
	logger := log.Ctx(ctx)
	if k <= 0 {
		return []models.RetrievalResult{}
	}
	if err := e.ensureReady(ctx); err != nil {
		logger.Error().Err(err).Msg("Search failed")
		return []models.RetrievalResult{}
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		logger.Error().Err(err).Msg("Search failed: could not embed query")
		return []models.RetrievalResult{}
	}

	hits, err := e.store.Query(ctx, e.opts.Collection, vector, k, scoreThreshold, filter)
	if err != nil {
		logger.Error().Err(err).Msg("Search failed")
		return []models.RetrievalResult{}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	results := make([]models.RetrievalResult, 0, min(k, len(hits)))
	for _, hit := range hits {
		if hit.Score < scoreThreshold {
			continue
		}
		results = append(results, models.RetrievalResult{
			Text:     hit.Text,
			Metadata: hit.Metadata,
			Score:    hit.Score,
		})
		if len(results) == k {
			break
		}
	}

	logger.Info().Int("results", len(results)).Str("query", truncate(query, 50)).Msg("Similarity search done")
	return results
}

// DeleteByDocument removes every chunk of documentID. Deleting a document
// that has no chunks succeeds.
func (e *Engine) DeleteByDocument(ctx context.Context, documentID string) bool {
	logger := log.Ctx(ctx)
	if err := e.ensureReady(ctx); err != nil {
		logger.Error().Err(err).Str("document_id", documentID).Msg("Failed to delete document")
		return false
	}

	unlock := e.docLocks.Lock(documentID)
	defer unlock()

	if err := e.store.DeleteDocument(ctx, e.opts.Collection, documentID); err != nil {
		logger.Error().Err(err).Str("document_id", documentID).Msg("Failed to delete document")
		return false
	}
	logger.Info().Str("document_id", documentID).Msg("Deleted all chunks for document")
	return true
}

// CollectionStats never fails; backend errors are reported in the result.
func (e *Engine) CollectionStats(ctx context.Context) models.CollectionStats {
	if err := e.ensureReady(ctx); err != nil {
		return models.CollectionStats{Name: e.opts.Collection, Status: models.StatusError, Error: err.Error()}
	}
	stats, err := e.store.Stats(ctx, e.opts.Collection)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to get stats")
		return models.CollectionStats{Name: e.opts.Collection, Status: models.StatusError, Error: err.Error()}
	}
	return stats
}

// Close releases the backend.
func (e *Engine) Close() error {
	return e.store.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
