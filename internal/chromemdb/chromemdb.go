package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"learning-assistant/internal/models"
	"learning-assistant/internal/retrieval"
)

var _ retrieval.Store = (*VectorDBManager)(nil)

const (
	metaDimension = "dimension"
	metaDistance  = "distance"
)

var errNoEmbedding = errors.New("chunks must be embedded before they are stored")

// errVectorLength is the message chromem reports when a query and a stored
// vector differ in length.
const errVectorLength = "vectors must have the same length"

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	dbPath        string
	compress      bool
	encryptionKey string

	mu   sync.RWMutex
	dims map[string]int
}

// NewVectorDBManager opens a persistent database under dbPath, or an
// in-memory one when inMemory is set.
func NewVectorDBManager(dbPath string, inMemory, compress bool, encryptionKey string) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	return &VectorDBManager{
		db:            db,
		dbPath:        dbPath,
		compress:      compress,
		encryptionKey: encryptionKey,
		dims:          make(map[string]int),
	}, nil
}

// precomputed is handed to chromem so it never falls back to its default
// OpenAI embedder; the engine always supplies vectors.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// EnsureCollection gets or creates the collection and records its dimension.
// A collection reopened from disk must already hold vectors of dim components.
func (m *VectorDBManager) EnsureCollection(ctx context.Context, name string, dim int, metric models.Distance) error {
	if metric != models.DistanceCosine {
		return fmt.Errorf("%w: %q", retrieval.ErrUnsupportedMetric, metric)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if known, ok := m.dims[name]; ok {
		if known != dim {
			return fmt.Errorf("%w: collection %s has %d, want %d", retrieval.ErrDimensionMismatch, name, known, dim)
		}
		return nil
	}

	meta := map[string]string{
		metaDimension: strconv.Itoa(dim),
		metaDistance:  string(metric),
	}
	c, err := m.db.GetOrCreateCollection(name, meta, precomputed)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	if err := checkDimension(ctx, c, dim); err != nil {
		return fmt.Errorf("collection %s: %w", name, err)
	}
	m.dims[name] = dim
	return nil
}

// checkDimension verifies that every stored vector has dim components.
// chromem keeps collection metadata private, so the stored vectors are the
// source of truth: a one-result query with a unit vector of the wanted size
// fails if any of them differs.
func checkDimension(ctx context.Context, c *chromem.Collection, dim int) error {
	if dim < 1 {
		return fmt.Errorf("%w: dimension %d", retrieval.ErrDimensionMismatch, dim)
	}
	if c.Count() == 0 {
		return nil
	}
	unit := make([]float32, dim)
	unit[0] = 1
	if _, err := c.QueryEmbedding(ctx, unit, 1, nil, nil); err != nil {
		if strings.Contains(err.Error(), errVectorLength) {
			return fmt.Errorf("%w: stored vectors are not %d-dimensional", retrieval.ErrDimensionMismatch, dim)
		}
		return fmt.Errorf("failed to check stored vectors: %w", err)
	}
	return nil
}

func (m *VectorDBManager) collection(name string) (*chromem.Collection, int, error) {
	m.mu.RLock()
	dim, ok := m.dims[name]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", retrieval.ErrCollectionNotFound, name)
	}
	c := m.db.GetCollection(name, precomputed)
	if c == nil {
		return nil, 0, fmt.Errorf("%w: %s", retrieval.ErrCollectionNotFound, name)
	}
	return c, dim, nil
}

// Upsert adds documents; chromem replaces documents that reuse an id.
func (m *VectorDBManager) Upsert(ctx context.Context, collection string, points []models.Point) error {
	c, dim, err := m.collection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has %d, want %d", retrieval.ErrDimensionMismatch, p.ID, len(p.Vector), dim)
		}
		meta := map[string]string(p.Metadata.Copy())
		if p.DocumentID != "" {
			meta[models.MetaDocumentID] = p.DocumentID
		}
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Content:   p.Text,
			Metadata:  meta,
			Embedding: p.Vector,
		})
	}

	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query runs a filtered nearest neighbour search. chromem refuses a result
// count above the collection size, so limit is clamped first.
func (m *VectorDBManager) Query(ctx context.Context, collection string, vector []float32, limit int, minScore float32, filter map[string]string) ([]models.ScoredPoint, error) {
	c, dim, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", retrieval.ErrDimensionMismatch, len(vector), dim)
	}

	n := min(limit, c.Count())
	if n <= 0 {
		return []models.ScoredPoint{}, nil
	}

	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}

	results, err := c.QueryEmbedding(ctx, normalize(vector), n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.ScoredPoint, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		hits = append(hits, models.ScoredPoint{
			Point: models.Point{
				ID:         r.ID,
				Vector:     r.Embedding,
				Text:       r.Content,
				Metadata:   models.Metadata(r.Metadata),
				DocumentID: r.Metadata[models.MetaDocumentID],
			},
			Score: r.Similarity,
		})
	}
	return hits, nil
}

// DeleteDocument removes every document whose document_id matches.
func (m *VectorDBManager) DeleteDocument(ctx context.Context, collection, documentID string) error {
	c, _, err := m.collection(collection)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, map[string]string{models.MetaDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

func (m *VectorDBManager) Stats(_ context.Context, collection string) (models.CollectionStats, error) {
	c, _, err := m.collection(collection)
	if err != nil {
		return models.CollectionStats{}, err
	}
	count := c.Count()
	return models.CollectionStats{
		Name:        collection,
		VectorCount: count,
		PointCount:  count,
		Status:      models.StatusGreen,
	}, nil
}

// Close is a no-op; persistent chromem databases write through on every change.
func (m *VectorDBManager) Close() error {
	return nil
}

// Export writes the collection to <dbPath>/<collection>.chromem, encrypted
// with the configured key.
func (m *VectorDBManager) Export(ctx context.Context, collection string) (string, error) {
	if m.encryptionKey == "" {
		return "", fmt.Errorf("encryption key is required")
	}
	if _, _, err := m.collection(collection); err != nil {
		return "", err
	}
	if m.dbPath == "" {
		return "", fmt.Errorf("db path is required")
	}

	filePath := m.exportPath(collection)
	log.Ctx(ctx).Debug().Str("collection", collection).Str("file", filePath).Bool("compress", m.compress).Msg("Exporting collection")

	if err := m.db.ExportToFile(filePath, m.compress, m.encryptionKey, collection); err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return filePath, nil
}

// Import loads a file written by Export into the collection. The snapshot is
// read into a scratch database first, so a snapshot whose vectors do not
// match the collection's dimension leaves the live data untouched.
func (m *VectorDBManager) Import(ctx context.Context, collection, filePath string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if filePath == "" {
		filePath = m.exportPath(collection)
	}
	log.Ctx(ctx).Debug().Str("collection", collection).Str("file", filePath).Msg("Importing collection")

	m.mu.RLock()
	dim, known := m.dims[collection]
	m.mu.RUnlock()

	if known {
		scratch := chromem.NewDB()
		if err := scratch.ImportFromFile(filePath, m.encryptionKey, collection); err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}
		c := scratch.GetCollection(collection, precomputed)
		if c == nil {
			return fmt.Errorf("%w: %s not in snapshot", retrieval.ErrCollectionNotFound, collection)
		}
		if err := checkDimension(ctx, c, dim); err != nil {
			return fmt.Errorf("snapshot %s: %w", filePath, err)
		}
	}

	if err := m.db.ImportFromFile(filePath, m.encryptionKey, collection); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	return nil
}

func (m *VectorDBManager) exportPath(collection string) string {
	ext := ".chromem"
	if m.compress {
		ext += ".gz"
	}
	return filepath.Join(m.dbPath, collection+ext)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
