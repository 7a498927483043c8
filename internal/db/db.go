package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"learning-assistant/internal/config"
	"learning-assistant/internal/models"
	"learning-assistant/internal/retrieval"
)

var _ retrieval.Store = (*PgVectorStore)(nil)

type Collection struct {
	bun.BaseModel `bun:"table:rag_collections,alias:rc"`
	Name          string `bun:"name,pk"`
	Dimension     int    `bun:"dimension,notnull"`
	Distance      string `bun:"distance,notnull"`
}

type Chunk struct {
	bun.BaseModel `bun:"table:rag_chunks,alias:c"`
	ID            string            `bun:"id,pk"`
	Collection    string            `bun:"collection,notnull"`
	DocumentID    string            `bun:"document_id,notnull"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector   `bun:"embedding,notnull,type:vector"`
	Score         float32           `bun:"score,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the connection pool with the configured driver; pgdriver
// unless driver is "pq".
func ConnectDB(cfg config.VectorDBConfig) (*sql.DB, error) {
	if cfg.Driver == "pq" {
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return sqldb, nil
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// PgVectorStore keeps chunks in Postgres with the pgvector extension.
type PgVectorStore struct {
	db *bun.DB

	mu   sync.RWMutex
	dims map[string]int
}

func NewPgVectorStore(db *bun.DB) *PgVectorStore {
	return &PgVectorStore{db: db, dims: make(map[string]int)}
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg config.VectorDBConfig) (*PgVectorStore, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return NewPgVectorStore(db), nil
}

// InitDB creates the extension, tables and indexes if missing.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Collection)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create collections table: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Chunk)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}
	if _, err := db.NewCreateIndex().Model((*Chunk)(nil)).Index("rag_chunks_document_idx").
		Column("collection", "document_id").IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create chunk index: %w", err)
	}
	return nil
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context, name string, dim int, metric models.Distance) error {
	if metric != models.DistanceCosine {
		return fmt.Errorf("%w: %q", retrieval.ErrUnsupportedMetric, metric)
	}
	if err := InitDB(ctx, s.db); err != nil {
		return err
	}

	row := &Collection{Name: name, Dimension: dim, Distance: string(metric)}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (name) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("failed to register collection %s: %w", name, err)
	}

	existing := new(Collection)
	if err := s.db.NewSelect().Model(existing).Where("name = ?", name).Scan(ctx); err != nil {
		return fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	if existing.Dimension != dim {
		return fmt.Errorf("%w: collection %s has %d, want %d", retrieval.ErrDimensionMismatch, name, existing.Dimension, dim)
	}
	if existing.Distance != string(metric) {
		return fmt.Errorf("%w: collection %s uses %s", retrieval.ErrUnsupportedMetric, name, existing.Distance)
	}

	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	return nil
}

func (s *PgVectorStore) dimension(collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dim, ok := s.dims[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", retrieval.ErrCollectionNotFound, collection)
	}
	return dim, nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, collection string, points []models.Point) error {
	dim, err := s.dimension(collection)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	rows := make([]Chunk, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has %d, want %d", retrieval.ErrDimensionMismatch, p.ID, len(p.Vector), dim)
		}
		rows = append(rows, Chunk{
			ID:         p.ID,
			Collection: collection,
			DocumentID: p.DocumentID,
			Content:    p.Text,
			Metadata:   p.Metadata,
			Embedding:  pgvector.NewVector(p.Vector),
		})
	}

	_, err = s.db.NewInsert().Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("metadata = EXCLUDED.metadata").
		Set("embedding = EXCLUDED.embedding").
		Set("document_id = EXCLUDED.document_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// buildQuery scores by cosine similarity and keeps only rows matching every
// filter pair on the jsonb metadata.
func buildQuery(db *bun.DB, dest *[]Chunk, collection string, vector []float32, limit int, minScore float32, filter map[string]string) *bun.SelectQuery {
	vec := pgvector.NewVector(vector)
	q := db.NewSelect().Model(dest).
		Column("id", "document_id", "content", "metadata", "embedding").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		Where("collection = ?", collection).
		Where("1 - (embedding <=> ?) >= ?", vec, minScore)

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q = q.Where("metadata ->> ? = ?", k, filter[k])
	}

	return q.OrderExpr("embedding <=> ?", vec).Limit(limit)
}

func (s *PgVectorStore) Query(ctx context.Context, collection string, vector []float32, limit int, minScore float32, filter map[string]string) ([]models.ScoredPoint, error) {
	dim, err := s.dimension(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", retrieval.ErrDimensionMismatch, len(vector), dim)
	}
	if limit <= 0 {
		return []models.ScoredPoint{}, nil
	}

	var rows []Chunk
	if err := buildQuery(s.db, &rows, collection, vector, limit, minScore, filter).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	hits := make([]models.ScoredPoint, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, models.ScoredPoint{
			Point: models.Point{
				ID:         r.ID,
				Vector:     r.Embedding.Slice(),
				Text:       r.Content,
				Metadata:   models.Metadata(r.Metadata),
				DocumentID: r.DocumentID,
			},
			Score: r.Score,
		})
	}
	return hits, nil
}

func (s *PgVectorStore) DeleteDocument(ctx context.Context, collection, documentID string) error {
	if _, err := s.dimension(collection); err != nil {
		return err
	}
	res, err := s.db.NewDelete().Model((*Chunk)(nil)).
		Where("collection = ?", collection).
		Where("document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		log.Ctx(ctx).Debug().Str("document_id", documentID).Int64("rows", n).Msg("Deleted chunks")
	}
	return nil
}

func (s *PgVectorStore) Stats(ctx context.Context, collection string) (models.CollectionStats, error) {
	if _, err := s.dimension(collection); err != nil {
		return models.CollectionStats{}, err
	}
	count, err := s.db.NewSelect().Model((*Chunk)(nil)).Where("collection = ?", collection).Count(ctx)
	if err != nil {
		return models.CollectionStats{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	return models.CollectionStats{
		Name:        collection,
		VectorCount: count,
		PointCount:  count,
		Status:      models.StatusGreen,
	}, nil
}

func (s *PgVectorStore) Close() error {
	return s.db.Close()
}
