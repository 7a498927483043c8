package chromemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learning-assistant/internal/models"
	"learning-assistant/internal/retrieval"
)

const testCollection = "test_knowledge"

func newTestManager(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	require.NoError(t, m.EnsureCollection(context.Background(), testCollection, 3, models.DistanceCosine))
	return m
}

func point(id, doc string, vec ...float32) models.Point {
	return models.Point{
		ID:         id,
		Vector:     vec,
		Text:       "text " + id,
		Metadata:   models.Metadata{models.MetaSource: doc + ".pdf"},
		DocumentID: doc,
	}
}

func TestEnsureCollection(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	assert.NoError(t, m.EnsureCollection(ctx, testCollection, 3, models.DistanceCosine), "second call is a no-op")
	assert.ErrorIs(t, m.EnsureCollection(ctx, testCollection, 4, models.DistanceCosine), retrieval.ErrDimensionMismatch)
	assert.ErrorIs(t, m.EnsureCollection(ctx, "other", 3, models.Distance("dot")), retrieval.ErrUnsupportedMetric)
}

func TestUnknownCollection(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Query(ctx, "missing", []float32{1, 0, 0}, 1, 0, nil)
	assert.ErrorIs(t, err, retrieval.ErrCollectionNotFound)
	_, err = m.Stats(ctx, "missing")
	assert.ErrorIs(t, err, retrieval.ErrCollectionNotFound)
}

func TestUpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.Upsert(ctx, testCollection, []models.Point{
		point("a", "doc-1", 1, 0, 0),
		point("b", "doc-1", 0.9, 0.1, 0),
		point("c", "doc-2", 0, 1, 0),
	}))

	stats, err := m.Stats(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.PointCount)
	assert.Equal(t, models.StatusGreen, stats.Status)

	// limit above the collection size is clamped
	hits, err := m.Query(ctx, testCollection, []float32{1, 0, 0}, 10, 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, "doc-1", hits[0].DocumentID)

	hits, err = m.Query(ctx, testCollection, []float32{1, 0, 0}, 10, 0.5, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "orthogonal chunk is below the threshold")

	hits, err = m.Query(ctx, testCollection, []float32{1, 0, 0}, 10, 0, map[string]string{models.MetaDocumentID: "doc-2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].ID)

	require.NoError(t, m.DeleteDocument(ctx, testCollection, "doc-1"))
	require.NoError(t, m.DeleteDocument(ctx, testCollection, "doc-1"), "deleting twice succeeds")

	hits, err = m.Query(ctx, testCollection, []float32{1, 0, 0}, 10, 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-2", hits[0].DocumentID)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	m := newTestManager(t)
	err := m.Upsert(context.Background(), testCollection, []models.Point{point("a", "doc-1", 1, 0)})
	assert.ErrorIs(t, err, retrieval.ErrDimensionMismatch)
}

func TestQueryEmptyCollection(t *testing.T) {
	m := newTestManager(t)
	hits, err := m.Query(context.Background(), testCollection, []float32{1, 0, 0}, 5, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := "0123456789abcdef0123456789abcdef"

	src, err := NewVectorDBManager(dir, true, false, key)
	require.NoError(t, err)
	require.NoError(t, src.EnsureCollection(ctx, testCollection, 3, models.DistanceCosine))
	require.NoError(t, src.Upsert(ctx, testCollection, []models.Point{point("a", "doc-1", 1, 0, 0)}))

	path, err := src.Export(ctx, testCollection)
	require.NoError(t, err)
	assert.FileExists(t, path)

	dst, err := NewVectorDBManager(dir, true, false, key)
	require.NoError(t, err)
	require.NoError(t, dst.Import(ctx, testCollection, path))
	require.NoError(t, dst.EnsureCollection(ctx, testCollection, 3, models.DistanceCosine))

	stats, err := dst.Stats(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PointCount)
}

func TestExportRequiresKey(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Export(context.Background(), testCollection)
	assert.Error(t, err)
}

func TestEnsureCollection_ReopenedStoreKeepsDimension(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewVectorDBManager(dir, false, false, "")
	require.NoError(t, err)
	require.NoError(t, first.EnsureCollection(ctx, testCollection, 3, models.DistanceCosine))
	require.NoError(t, first.Upsert(ctx, testCollection, []models.Point{point("a", "doc-1", 1, 0, 0)}))

	reopened, err := NewVectorDBManager(dir, false, false, "")
	require.NoError(t, err)
	err = reopened.EnsureCollection(ctx, testCollection, 4, models.DistanceCosine)
	assert.ErrorIs(t, err, retrieval.ErrDimensionMismatch)

	err = reopened.Upsert(ctx, testCollection, []models.Point{point("b", "doc-1", 1, 0, 0, 0)})
	assert.ErrorIs(t, err, retrieval.ErrCollectionNotFound, "a rejected collection stays unusable")

	require.NoError(t, reopened.EnsureCollection(ctx, testCollection, 3, models.DistanceCosine))
	hits, err := reopened.Query(ctx, testCollection, []float32{1, 0, 0}, 5, 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestImport_RejectsOtherDimension(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := "0123456789abcdef0123456789abcdef"

	src, err := NewVectorDBManager(dir, true, false, key)
	require.NoError(t, err)
	require.NoError(t, src.EnsureCollection(ctx, testCollection, 3, models.DistanceCosine))
	require.NoError(t, src.Upsert(ctx, testCollection, []models.Point{point("a", "doc-1", 1, 0, 0)}))
	path, err := src.Export(ctx, testCollection)
	require.NoError(t, err)

	dst, err := NewVectorDBManager(dir, true, false, key)
	require.NoError(t, err)
	require.NoError(t, dst.EnsureCollection(ctx, testCollection, 4, models.DistanceCosine))

	err = dst.Import(ctx, testCollection, path)
	assert.ErrorIs(t, err, retrieval.ErrDimensionMismatch)

	stats, err := dst.Stats(ctx, testCollection)
	require.NoError(t, err)
	assert.Zero(t, stats.PointCount, "live collection is untouched")
}
