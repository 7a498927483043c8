package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learning-assistant/internal/chromemdb"
	"learning-assistant/internal/models"
	"learning-assistant/internal/retrieval"
)

const dim = 8

// hashEmbedder maps every word to one of dim buckets, so texts sharing words
// get similar vectors and identical texts get identical ones.
type hashEmbedder struct {
	err error
}

func (h hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	v := make([]float32, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[f.Sum32()%dim]++
	}
	v[dim-1] += 0.01
	return v, nil
}

func (h hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := h.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func newEngine(t *testing.T, emb retrieval.Embedder) *retrieval.Engine {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	return retrieval.New(store, emb, retrieval.Options{Collection: "kb", Dimension: dim})
}

func metas(n int, source string) []models.Metadata {
	out := make([]models.Metadata, n)
	for i := range out {
		out[i] = models.Metadata{models.MetaSource: source, models.MetaPage: fmt.Sprint(i + 1)}
	}
	return out
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, hashEmbedder{})

	require.NoError(t, e.EnsureCollection(ctx, "kb", dim, models.DistanceCosine))
	require.NoError(t, e.EnsureCollection(ctx, "kb", dim, models.DistanceCosine))

	assert.ErrorIs(t, e.EnsureCollection(ctx, "kb", dim, models.Distance("euclid")), retrieval.ErrUnsupportedMetric)
}

func TestUpsertChunks_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, hashEmbedder{})

	texts := []string{
		"photosynthesis converts light into chemical energy",
		"the mitochondria is the powerhouse of the cell",
		"rivers flow downhill into the sea",
	}
	ms := metas(len(texts), "biology.pdf")

	n, err := e.UpsertChunks(ctx, texts, ms, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, ok := ms[0][models.MetaDocumentID]
	assert.False(t, ok, "caller metadata is not mutated")

	results := e.SimilaritySearch(ctx, "anything", 3, 0, nil)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "doc-1", r.Metadata[models.MetaDocumentID])
		assert.Equal(t, "biology.pdf", r.Metadata[models.MetaSource])
	}

	results = e.SimilaritySearch(ctx, "the mitochondria is the powerhouse of the cell", 1, 0.9, nil)
	require.Len(t, results, 1)
	assert.Equal(t, texts[1], results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestSimilaritySearch_OrderingAndBounds(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, hashEmbedder{})

	texts := []string{"alpha beta gamma", "alpha beta", "alpha", "delta epsilon"}
	_, err := e.UpsertChunks(ctx, texts, metas(len(texts), "greek.txt"), "doc-1")
	require.NoError(t, err)

	results := e.SimilaritySearch(ctx, "alpha beta gamma", 3, 0, nil)
	require.LessOrEqual(t, len(results), 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	for _, r := range e.SimilaritySearch(ctx, "alpha", 10, 0.5, nil) {
		assert.GreaterOrEqual(t, r.Score, float32(0.5))
	}

	assert.Empty(t, e.SimilaritySearch(ctx, "alpha", 0, 0, nil))
	assert.Empty(t, e.SimilaritySearch(ctx, "alpha", -1, 0, nil))
}

func TestSimilaritySearch_Filter(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, hashEmbedder{})

	_, err := e.UpsertChunks(ctx, []string{"fractions and decimals"}, metas(1, "math.pdf"), "doc-math")
	require.NoError(t, err)
	_, err = e.UpsertChunks(ctx, []string{"fractions of history"}, metas(1, "history.pdf"), "doc-history")
	require.NoError(t, err)

	results := e.SimilaritySearch(ctx, "fractions", 5, 0, map[string]string{models.MetaDocumentID: "doc-history"})
	require.Len(t, results, 1)
	assert.Equal(t, "history.pdf", results[0].Metadata[models.MetaSource])
}

func TestDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, hashEmbedder{})

	_, err := e.UpsertChunks(ctx, []string{"one", "two"}, metas(2, "a.txt"), "doc-a")
	require.NoError(t, err)
	_, err = e.UpsertChunks(ctx, []string{"three"}, metas(1, "b.txt"), "doc-b")
	require.NoError(t, err)

	assert.True(t, e.DeleteByDocument(ctx, "doc-a"))
	assert.True(t, e.DeleteByDocument(ctx, "never-ingested"))

	results := e.SimilaritySearch(ctx, "one two three", 10, 0, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-b", results[0].Metadata[models.MetaDocumentID])

	assert.Empty(t, e.SimilaritySearch(ctx, "one", 10, 0, map[string]string{models.MetaDocumentID: "doc-a"}))
}

func TestUpsertChunks_Errors(t *testing.T) {
	ctx := context.Background()

	e := newEngine(t, hashEmbedder{})
	_, err := e.UpsertChunks(ctx, []string{"a", "b"}, metas(1, "x"), "doc")
	assert.ErrorIs(t, err, retrieval.ErrLengthMismatch)

	n, err := e.UpsertChunks(ctx, nil, nil, "doc")
	require.NoError(t, err)
	assert.Zero(t, n)

	failing := newEngine(t, hashEmbedder{err: errors.New("provider down")})
	_, err = failing.UpsertChunks(ctx, []string{"a"}, metas(1, "x"), "doc")
	assert.ErrorContains(t, err, "provider down")
}

func TestSimilaritySearch_EmbedFailureIsEmpty(t *testing.T) {
	e := newEngine(t, hashEmbedder{err: errors.New("provider down")})
	results := e.SimilaritySearch(context.Background(), "anything", 5, 0, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestCollectionStats(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, hashEmbedder{})

	_, err := e.UpsertChunks(ctx, []string{"a", "b"}, metas(2, "x"), "doc")
	require.NoError(t, err)

	stats := e.CollectionStats(ctx)
	assert.Equal(t, "kb", stats.Name)
	assert.Equal(t, 2, stats.PointCount)
	assert.Equal(t, models.StatusGreen, stats.Status)
}

func TestCollectionStats_InitFailure(t *testing.T) {
	store, err := chromemdb.NewVectorDBManager("", true, false, "")
	require.NoError(t, err)
	e := retrieval.New(store, hashEmbedder{}, retrieval.Options{Collection: "kb", Dimension: 0})

	stats := e.CollectionStats(context.Background())
	assert.Equal(t, models.StatusError, stats.Status)
	assert.NotEmpty(t, stats.Error)
}

func TestConcurrentUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, hashEmbedder{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc-%d", i%2)
			_, err := e.UpsertChunks(ctx, []string{fmt.Sprintf("chunk %d", i)}, metas(1, "c.txt"), doc)
			assert.NoError(t, err)
			_ = e.SimilaritySearch(ctx, "chunk", 3, 0, nil)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, e.CollectionStats(ctx).PointCount)
}
