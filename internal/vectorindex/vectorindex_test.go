package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(vals ...float32) []float32 { return vals }

func TestAdd_AssignsSequentialIDs(t *testing.T) {
	idx := New(DefaultConfig(3))
	defer idx.Close()

	id0, err := idx.Add(context.Background(), vec(1, 0, 0))
	require.NoError(t, err)
	id1, err := idx.Add(context.Background(), vec(0, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, int64(0), id0)
	assert.Equal(t, int64(1), id1)
}

func TestAdd_RejectsWrongDimensions(t *testing.T) {
	idx := New(DefaultConfig(3))
	defer idx.Close()

	_, err := idx.Add(context.Background(), vec(1, 0))
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)
}

func TestSearch_ReturnsNearestFirst(t *testing.T) {
	idx := New(DefaultConfig(2))
	defer idx.Close()
	ctx := context.Background()

	closeID, err := idx.Add(ctx, vec(1, 0))
	require.NoError(t, err)
	_, err = idx.Add(ctx, vec(-1, 0))
	require.NoError(t, err)

	results, err := idx.Search(ctx, vec(0.9, 0.1), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, closeID, results[0].VectorID)
}

func TestSearch_EmptyIndexReturnsNoResults(t *testing.T) {
	idx := New(DefaultConfig(2))
	defer idx.Close()

	results, err := idx.Search(context.Background(), vec(1, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete_ExcludesFromSearch(t *testing.T) {
	idx := New(DefaultConfig(2))
	defer idx.Close()
	ctx := context.Background()

	id0, err := idx.Add(ctx, vec(1, 0))
	require.NoError(t, err)
	id1, err := idx.Add(ctx, vec(0.9, 0.1))
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, []int64{id0}))

	results, err := idx.Search(ctx, vec(1, 0), 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, id0, r.VectorID)
	}
	assert.Contains(t, idsOf(results), id1)
}

func TestStats_TracksOrphansAfterDelete(t *testing.T) {
	idx := New(DefaultConfig(2))
	defer idx.Close()
	ctx := context.Background()

	id0, err := idx.Add(ctx, vec(1, 0))
	require.NoError(t, err)
	_, err = idx.Add(ctx, vec(0, 1))
	require.NoError(t, err)
	require.NoError(t, idx.Delete(ctx, []int64{id0}))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
}

func TestSaveLoad_RoundTripsGraphAndBookkeeping(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	ctx := context.Background()

	idx := New(DefaultConfig(2))
	id0, err := idx.Add(ctx, vec(1, 0))
	require.NoError(t, err)
	_, err = idx.Add(ctx, vec(0, 1))
	require.NoError(t, err)
	require.NoError(t, idx.Delete(ctx, []int64{id0}))
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	reloaded, err := Load(path)
	require.NoError(t, err)
	defer reloaded.Close()

	assert.Equal(t, 2, reloaded.Len())
	stats := reloaded.Stats()
	assert.Equal(t, 1, stats.Orphans)

	results, err := reloaded.Search(ctx, vec(0, 1), 5)
	require.NoError(t, err)
	assert.NotContains(t, idsOf(results), id0)
}

func TestDimensions_ReadsWithoutLoadingGraph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	idx := New(DefaultConfig(5))
	_, err := idx.Add(context.Background(), vec(1, 2, 3, 4, 5))
	require.NoError(t, err)
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	dims, err := Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 5, dims)
}

func TestDimensions_ZeroWhenMissing(t *testing.T) {
	dims, err := Dimensions(filepath.Join(t.TempDir(), "absent.hnsw"))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}

func TestOperations_FailAfterClose(t *testing.T) {
	idx := New(DefaultConfig(2))
	require.NoError(t, idx.Close())

	_, err := idx.Add(context.Background(), vec(1, 0))
	assert.ErrorIs(t, err, ErrClosed)
}

func idsOf(results []Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.VectorID
	}
	return out
}
