package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls     int
	lastTexts []string
	results   map[string]Result
	model     string
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	f.calls++
	f.lastTexts = texts
	out := make([]Result, len(texts))
	for i, t := range texts {
		if r, ok := f.results[t]; ok {
			out[i] = r
			continue
		}
		out[i] = Result{Vector: []float32{1, 2, 3}, Model: f.model}
	}
	return out, nil
}
func (f *fakeEmbedder) Dimensions() int                    { return 3 }
func (f *fakeEmbedder) ModelName() string                  { return f.model }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                       { return nil }

func TestCachedEmbedBatch_CachesRepeatedText(t *testing.T) {
	inner := &fakeEmbedder{model: "m", results: map[string]Result{}}
	c := NewCached(inner, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	_, err = c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedBatch_OnlyMissesAreRequested(t *testing.T) {
	inner := &fakeEmbedder{model: "m", results: map[string]Result{}}
	c := NewCached(inner, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"a"})
	require.NoError(t, err)

	var seen []string
	inner.results["b"] = Result{Vector: []float32{9}, Model: "m"}
	results, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	seen = inner.lastTexts
	assert.Equal(t, []string{"b"}, seen)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, []float32{9}, results[1].Vector)
}

func TestCachedEmbedBatch_DoesNotCacheRejectedResult(t *testing.T) {
	inner := &fakeEmbedder{model: "m", results: map[string]Result{
		"bad": {Vector: []float32{1}, Model: ""},
	}}
	c := NewCached(inner, 10)

	_, err := c.EmbedBatch(context.Background(), []string{"bad"})
	require.NoError(t, err)
	_, err = c.EmbedBatch(context.Background(), []string{"bad"})
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedBatch_EmptyInput(t *testing.T) {
	inner := &fakeEmbedder{model: "m"}
	c := NewCached(inner, 10)
	results, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 0, inner.calls)
}
