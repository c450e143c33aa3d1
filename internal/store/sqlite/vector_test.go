// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/ontograph/internal/store/sqlite"
)

func newVectorStore(t *testing.T, name string) *sqlite.VectorStore {
	t.Helper()
	vs, err := sqlite.NewVectorStore(testDBPath(t, name), 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func TestVectorStore_StoreAndSearch(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, "vectors")

	require.NoError(t, vs.Store(ctx, "q1", []float32{1, 0, 0}, map[string]any{"query": "list functions"}))
	require.NoError(t, vs.Store(ctx, "q2", []float32{0, 1, 0}, map[string]any{"query": "list requirements"}))
	require.NoError(t, vs.Store(ctx, "q3", []float32{0.9, 0.1, 0}, map[string]any{"query": "show functions"}))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "q1", results[0].ID)
	assert.Equal(t, "list functions", results[0].Metadata["query"])
	assert.Equal(t, "q3", results[1].ID)
	assert.LessOrEqual(t, results[0].Score, results[1].Score)
}

func TestVectorStore_StoreUpsertReplacesMetadata(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, "vectors-upsert")

	require.NoError(t, vs.Store(ctx, "q1", []float32{1, 0, 0}, map[string]any{"graph_version": 1}))
	require.NoError(t, vs.Store(ctx, "q1", []float32{0, 1, 0}, map[string]any{"graph_version": 2}))

	results, err := vs.Search(ctx, []float32{0, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "q1", results[0].ID)
	assert.Equal(t, float64(2), results[0].Metadata["graph_version"])
}

func TestVectorStore_SearchFilters(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, "vectors-filter")

	require.NoError(t, vs.Store(ctx, "a", []float32{1, 0, 0}, map[string]any{"scope": "ws/one", "graph_version": 3}))
	require.NoError(t, vs.Store(ctx, "b", []float32{0.95, 0.05, 0}, map[string]any{"scope": "ws/two", "graph_version": 3}))
	require.NoError(t, vs.Store(ctx, "c", []float32{0, 0, 1}, map[string]any{"scope": "ws/two", "graph_version": 4}))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 1, map[string]any{"scope": "ws/two"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	// Integer filters match JSON-decoded numbers.
	results, err = vs.Search(ctx, []float32{1, 0, 0}, 5, map[string]any{"scope": "ws/two", "graph_version": 4})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].ID)

	results, err = vs.Search(ctx, []float32{1, 0, 0}, 5, map[string]any{"missing": true})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorStore_Delete(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, "vectors-delete")

	for _, id := range []string{"v1", "v2", "v3"} {
		require.NoError(t, vs.Store(ctx, id, []float32{1, 0, 0}, nil))
	}
	require.NoError(t, vs.Delete(ctx, []string{"v1", "v3"}))
	require.NoError(t, vs.Delete(ctx, nil))

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].ID)
}

func TestVectorStore_SearchEmptyAndZeroK(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, "vectors-empty")

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = vs.Search(ctx, []float32{1, 0, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorStore_Expire(t *testing.T) {
	ctx := context.Background()
	vs := newVectorStore(t, "vectors-expire")

	require.NoError(t, vs.Store(ctx, "old", []float32{1, 0, 0}, map[string]any{"scope": "ws/a", "graph_version": 1}))
	require.NoError(t, vs.Store(ctx, "cur", []float32{0.9, 0.1, 0}, map[string]any{"scope": "ws/a", "graph_version": 3}))
	require.NoError(t, vs.Store(ctx, "other", []float32{0.8, 0.2, 0}, map[string]any{"scope": "ws/b", "graph_version": 1}))

	n, err := vs.Expire(ctx, map[string]any{"scope": "ws/a"}, "graph_version", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"cur", "other"}, ids)

	_, err = vs.Expire(ctx, nil, "", 1)
	assert.Error(t, err)
}

func TestVectorStore_RejectsWrongWidth(t *testing.T) {
	vs := newVectorStore(t, "vectors-width")
	err := vs.Store(context.Background(), "x", []float32{1, 0}, nil)
	require.Error(t, err)

	_, err = sqlite.NewVectorStore(testDBPath(t, "zero"), 0)
	require.Error(t, err)
}
