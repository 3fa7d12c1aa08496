package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVec(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func TestHNSWAddAndSearch(t *testing.T) {
	h := NewHNSWDenseStore("")
	ctx := context.Background()

	keys := []ChunkKey{
		{SourceID: "policy.md", Position: 0},
		{SourceID: "policy.md", Position: 1},
		{SourceID: "guide.md", Position: 0},
	}
	vectors := [][]float32{
		unitVec(8, 0),
		unitVec(8, 1),
		unitVec(8, 2),
	}
	require.NoError(t, h.Add(ctx, "ws-1", keys, vectors))
	assert.Equal(t, 3, h.Count("ws-1"))

	results, err := h.Search(ctx, "ws-1", unitVec(8, 1), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, keys[1], results[0].Key)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestHNSWReplaceExistingKey(t *testing.T) {
	h := NewHNSWDenseStore("")
	ctx := context.Background()
	key := ChunkKey{SourceID: "doc.md", Position: 3}

	require.NoError(t, h.Add(ctx, "ws-1", []ChunkKey{key}, [][]float32{unitVec(8, 0)}))
	require.NoError(t, h.Add(ctx, "ws-1", []ChunkKey{key}, [][]float32{unitVec(8, 5)}))
	assert.Equal(t, 1, h.Count("ws-1"))

	results, err := h.Search(ctx, "ws-1", unitVec(8, 5), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, key, results[0].Key)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestHNSWEmptyWorkspace(t *testing.T) {
	h := NewHNSWDenseStore("")
	results, err := h.Search(context.Background(), "nobody", unitVec(8, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWWorkspaceIsolation(t *testing.T) {
	h := NewHNSWDenseStore("")
	ctx := context.Background()

	require.NoError(t, h.Add(ctx, "ws-a",
		[]ChunkKey{{SourceID: "a.md", Position: 0}}, [][]float32{unitVec(8, 0)}))

	results, err := h.Search(ctx, "ws-b", unitVec(8, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, h.Count("ws-b"))
}

func TestHNSWPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := ChunkKey{SourceID: "soc2.md", Position: 7}

	h := NewHNSWDenseStore(dir)
	require.NoError(t, h.Add(ctx, "ws-1", []ChunkKey{key}, [][]float32{unitVec(8, 4)}))
	require.NoError(t, h.Close())

	reopened := NewHNSWDenseStore(dir)
	assert.Equal(t, 1, reopened.Count("ws-1"))

	results, err := reopened.Search(ctx, "ws-1", unitVec(8, 4), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, key, results[0].Key)
}

func TestHNSWAddLengthMismatch(t *testing.T) {
	h := NewHNSWDenseStore("")
	err := h.Add(context.Background(), "ws-1",
		[]ChunkKey{{SourceID: "a.md", Position: 0}}, nil)
	assert.Error(t, err)
}
