package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteSparse(t *testing.T) *SQLiteSparseIndex {
	t.Helper()
	idx, err := NewSQLiteSparseIndex(":memory:", DefaultSparseConfig())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSQLiteSparseIndex_SearchAndDelete(t *testing.T) {
	ctx := context.Background()
	idx := newTestSQLiteSparse(t)

	require.NoError(t, idx.Index(ctx, []*Chunk{
		testChunk("doc-a", 0, "encryption key rotation policy"),
		testChunk("doc-b", 0, "retention schedule for records"),
	}))

	results, err := idx.Search(ctx, "encryption", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ChunkKey{SourceID: "doc-a", Position: 0}, results[0].Key)
	assert.Greater(t, results[0].Score, 0.0)

	require.NoError(t, idx.Delete(ctx, []ChunkKey{{SourceID: "doc-a", Position: 0}}))
	results, err = idx.Search(ctx, "encryption", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteSparseIndex_ReindexReplaces(t *testing.T) {
	ctx := context.Background()
	idx := newTestSQLiteSparse(t)

	require.NoError(t, idx.Index(ctx, []*Chunk{testChunk("doc", 0, "old content")}))
	require.NoError(t, idx.Index(ctx, []*Chunk{testChunk("doc", 0, "new material")}))

	results, err := idx.Search(ctx, "content", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, "material", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, idx.Stats().DocumentCount)
}

func TestSQLiteSparseIndex_EmptyQuery(t *testing.T) {
	ctx := context.Background()
	idx := newTestSQLiteSparse(t)

	results, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
