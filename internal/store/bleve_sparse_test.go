package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBleveIndex(t *testing.T) *BleveSparseIndex {
	t.Helper()
	idx, err := NewBleveSparseIndex("", SparseConfig{K1: 1.2, B: 0.75})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBleveIndexAndSearch(t *testing.T) {
	idx := newTestBleveIndex(t)
	ctx := context.Background()

	chunks := []*Chunk{
		{SourceID: "encryption.md", Position: 0,
			Content: "Encryption keys rotate every ninety days under the key management policy."},
		{SourceID: "onboarding.md", Position: 0,
			Content: "New hires complete security awareness training in the first week."},
	}
	require.NoError(t, idx.Index(ctx, chunks))
	assert.Equal(t, 2, idx.Stats().DocumentCount)

	results, err := idx.Search(ctx, "encryption key rotation", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, ChunkKey{SourceID: "encryption.md", Position: 0}, results[0].Key)
	assert.Positive(t, results[0].Score)
}

func TestBleveDelete(t *testing.T) {
	idx := newTestBleveIndex(t)
	ctx := context.Background()
	key := ChunkKey{SourceID: "old.md", Position: 2}

	require.NoError(t, idx.Index(ctx, []*Chunk{
		{SourceID: key.SourceID, Position: key.Position, Content: "retired retention clause"},
	}))
	require.NoError(t, idx.Delete(ctx, []ChunkKey{key}))

	results, err := idx.Search(ctx, "retention clause", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, idx.Stats().DocumentCount)
}

func TestBleveReindexReplacesChunk(t *testing.T) {
	idx := newTestBleveIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Chunk{
		{SourceID: "doc.md", Position: 0, Content: "obsolete wording about backups"},
	}))
	require.NoError(t, idx.Index(ctx, []*Chunk{
		{SourceID: "doc.md", Position: 0, Content: "incident response escalation contacts"},
	}))
	assert.Equal(t, 1, idx.Stats().DocumentCount)

	results, err := idx.Search(ctx, "obsolete backups", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, "incident escalation", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestBleveEmptyQuery(t *testing.T) {
	idx := newTestBleveIndex(t)

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
