package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyra/retrieval/internal/store"
)

// fakeDocStore serves a fixed corpus and can fail per source.
type fakeDocStore struct {
	chunks      map[string][]*store.Chunk
	failSources map[string]bool
	rangeCalls  int
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		chunks:      map[string][]*store.Chunk{},
		failSources: map[string]bool{},
	}
}

func (f *fakeDocStore) addSource(sourceID string, n int) {
	for i := 0; i < n; i++ {
		f.chunks[sourceID] = append(f.chunks[sourceID], &store.Chunk{
			SourceID: sourceID,
			Position: i,
			Content:  fmt.Sprintf("%s-%d", sourceID, i),
		})
	}
}

func (f *fakeDocStore) SaveChunks(ctx context.Context, workspaceID string, chunks []*store.Chunk) error {
	return nil
}

func (f *fakeDocStore) GetChunks(ctx context.Context, workspaceID string, keys []store.ChunkKey) ([]*store.Chunk, error) {
	var out []*store.Chunk
	for _, k := range keys {
		for _, c := range f.chunks[k.SourceID] {
			if c.Position == k.Position {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (f *fakeDocStore) GetRange(ctx context.Context, workspaceID, sourceID string, lo, hi int) ([]*store.Chunk, error) {
	f.rangeCalls++
	if f.failSources[sourceID] {
		return nil, store.ErrUnavailable
	}
	var out []*store.Chunk
	for _, c := range f.chunks[sourceID] {
		if c.Position >= lo && c.Position <= hi {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDocStore) AllChunks(ctx context.Context, workspaceID string) ([]*store.Chunk, error) {
	return nil, nil
}

func (f *fakeDocStore) Count(ctx context.Context, workspaceID string) (int, error) {
	return 0, nil
}

func (f *fakeDocStore) Close() error { return nil }

func original(sourceID string, pos int) *store.Chunk {
	return &store.Chunk{SourceID: sourceID, Position: pos, Content: fmt.Sprintf("%s-%d", sourceID, pos)}
}

func TestExpand_Disabled(t *testing.T) {
	docs := newFakeDocStore()
	cfg := DefaultExpansionConfig()
	cfg.Enabled = false
	e := NewExpander(docs, cfg, nil)

	in := []*store.Chunk{original("doc", 3)}
	out, metrics, err := e.Expand(context.Background(), "ws", in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsOriginal)
	assert.False(t, out[0].IsExpanded)
	assert.False(t, metrics.Expanded)
	assert.Equal(t, 1, metrics.OriginalCount)
	assert.Zero(t, docs.rangeCalls)
}

func TestExpand_EmptyInput(t *testing.T) {
	e := NewExpander(newFakeDocStore(), DefaultExpansionConfig(), nil)
	out, metrics, err := e.Expand(context.Background(), "ws", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.False(t, metrics.Expanded)
}

func TestExpand_MergesSiblingsInPositionOrder(t *testing.T) {
	docs := newFakeDocStore()
	docs.addSource("doc", 10)
	cfg := DefaultExpansionConfig()
	cfg.SiblingWindow = 1
	e := NewExpander(docs, cfg, nil)

	out, metrics, err := e.Expand(context.Background(), "ws", []*store.Chunk{original("doc", 5)})
	require.NoError(t, err)
	require.Len(t, out, 1)

	merged := out[0]
	assert.True(t, merged.IsExpanded)
	assert.Equal(t, 3, merged.MergedCount)
	assert.Equal(t, 4, merged.Position)
	assert.Equal(t, "doc-4\n\ndoc-5\n\ndoc-6", merged.Content)

	assert.True(t, metrics.Expanded)
	assert.Equal(t, 1, metrics.OriginalCount)
	assert.Equal(t, 2, metrics.ExpandedCount)
	assert.Equal(t, 3, metrics.TotalChunks)
}

func TestExpand_SingleChunkGroupSurvives(t *testing.T) {
	// Source has exactly one chunk: no siblings exist; the merge path
	// must still emit the chunk with its content unchanged.
	docs := newFakeDocStore()
	docs.addSource("lonely", 1)
	e := NewExpander(docs, DefaultExpansionConfig(), nil)

	out, _, err := e.Expand(context.Background(), "ws", []*store.Chunk{original("lonely", 0)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "lonely-0", out[0].Content)
	assert.Equal(t, 1, out[0].MergedCount)
}

func TestExpand_MultipleOriginalsSameSource(t *testing.T) {
	docs := newFakeDocStore()
	docs.addSource("doc", 20)
	cfg := DefaultExpansionConfig()
	cfg.SiblingWindow = 1
	cfg.MaxChunksPerSource = 20
	e := NewExpander(docs, cfg, nil)

	// Originals out of position order; merge sorts ascending.
	out, _, err := e.Expand(context.Background(), "ws", []*store.Chunk{
		original("doc", 8),
		original("doc", 2),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "doc-1\n\ndoc-2\n\ndoc-3\n\ndoc-7\n\ndoc-8\n\ndoc-9", out[0].Content)
	assert.Equal(t, 6, out[0].MergedCount)
}

func TestExpand_MaxChunksPerSourceCap(t *testing.T) {
	docs := newFakeDocStore()
	docs.addSource("doc", 50)
	cfg := DefaultExpansionConfig()
	cfg.SiblingWindow = 10
	cfg.MaxChunksPerSource = 3
	e := NewExpander(docs, cfg, nil)

	out, _, err := e.Expand(context.Background(), "ws", []*store.Chunk{original("doc", 25)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0].MergedCount)
	// Nearest siblings win the cap.
	assert.Contains(t, out[0].Content, "doc-24")
	assert.Contains(t, out[0].Content, "doc-25")
}

func TestExpand_PerSourceFailureTolerated(t *testing.T) {
	docs := newFakeDocStore()
	docs.addSource("healthy", 10)
	docs.addSource("broken", 10)
	docs.failSources["broken"] = true
	cfg := DefaultExpansionConfig()
	cfg.SiblingWindow = 1
	e := NewExpander(docs, cfg, nil)

	out, _, err := e.Expand(context.Background(), "ws", []*store.Chunk{
		original("healthy", 5),
		original("broken", 5),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	byID := map[string]*store.Chunk{}
	for _, c := range out {
		byID[c.SourceID] = c
	}
	assert.True(t, byID["healthy"].IsExpanded)
	// The failed source passes through unmerged.
	assert.True(t, byID["broken"].IsOriginal)
	assert.False(t, byID["broken"].IsExpanded)
	assert.Equal(t, "broken-5", byID["broken"].Content)
}

func TestExpand_WindowClampedAtDocumentStart(t *testing.T) {
	docs := newFakeDocStore()
	docs.addSource("doc", 10)
	cfg := DefaultExpansionConfig()
	cfg.SiblingWindow = 3
	e := NewExpander(docs, cfg, nil)

	out, _, err := e.Expand(context.Background(), "ws", []*store.Chunk{original("doc", 0)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	// Positions 0..3 exist in the window; nothing below zero.
	assert.Equal(t, 4, out[0].MergedCount)
	assert.Equal(t, 0, out[0].Position)
}
