package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyra/retrieval/internal/store"
)

func denseHit(sourceID string, pos int, score float64) *store.DenseResult {
	return &store.DenseResult{
		Key:   store.ChunkKey{SourceID: sourceID, Position: pos},
		Score: score,
	}
}

func sparseHit(sourceID string, pos int, score float64) *store.SparseResult {
	return &store.SparseResult{
		Key:   store.ChunkKey{SourceID: sourceID, Position: pos},
		Score: score,
	}
}

func TestFuse_BothListsOutranksSingle(t *testing.T) {
	f := NewFusion(0, 0, 0)

	// "a" is #1 in both lists, "b" is #1 dense only, "c" #2 sparse only.
	results := f.Fuse(
		[]*store.DenseResult{denseHit("a", 0, 0.95), denseHit("b", 0, 0.90)},
		[]*store.SparseResult{sparseHit("a", 0, 12.0), sparseHit("c", 0, 8.0)},
	)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Chunk.SourceID)

	var a, b *RankedResult
	for _, r := range results {
		switch r.Chunk.SourceID {
		case "a":
			a = r
		case "b":
			b = r
		}
	}
	assert.Greater(t, a.RRFScore, b.RRFScore)
	assert.Equal(t, 1, a.DenseRank)
	assert.Equal(t, 1, a.SparseRank)
	assert.Equal(t, 1, b.DenseRank)
	assert.Equal(t, 0, b.SparseRank)
}

func TestFuse_DenseOnlyInput(t *testing.T) {
	f := NewFusion(0, 0, 0)

	results := f.Fuse([]*store.DenseResult{
		denseHit("a", 0, 0.9),
		denseHit("b", 0, 0.8),
		denseHit("c", 0, 0.7),
	}, nil)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Chunk.SourceID)
	assert.Equal(t, "b", results[1].Chunk.SourceID)
	assert.Equal(t, "c", results[2].Chunk.SourceID)
	for _, r := range results {
		assert.Zero(t, r.SparseRank)
	}
}

func TestFuse_SparseOnlyInput(t *testing.T) {
	f := NewFusion(0, 0, 0)

	results := f.Fuse(nil, []*store.SparseResult{
		sparseHit("a", 0, 10.0),
		sparseHit("b", 0, 5.0),
	})
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Chunk.SourceID)
	assert.Equal(t, "b", results[1].Chunk.SourceID)
}

func TestFuse_BothEmpty(t *testing.T) {
	f := NewFusion(0, 0, 0)
	assert.Empty(t, f.Fuse(nil, nil))
}

func TestFuse_SparseOnlyBoost(t *testing.T) {
	f := NewFusion(60, 0.4, 0.8)

	// "rare" is a sparse-only exact-keyword hit with the top sparse
	// score; without the boost it would trail every dense hit.
	dense := []*store.DenseResult{
		denseHit("d1", 0, 0.9),
		denseHit("d2", 0, 0.8),
	}
	sparse := []*store.SparseResult{
		sparseHit("rare", 0, 20.0),
		sparseHit("d1", 0, 5.0),
		sparseHit("d2", 0, 4.0),
	}
	results := f.Fuse(dense, sparse)
	require.Len(t, results, 3)

	var rare *RankedResult
	for _, r := range results {
		if r.Chunk.SourceID == "rare" {
			rare = r
		}
	}
	require.NotNil(t, rare)
	assert.Equal(t, 1.0, rare.NormalizedSparseScore)
	// Boost = alpha * normalized on top of the RRF term.
	assert.Greater(t, rare.RRFScore, 0.4)
	assert.Equal(t, "rare", results[0].Chunk.SourceID)
}

func TestFuse_AlphaZeroDisablesBoost(t *testing.T) {
	f := NewFusion(60, 0, 0.8)
	assert.Zero(t, f.Alpha)

	// Sparse-only top scorer is boost-eligible, but alpha 0 means the
	// score is the bare RRF term.
	dense := []*store.DenseResult{denseHit("d1", 0, 0.9)}
	sparse := []*store.SparseResult{
		sparseHit("rare", 0, 20.0),
		sparseHit("d1", 0, 5.0),
	}
	results := f.Fuse(dense, sparse)
	require.Len(t, results, 2)

	var rare *RankedResult
	for _, r := range results {
		if r.Chunk.SourceID == "rare" {
			rare = r
		}
	}
	require.NotNil(t, rare)
	assert.Equal(t, 1.0, rare.NormalizedSparseScore)
	assert.InDelta(t, 1.0/61.0, rare.RRFScore, 1e-9)
}

func TestNewFusion_NegativeTakesDefaults(t *testing.T) {
	f := NewFusion(0, -1, -1)
	assert.Equal(t, DefaultRRFK, f.K)
	assert.Equal(t, DefaultAlpha, f.Alpha)
	assert.Equal(t, DefaultBoostThreshold, f.BoostThreshold)

	f = NewFusion(60, 0, 0)
	assert.Zero(t, f.Alpha)
	assert.Zero(t, f.BoostThreshold)
}

func TestFuse_BoostRequiresNoDenseRank(t *testing.T) {
	f := NewFusion(60, 0.4, 0.8)

	// Top sparse scorer also has a dense rank; boost does not apply.
	dense := []*store.DenseResult{denseHit("a", 0, 0.9)}
	sparse := []*store.SparseResult{sparseHit("a", 0, 20.0)}
	results := f.Fuse(dense, sparse)
	require.Len(t, results, 1)

	expected := 1.0/61.0 + 1.0/61.0
	assert.InDelta(t, expected, results[0].RRFScore, 1e-9)
}

func TestFuse_BelowThresholdNotBoosted(t *testing.T) {
	f := NewFusion(60, 0.4, 0.8)

	sparse := []*store.SparseResult{
		sparseHit("top", 0, 20.0),
		sparseHit("mid", 0, 10.0),
		sparseHit("low", 0, 2.0),
	}
	results := f.Fuse(nil, sparse)
	require.Len(t, results, 3)

	for _, r := range results {
		if r.Chunk.SourceID == "mid" {
			// normalized (10-2)/(20-2) ≈ 0.44, under the threshold.
			expected := 1.0 / 62.0
			assert.InDelta(t, expected, r.RRFScore, 1e-9)
		}
	}
}

func TestFuse_TieBreakByPosition(t *testing.T) {
	f := NewFusion(0, 0, 0)

	// Same source at two positions with symmetric ranks fuse to equal
	// scores; the lower position wins the tie.
	dense := []*store.DenseResult{denseHit("doc", 7, 0.9), denseHit("doc", 2, 0.8)}
	sparse := []*store.SparseResult{sparseHit("doc", 2, 9.0), sparseHit("doc", 7, 8.0)}
	results := f.Fuse(dense, sparse)
	require.Len(t, results, 2)
	assert.InDelta(t, results[0].RRFScore, results[1].RRFScore, 1e-9)
	assert.Equal(t, 2, results[0].Chunk.Position)
}

func TestFuse_OrderIndependentRanks(t *testing.T) {
	f := NewFusion(0, 0, 0)

	results := f.Fuse(
		[]*store.DenseResult{denseHit("x", 0, 0.9), denseHit("y", 0, 0.5)},
		[]*store.SparseResult{sparseHit("y", 0, 6.0), sparseHit("x", 0, 3.0)},
	)
	byID := map[string]*RankedResult{}
	for _, r := range results {
		byID[r.Chunk.SourceID] = r
	}
	assert.Equal(t, 1, byID["x"].DenseRank)
	assert.Equal(t, 2, byID["x"].SparseRank)
	assert.Equal(t, 2, byID["y"].DenseRank)
	assert.Equal(t, 1, byID["y"].SparseRank)
}
