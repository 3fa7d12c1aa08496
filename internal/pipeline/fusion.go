package pipeline

import (
	"sort"

	"github.com/complyra/retrieval/internal/store"
)

// Fusion merges one dense-ranked and one sparse-ranked candidate list
// with Reciprocal Rank Fusion, then boosts sparse-only hits whose
// absolute lexical score is unusually strong. The boost protects
// exact-keyword matches (proper nouns, control IDs, product names) that
// embedding similarity under-ranks.
type Fusion struct {
	// K controls rank sensitivity in the 1/(K+rank) contribution.
	K int

	// Alpha scales the boost added to eligible sparse-only hits.
	Alpha float64

	// BoostThreshold is the minimum normalized sparse score for boost
	// eligibility.
	BoostThreshold float64
}

// Fusion defaults.
const (
	DefaultRRFK           = 60
	DefaultAlpha          = 0.4
	DefaultBoostThreshold = 0.8
)

// NewFusion builds a fusion stage. Negative alpha and boostThreshold
// take the defaults; zero is a valid setting (alpha 0 disables the
// boost, threshold 0 makes every sparse-only hit eligible).
func NewFusion(k int, alpha, boostThreshold float64) *Fusion {
	if k <= 0 {
		k = DefaultRRFK
	}
	if alpha < 0 {
		alpha = DefaultAlpha
	}
	if boostThreshold < 0 {
		boostThreshold = DefaultBoostThreshold
	}
	return &Fusion{K: k, Alpha: alpha, BoostThreshold: boostThreshold}
}

// Fuse merges the two lists into one ranking. Chunks appearing in both
// lists are matched by (SourceID, Position) and merged into a single
// candidate carrying both ranks. Either list may be empty; both empty
// yields an empty output.
func (f *Fusion) Fuse(dense []*store.DenseResult, sparse []*store.SparseResult) []*RankedResult {
	merged := make(map[store.ChunkKey]*RankedResult, len(dense)+len(sparse))
	order := make([]store.ChunkKey, 0, len(dense)+len(sparse))

	getOrCreate := func(key store.ChunkKey) *RankedResult {
		if r, ok := merged[key]; ok {
			return r
		}
		r := &RankedResult{Chunk: &store.Chunk{SourceID: key.SourceID, Position: key.Position}}
		merged[key] = r
		order = append(order, key)
		return r
	}

	for i, d := range dense {
		r := getOrCreate(d.Key)
		r.DenseRank = i + 1
		r.DenseScore = d.Score
		if d.Chunk != nil {
			r.Chunk = d.Chunk
		}
	}
	for i, s := range sparse {
		r := getOrCreate(s.Key)
		r.SparseRank = i + 1
		r.SparseScore = s.Score
	}

	normalizeSparseScores(merged, sparse)

	for _, r := range merged {
		var score float64
		if r.DenseRank > 0 {
			score += 1.0 / float64(f.K+r.DenseRank)
		}
		if r.SparseRank > 0 {
			score += 1.0 / float64(f.K+r.SparseRank)
		}
		if r.SparseRank > 0 && r.DenseRank == 0 && r.NormalizedSparseScore >= f.BoostThreshold {
			score += f.Alpha * r.NormalizedSparseScore
		}
		r.RRFScore = score
	}

	results := make([]*RankedResult, 0, len(order))
	for _, key := range order {
		results = append(results, merged[key])
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		if results[i].Chunk.Position != results[j].Chunk.Position {
			return results[i].Chunk.Position < results[j].Chunk.Position
		}
		return results[i].Chunk.SourceID < results[j].Chunk.SourceID
	})
	return results
}

// normalizeSparseScores min-max normalizes sparse scores within the
// candidate set. When all sparse scores are equal, every sparse hit
// normalizes to 1.0: a lone exact match is exactly the case the boost
// exists for.
func normalizeSparseScores(merged map[store.ChunkKey]*RankedResult, sparse []*store.SparseResult) {
	if len(sparse) == 0 {
		return
	}
	min, max := sparse[0].Score, sparse[0].Score
	for _, s := range sparse[1:] {
		if s.Score < min {
			min = s.Score
		}
		if s.Score > max {
			max = s.Score
		}
	}
	for _, s := range sparse {
		r := merged[s.Key]
		if max > min {
			r.NormalizedSparseScore = (s.Score - min) / (max - min)
		} else if max > 0 {
			r.NormalizedSparseScore = 1.0
		}
	}
}
