// Package pipeline implements the retrieval relevance pipeline: hybrid
// rank fusion over sparse and dense candidates, quality filtering with
// topical diversity preservation, and sibling context expansion. The
// Engine type orchestrates the stages behind a single RetrieveContext
// call.
package pipeline

import (
	"time"

	"github.com/complyra/retrieval/internal/store"
)

// RankedResult is a candidate chunk decorated with its rank in each
// retrieval list. Ranks are explicit 1-based integers; zero means the
// chunk was absent from that list. Fusion logic never depends on slice
// order.
type RankedResult struct {
	Chunk *store.Chunk

	DenseRank  int
	SparseRank int

	DenseScore  float64
	SparseScore float64

	// NormalizedSparseScore is SparseScore min-max normalized across the
	// sparse candidate set. Used for boost eligibility only.
	NormalizedSparseScore float64

	// RRFScore is the fused score including any sparse-only boost.
	RRFScore float64
}

// Key returns the candidate's matching key.
func (r *RankedResult) Key() store.ChunkKey {
	return r.Chunk.Key()
}

// FilterDecision records one filter verdict, for observability only.
type FilterDecision struct {
	Key    store.ChunkKey
	Kept   bool
	Reason string
}

// Drop reasons recorded in FilterDecision and telemetry counters.
const (
	ReasonKept           = "kept"
	ReasonBelowThreshold = "below_token_threshold"
	ReasonJunk           = "junk_pattern"
	ReasonOffIntentCode  = "off_intent_code"
	ReasonReinstated     = "diversity_reinstated"
	ReasonFallback       = "minimum_output_fallback"
)

// ExpansionMetrics describes one expansion run.
type ExpansionMetrics struct {
	Expanded       bool          `json:"expanded"`
	OriginalCount  int           `json:"original_count"`
	ExpandedCount  int           `json:"expanded_count"`
	TotalChunks    int           `json:"total_chunks"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Metrics describes one RetrieveContext call.
type Metrics struct {
	// Degraded is true when at least one retrieval signal was
	// unavailable. When every signal failed the result is empty and
	// Degraded is still the only indicator; the call does not error.
	Degraded bool `json:"degraded"`

	SparseCandidates int `json:"sparse_candidates"`
	DenseCandidates  int `json:"dense_candidates"`
	FusedCandidates  int `json:"fused_candidates"`

	// Kept counts filter survivors before the result limit applies, so
	// Kept and Dropped together cover the filtered candidate set. The
	// returned chunk count reflects the limit.
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`

	Expansion *ExpansionMetrics `json:"expansion,omitempty"`
	Latency   time.Duration     `json:"latency"`
}

// Result is the final output handed to the LLM-facing caller.
type Result struct {
	Chunks  []*store.Chunk `json:"chunks"`
	Metrics Metrics        `json:"metrics"`
}

// Options tunes a single RetrieveContext call.
type Options struct {
	// Limit caps the number of candidates entering expansion.
	// Zero means the engine default. Negative is a validation error.
	Limit int

	// Expand enables sibling context expansion for this call.
	Expand bool

	// IntentHint, when non-nil, is a pre-computed classification of
	// whether the query is programming-related. When nil the filter
	// performs its own keyword check.
	IntentHint *bool
}
