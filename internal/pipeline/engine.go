package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/complyra/retrieval/internal/embed"
	"github.com/complyra/retrieval/internal/errors"
	"github.com/complyra/retrieval/internal/store"
	"github.com/complyra/retrieval/internal/telemetry"
)

// EngineConfig tunes the orchestration layer.
type EngineConfig struct {
	// DefaultLimit caps results when the caller passes no limit.
	DefaultLimit int

	// CandidateLimit is how many candidates each retrieval signal
	// contributes before fusion.
	CandidateLimit int

	// SearchTimeout bounds each retrieval signal. Timeout is treated as
	// signal-unavailable.
	SearchTimeout time.Duration

	Fusion    *Fusion
	Filter    FilterConfig
	Expansion ExpansionConfig
}

// Engine defaults.
const (
	DefaultResultLimit    = 10
	DefaultCandidateLimit = 50
	DefaultSearchTimeout  = 5 * time.Second
)

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:   DefaultResultLimit,
		CandidateLimit: DefaultCandidateLimit,
		SearchTimeout:  DefaultSearchTimeout,
		Fusion:         NewFusion(DefaultRRFK, DefaultAlpha, DefaultBoostThreshold),
		Filter:         DefaultFilterConfig(),
		Expansion:      DefaultExpansionConfig(),
	}
}

// Engine runs the full retrieval pipeline: concurrent sparse and dense
// search, rank fusion, quality filtering, and context expansion.
type Engine struct {
	sparse   *store.WorkspaceSparse
	dense    store.DenseStore
	docs     store.DocumentStore
	embedder embed.Embedder

	cfg      EngineConfig
	fusion   *Fusion
	filter   *QualityFilter
	expander *Expander
	recorder *telemetry.Recorder
	logger   *slog.Logger
}

// NewEngine wires the pipeline. The sparse provider, document store, and
// embedder are required; a nil dense store means sparse-only operation.
func NewEngine(
	sparse *store.WorkspaceSparse,
	dense store.DenseStore,
	docs store.DocumentStore,
	embedder embed.Embedder,
	cfg EngineConfig,
	recorder *telemetry.Recorder,
	logger *slog.Logger,
) (*Engine, error) {
	if sparse == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "sparse index provider required")
	}
	if docs == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "document store required")
	}
	if embedder == nil {
		return nil, errors.New(errors.CodeConfigInvalid, "embedder required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultResultLimit
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.Fusion == nil {
		cfg.Fusion = NewFusion(DefaultRRFK, DefaultAlpha, DefaultBoostThreshold)
	}
	if recorder == nil {
		recorder = telemetry.NewRecorder(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sparse:   sparse,
		dense:    dense,
		docs:     docs,
		embedder: embedder,
		cfg:      cfg,
		fusion:   cfg.Fusion,
		filter:   NewQualityFilter(cfg.Filter, logger),
		expander: NewExpander(docs, cfg.Expansion, logger),
		recorder: recorder,
		logger:   logger,
	}, nil
}

// RetrieveContext runs the pipeline for one query. Validation failures
// (missing workspace, negative limit) are the only hard errors; signal
// unavailability degrades the result and sets Metrics.Degraded instead.
// An empty query yields an empty result.
func (e *Engine) RetrieveContext(ctx context.Context, query, workspaceID string, opts Options) (*Result, error) {
	start := time.Now()

	if strings.TrimSpace(workspaceID) == "" {
		return nil, errors.ErrInvalidWorkspace
	}
	if opts.Limit < 0 {
		return nil, errors.New(errors.CodeInvalidLimit, "limit must not be negative").
			WithDetail("limit", opts.Limit)
	}
	limit := opts.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if strings.TrimSpace(query) == "" {
		return &Result{Chunks: []*store.Chunk{}, Metrics: Metrics{Latency: time.Since(start)}}, nil
	}

	sparseResults, denseResults, degraded := e.parallelSearch(ctx, query, workspaceID)

	metrics := Metrics{
		Degraded:         degraded,
		SparseCandidates: len(sparseResults),
		DenseCandidates:  len(denseResults),
	}

	fused := e.fusion.Fuse(denseResults, sparseResults)
	metrics.FusedCandidates = len(fused)

	if len(fused) == 0 {
		metrics.Latency = time.Since(start)
		e.record(query, workspaceID, metrics)
		return &Result{Chunks: []*store.Chunk{}, Metrics: metrics}, nil
	}

	fused = e.enrich(ctx, workspaceID, fused)

	filtered, decisions := e.filter.Apply(query, fused, opts.IntentHint)
	metrics.Kept = len(filtered)
	metrics.Dropped = len(fused) - len(filtered)
	for _, d := range decisions {
		if !d.Kept {
			e.recorder.RecordDrop(d.Reason)
		}
	}

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	chunks := make([]*store.Chunk, len(filtered))
	for i, r := range filtered {
		chunks[i] = r.Chunk
	}

	if opts.Expand {
		expanded, expMetrics, err := e.expander.Expand(ctx, workspaceID, chunks)
		if err != nil {
			return nil, err
		}
		chunks = expanded
		metrics.Expansion = expMetrics
	}

	metrics.Latency = time.Since(start)
	e.record(query, workspaceID, metrics)
	return &Result{Chunks: chunks, Metrics: metrics}, nil
}

// parallelSearch fans out to the sparse and dense signals. A failed
// signal contributes an empty list and flips the degraded flag; the
// goroutines never return errors so one signal's failure cannot cancel
// the other.
func (e *Engine) parallelSearch(ctx context.Context, query, workspaceID string) ([]*store.SparseResult, []*store.DenseResult, bool) {
	var (
		sparseResults []*store.SparseResult
		denseResults  []*store.DenseResult
		sparseFailed  bool
		denseFailed   bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, e.cfg.SearchTimeout)
		defer cancel()
		idx, err := e.sparse.Get(sctx, workspaceID)
		if err == nil {
			sparseResults, err = idx.Search(sctx, query, e.cfg.CandidateLimit)
		}
		if err != nil {
			e.logger.Warn("sparse search unavailable",
				"workspace", workspaceID, "error", err)
			sparseFailed = true
		}
		return nil
	})

	g.Go(func() error {
		// No dense store configured means sparse-only operation, not a
		// degraded query.
		if e.dense == nil {
			return nil
		}
		dctx, cancel := context.WithTimeout(gctx, e.cfg.SearchTimeout)
		defer cancel()
		vec, err := e.embedder.Embed(dctx, query)
		if err == nil {
			denseResults, err = e.dense.Search(dctx, workspaceID, vec, e.cfg.CandidateLimit)
		}
		if err != nil {
			e.logger.Warn("dense search unavailable",
				"workspace", workspaceID, "error", err)
			denseFailed = true
		}
		return nil
	})

	_ = g.Wait()
	return sparseResults, denseResults, sparseFailed || denseFailed
}

// enrich resolves candidate content from the document store in one
// batch. Candidates whose content cannot be resolved are dropped; a
// store failure keeps whatever content the dense signal already carried.
func (e *Engine) enrich(ctx context.Context, workspaceID string, fused []*RankedResult) []*RankedResult {
	var missing []store.ChunkKey
	for _, r := range fused {
		if r.Chunk.Content == "" {
			missing = append(missing, r.Key())
		}
	}
	if len(missing) == 0 {
		return fused
	}

	chunks, err := e.docs.GetChunks(ctx, workspaceID, missing)
	if err != nil {
		e.logger.Warn("chunk enrichment unavailable",
			"workspace", workspaceID, "error", err)
		chunks = nil
	}
	byKey := make(map[store.ChunkKey]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byKey[c.Key()] = c
	}

	out := fused[:0]
	for _, r := range fused {
		if r.Chunk.Content == "" {
			c, ok := byKey[r.Key()]
			if !ok {
				continue
			}
			r.Chunk = c
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) record(query, workspaceID string, m Metrics) {
	e.recorder.RecordPattern(query)
	e.recorder.RecordQuery(telemetry.QueryEvent{
		WorkspaceID: workspaceID,
		QueryTerms:  len(strings.Fields(query)),
		Latency:     m.Latency,
		Degraded:    m.Degraded,
		Kept:        m.Kept,
		Dropped:     m.Dropped,
	})
}
