package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/complyra/retrieval/internal/store"
)

// ExpansionConfig configures sibling context expansion.
type ExpansionConfig struct {
	// Enabled turns expansion on. Disabled expansion passes chunks
	// through flagged IsOriginal.
	Enabled bool

	// SiblingWindow is how many chunks before and after each original
	// position to fetch. Minimum 1 when enabled.
	SiblingWindow int

	// MaxChunksPerSource caps the total chunks taken from one source.
	MaxChunksPerSource int

	// Concurrency bounds the per-source fetch fan-out.
	Concurrency int

	// FetchTimeout bounds each sibling fetch. Timeout is treated as
	// store-unavailable for that source.
	FetchTimeout time.Duration
}

// Expansion defaults.
const (
	DefaultSiblingWindow      = 2
	DefaultMaxChunksPerSource = 8
	DefaultExpandConcurrency  = 4
	DefaultFetchTimeout       = 2 * time.Second
)

// DefaultExpansionConfig returns the production defaults.
func DefaultExpansionConfig() ExpansionConfig {
	return ExpansionConfig{
		Enabled:            true,
		SiblingWindow:      DefaultSiblingWindow,
		MaxChunksPerSource: DefaultMaxChunksPerSource,
		Concurrency:        DefaultExpandConcurrency,
		FetchTimeout:       DefaultFetchTimeout,
	}
}

// Expander enriches a filtered chunk set with adjacent chunks from the
// same source documents, merging contiguous spans into coherent blocks.
type Expander struct {
	docs   store.DocumentStore
	cfg    ExpansionConfig
	logger *slog.Logger
}

// NewExpander builds an expander over the given document store.
func NewExpander(docs store.DocumentStore, cfg ExpansionConfig, logger *slog.Logger) *Expander {
	if cfg.SiblingWindow < 1 {
		cfg.SiblingWindow = DefaultSiblingWindow
	}
	if cfg.MaxChunksPerSource <= 0 {
		cfg.MaxChunksPerSource = DefaultMaxChunksPerSource
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultExpandConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{docs: docs, cfg: cfg, logger: logger}
}

// Expand merges each source's originals with their fetched siblings into
// one block per source. Sibling fetch failure for a source passes that
// source's originals through unmerged; other sources are unaffected.
func (e *Expander) Expand(ctx context.Context, workspaceID string, chunks []*store.Chunk) ([]*store.Chunk, *ExpansionMetrics, error) {
	start := time.Now()
	metrics := &ExpansionMetrics{OriginalCount: len(chunks)}

	if !e.cfg.Enabled || len(chunks) == 0 {
		out := make([]*store.Chunk, len(chunks))
		for i, c := range chunks {
			clone := c.Clone()
			clone.IsOriginal = true
			out[i] = clone
		}
		metrics.TotalChunks = len(out)
		metrics.ProcessingTime = time.Since(start)
		return out, metrics, nil
	}

	// Group originals by source, preserving first-seen source order.
	bySource := map[string][]*store.Chunk{}
	var sourceOrder []string
	for _, c := range chunks {
		if _, ok := bySource[c.SourceID]; !ok {
			sourceOrder = append(sourceOrder, c.SourceID)
		}
		bySource[c.SourceID] = append(bySource[c.SourceID], c)
	}

	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)
	merged := make([]*store.Chunk, len(sourceOrder))
	passthrough := make([][]*store.Chunk, len(sourceOrder))
	expandedCount := make([]int, len(sourceOrder))

	for i, sourceID := range sourceOrder {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				// Group context canceled; pass originals through.
				passthrough[i] = bySource[sourceID]
				return nil
			}
			defer sem.Release(1)

			originals := bySource[sourceID]
			group, err := e.fetchGroup(gctx, workspaceID, sourceID, originals)
			if err != nil {
				e.logger.Warn("sibling fetch failed, passing source through",
					"workspace", workspaceID,
					"source_id", sourceID,
					"error", err)
				passthrough[i] = originals
				return nil
			}
			merged[i] = mergeGroup(group, originals)
			expandedCount[i] = len(group) - len(originals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var out []*store.Chunk
	for i := range sourceOrder {
		if merged[i] != nil {
			out = append(out, merged[i])
			metrics.TotalChunks += merged[i].MergedCount
			if expandedCount[i] > 0 {
				metrics.ExpandedCount += expandedCount[i]
				metrics.Expanded = true
			}
			continue
		}
		for _, c := range passthrough[i] {
			clone := c.Clone()
			clone.IsOriginal = true
			out = append(out, clone)
			metrics.TotalChunks++
		}
	}
	metrics.ProcessingTime = time.Since(start)
	return out, metrics, nil
}

// fetchGroup returns the originals plus their siblings, deduplicated by
// position and capped at MaxChunksPerSource, nearest siblings first.
func (e *Expander) fetchGroup(ctx context.Context, workspaceID, sourceID string, originals []*store.Chunk) ([]*store.Chunk, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	byPos := map[int]*store.Chunk{}
	for _, c := range originals {
		byPos[c.Position] = c
	}

	lo, hi := originals[0].Position, originals[0].Position
	for _, c := range originals[1:] {
		if c.Position < lo {
			lo = c.Position
		}
		if c.Position > hi {
			hi = c.Position
		}
	}
	lo -= e.cfg.SiblingWindow
	if lo < 0 {
		lo = 0
	}
	hi += e.cfg.SiblingWindow

	fetched, err := e.docs.GetRange(fetchCtx, workspaceID, sourceID, lo, hi)
	if err != nil {
		return nil, err
	}

	// Siblings join in distance order from the nearest original so the
	// per-source cap keeps the most adjacent context.
	var siblings []*store.Chunk
	for _, c := range fetched {
		if _, ok := byPos[c.Position]; ok {
			continue
		}
		if inWindow(c.Position, originals, e.cfg.SiblingWindow) {
			siblings = append(siblings, c)
		}
	}
	sort.SliceStable(siblings, func(a, b int) bool {
		return distance(siblings[a].Position, originals) < distance(siblings[b].Position, originals)
	})

	group := make([]*store.Chunk, 0, len(originals)+len(siblings))
	group = append(group, originals...)
	for _, s := range siblings {
		if len(group) >= e.cfg.MaxChunksPerSource {
			break
		}
		group = append(group, s)
	}
	return group, nil
}

func inWindow(pos int, originals []*store.Chunk, window int) bool {
	for _, o := range originals {
		d := pos - o.Position
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

func distance(pos int, originals []*store.Chunk) int {
	best := -1
	for _, o := range originals {
		d := pos - o.Position
		if d < 0 {
			d = -d
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

// mergeGroup concatenates a source group into one chunk, ordered by
// ascending position. A single-chunk group passes through the same path
// with its content unchanged and MergedCount 1.
func mergeGroup(group []*store.Chunk, originals []*store.Chunk) *store.Chunk {
	sorted := make([]*store.Chunk, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	parts := make([]string, len(sorted))
	tokens := 0
	for i, c := range sorted {
		parts[i] = c.Content
		tokens += c.TokenEstimate()
	}

	merged := originals[0].Clone()
	merged.Position = sorted[0].Position
	merged.Content = strings.Join(parts, "\n\n")
	merged.EstimatedTokens = tokens
	merged.IsOriginal = false
	merged.IsExpanded = true
	merged.MergedCount = len(sorted)
	return merged
}
