package pipeline

import (
	"log/slog"
)

// FilterConfig is the explicit configuration for the quality filter.
// Kill switches are plain fields resolved at construction, never
// process-wide globals read at call time.
type FilterConfig struct {
	// Enabled is the master switch. When false, Apply returns its input
	// unchanged.
	Enabled bool

	// CodeFilterEnabled controls the code-relevance pass only; the other
	// passes run regardless.
	CodeFilterEnabled bool

	// MinTokens is the token threshold. Chunks with an estimate strictly
	// below it are dropped; the boundary value itself is kept.
	MinTokens int

	// JunkKinds is the enabled junk-pattern set. Nil means all kinds.
	JunkKinds []JunkKind
}

// DefaultMinTokens is the default token threshold.
const DefaultMinTokens = 50

// DefaultFilterConfig returns the production defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Enabled:           true,
		CodeFilterEnabled: true,
		MinTokens:         DefaultMinTokens,
		JunkKinds:         AllJunkKinds,
	}
}

// QualityFilter removes low-information chunks from a ranked candidate
// list while guaranteeing non-empty output and preserving topical
// diversity. The filter is stable: survivors keep their relative input
// order.
type QualityFilter struct {
	cfg    FilterConfig
	intent *IntentDetector
	logger *slog.Logger
}

// NewQualityFilter builds a filter. A nil logger falls back to the
// default slog logger. A negative MinTokens takes the default; zero is
// valid and disables the token threshold.
func NewQualityFilter(cfg FilterConfig, logger *slog.Logger) *QualityFilter {
	if cfg.MinTokens < 0 {
		cfg.MinTokens = DefaultMinTokens
	}
	if cfg.JunkKinds == nil {
		cfg.JunkKinds = AllJunkKinds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QualityFilter{cfg: cfg, intent: NewIntentDetector(), logger: logger}
}

// Apply filters the candidates for the given query. intentHint, when
// non-nil, overrides the filter's own programming-intent detection.
// The returned decisions cover every input candidate plus any
// reinstatements, for observability.
func (f *QualityFilter) Apply(query string, candidates []*RankedResult, intentHint *bool) ([]*RankedResult, []FilterDecision) {
	if !f.cfg.Enabled {
		return candidates, nil
	}
	if len(candidates) == 0 {
		return candidates, nil
	}

	decisions := make([]FilterDecision, len(candidates))
	kept := make([]bool, len(candidates))

	codeIntent := f.resolveIntent(query, intentHint)

	for i, c := range candidates {
		reason := f.judge(query, c, codeIntent)
		kept[i] = reason == ReasonKept
		decisions[i] = FilterDecision{Key: c.Key(), Kept: kept[i], Reason: reason}
	}

	f.applyDiversityGuard(candidates, kept, &decisions)
	f.applyMinimumOutput(candidates, kept, &decisions)

	out := make([]*RankedResult, 0, len(candidates))
	for i, c := range candidates {
		if kept[i] {
			out = append(out, c)
		}
	}
	for _, d := range decisions {
		if !d.Kept {
			f.logger.Debug("chunk dropped",
				"source_id", d.Key.SourceID,
				"position", d.Key.Position,
				"reason", d.Reason)
		}
	}
	return out, decisions
}

func (f *QualityFilter) resolveIntent(query string, hint *bool) bool {
	if hint != nil {
		return *hint
	}
	return f.intent.HasProgrammingIntent(query)
}

// judge runs the per-chunk passes in order: token threshold, junk
// pattern, code relevance.
func (f *QualityFilter) judge(query string, c *RankedResult, codeIntent bool) string {
	if c.Chunk.TokenEstimate() < f.cfg.MinTokens {
		return ReasonBelowThreshold
	}
	if kind := MatchJunk(c.Chunk.Content, f.cfg.JunkKinds); kind != "" {
		return ReasonJunk
	}
	if f.cfg.CodeFilterEnabled && c.Chunk.IsCode {
		if !codeIntent && !f.intent.MatchesLanguage(query, c.Chunk.CodeLanguage) {
			return ReasonOffIntentCode
		}
	}
	return ReasonKept
}

// applyDiversityGuard reinstates the highest-ranked member of any
// top-heading group whose every member was dropped. A topic is never
// entirely erased when these candidates were its only evidence.
func (f *QualityFilter) applyDiversityGuard(candidates []*RankedResult, kept []bool, decisions *[]FilterDecision) {
	groups := map[string][]int{}
	for i, c := range candidates {
		// Chunks without a heading trail belong to no topic group.
		if h := c.Chunk.TopHeading(); h != "" {
			groups[h] = append(groups[h], i)
		}
	}
	for _, members := range groups {
		survived := false
		for _, i := range members {
			if kept[i] {
				survived = true
				break
			}
		}
		if survived {
			continue
		}
		// members is in input order; the first eligible is the highest
		// ranked. Junk chunks stay dropped: boilerplate is not evidence
		// for a topic.
		for _, i := range members {
			if (*decisions)[i].Reason == ReasonJunk {
				continue
			}
			kept[i] = true
			(*decisions)[i] = FilterDecision{
				Key:    candidates[i].Key(),
				Kept:   true,
				Reason: ReasonReinstated,
			}
			break
		}
	}
}

// applyMinimumOutput guarantees at least one survivor: the candidate
// with the highest fused score, or the first in input order when no
// candidate carries a score.
func (f *QualityFilter) applyMinimumOutput(candidates []*RankedResult, kept []bool, decisions *[]FilterDecision) {
	for _, k := range kept {
		if k {
			return
		}
	}
	best := 0
	for i, c := range candidates {
		if c.RRFScore > candidates[best].RRFScore {
			best = i
		}
	}
	kept[best] = true
	(*decisions)[best] = FilterDecision{
		Key:    candidates[best].Key(),
		Kept:   true,
		Reason: ReasonFallback,
	}
}
