package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyra/retrieval/internal/store"
)

func candidate(sourceID string, pos, tokens int, heading string) *RankedResult {
	c := &store.Chunk{
		SourceID:        sourceID,
		Position:        pos,
		Content:         strings.Repeat("word ", tokens),
		EstimatedTokens: tokens,
	}
	if heading != "" {
		c.HeadingPath = []string{heading}
	}
	return &RankedResult{Chunk: c}
}

func codeCandidate(sourceID string, pos, tokens int, lang string) *RankedResult {
	r := candidate(sourceID, pos, tokens, "Code")
	r.Chunk.IsCode = true
	r.Chunk.CodeLanguage = lang
	return r
}

func newTestFilter(cfg FilterConfig) *QualityFilter {
	return NewQualityFilter(cfg, nil)
}

func TestFilter_EmptyInput(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())
	out, _ := f.Apply("any query", nil, nil)
	assert.Empty(t, out)
}

func TestFilter_NeverEmptyOutput(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	// Every candidate fails the token threshold.
	in := []*RankedResult{
		candidate("a", 0, 5, ""),
		candidate("b", 0, 3, ""),
	}
	out, _ := f.Apply("query", in, nil)
	require.NotEmpty(t, out)
}

func TestFilter_TokenThresholdBoundary(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	in := []*RankedResult{
		candidate("at-threshold", 0, 50, "A"),
		candidate("below", 0, 49, "A"),
	}
	out, decisions := f.Apply("query", in, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "at-threshold", out[0].Chunk.SourceID)

	assert.True(t, decisions[0].Kept)
	assert.False(t, decisions[1].Kept)
	assert.Equal(t, ReasonBelowThreshold, decisions[1].Reason)
}

func TestFilter_MinTokensZeroDisablesThreshold(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.MinTokens = 0
	f := newTestFilter(cfg)

	in := []*RankedResult{
		candidate("tiny", 0, 3, "A"),
		candidate("normal", 0, 80, "B"),
	}
	out, _ := f.Apply("query", in, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "tiny", out[0].Chunk.SourceID)
}

func TestNewQualityFilter_NegativeMinTokensTakesDefault(t *testing.T) {
	f := newTestFilter(FilterConfig{Enabled: true, MinTokens: -1})
	assert.Equal(t, DefaultMinTokens, f.cfg.MinTokens)

	f = newTestFilter(FilterConfig{Enabled: true, MinTokens: 0})
	assert.Zero(t, f.cfg.MinTokens)
}

func TestFilter_DerivedTokenEstimate(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	// No explicit estimate: 200 chars derive to 50 tokens, kept.
	long := &RankedResult{Chunk: &store.Chunk{
		SourceID: "derived", Position: 0, Content: strings.Repeat("a", 200),
	}}
	short := &RankedResult{Chunk: &store.Chunk{
		SourceID: "short", Position: 0, Content: "tiny",
	}}
	out, _ := f.Apply("query", []*RankedResult{long, short}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "derived", out[0].Chunk.SourceID)
}

func TestFilter_DiversityGuard(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	t.Run("sole below-threshold representative is kept", func(t *testing.T) {
		in := []*RankedResult{
			candidate("big", 0, 100, "Access Control"),
			candidate("small", 0, 20, "Incident Response"),
		}
		out, decisions := f.Apply("query", in, nil)
		require.Len(t, out, 2)
		assert.Equal(t, ReasonReinstated, decisions[1].Reason)
	})

	t.Run("group with a survivor gets no reinstatement", func(t *testing.T) {
		in := []*RankedResult{
			candidate("big", 0, 100, "Access Control"),
			candidate("small", 0, 20, "Access Control"),
		}
		out, _ := f.Apply("query", in, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "big", out[0].Chunk.SourceID)
	})

	t.Run("highest ranked member of erased group comes back", func(t *testing.T) {
		in := []*RankedResult{
			candidate("keep", 0, 100, "A"),
			candidate("first-small", 0, 10, "B"),
			candidate("second-small", 0, 20, "B"),
		}
		out, _ := f.Apply("query", in, nil)
		require.Len(t, out, 2)
		assert.Equal(t, "keep", out[0].Chunk.SourceID)
		assert.Equal(t, "first-small", out[1].Chunk.SourceID)
	})

	t.Run("junk is not reinstated", func(t *testing.T) {
		in := []*RankedResult{
			candidate("keep", 0, 100, "A"),
			{Chunk: &store.Chunk{
				SourceID: "toc", Position: 0,
				Content:     "[Table of Contents]",
				HeadingPath: []string{"B"},
			}},
		}
		out, _ := f.Apply("query", in, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "keep", out[0].Chunk.SourceID)
	})
}

func TestFilter_StableOrder(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	in := []*RankedResult{
		candidate("c", 0, 100, "A"),
		candidate("a", 0, 10, "A"),
		candidate("b", 0, 80, "B"),
		candidate("d", 0, 60, "C"),
	}
	out, _ := f.Apply("query", in, nil)
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].Chunk.SourceID)
	assert.Equal(t, "b", out[1].Chunk.SourceID)
	assert.Equal(t, "d", out[2].Chunk.SourceID)
}

func TestFilter_CodeRelevance(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	in := []*RankedResult{
		candidate("prose", 0, 100, "Rules"),
		codeCandidate("code", 0, 100, "python"),
	}

	t.Run("dropped for non-programming query", func(t *testing.T) {
		out, decisions := f.Apply("What are the approval rules?", in, nil)
		require.Len(t, out, 1)
		assert.Equal(t, "prose", out[0].Chunk.SourceID)
		assert.Equal(t, ReasonOffIntentCode, decisions[1].Reason)
	})

	t.Run("kept for programming query", func(t *testing.T) {
		out, _ := f.Apply("Show me the Python authentication code", in, nil)
		require.Len(t, out, 2)
	})

	t.Run("kept when query names the language", func(t *testing.T) {
		out, _ := f.Apply("python authentication setup", in, nil)
		require.Len(t, out, 2)
	})

	t.Run("intent hint overrides detection", func(t *testing.T) {
		hint := true
		out, _ := f.Apply("What are the approval rules?", in, &hint)
		require.Len(t, out, 2)
	})

	t.Run("empty query is permissive", func(t *testing.T) {
		out, _ := f.Apply("", in, nil)
		require.Len(t, out, 2)
	})

	t.Run("non-code chunks never subject to the pass", func(t *testing.T) {
		out, _ := f.Apply("What are the approval rules?", []*RankedResult{
			candidate("prose", 0, 100, "Rules"),
		}, nil)
		require.Len(t, out, 1)
	})
}

func TestFilter_CodeFilterKillSwitch(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.CodeFilterEnabled = false
	f := newTestFilter(cfg)

	in := []*RankedResult{
		codeCandidate("code", 0, 100, "python"),
		candidate("small", 0, 10, ""),
	}
	out, _ := f.Apply("What are the approval rules?", in, nil)
	// Code pass is off, token pass still active.
	require.Len(t, out, 1)
	assert.Equal(t, "code", out[0].Chunk.SourceID)
}

func TestFilter_MasterKillSwitchIdentity(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.Enabled = false
	f := newTestFilter(cfg)

	in := []*RankedResult{
		candidate("tiny", 0, 1, ""),
		{Chunk: &store.Chunk{SourceID: "toc", Position: 0, Content: "[Table of Contents]"}},
		codeCandidate("code", 0, 2, "python"),
	}
	out, decisions := f.Apply("What are the approval rules?", in, nil)

	// Identity pass: same slice, same order, untouched records.
	require.Len(t, out, len(in))
	for i := range in {
		assert.Same(t, in[i], out[i])
	}
	assert.Nil(t, decisions)
}

func TestFilter_MinimumOutputByScore(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	mk := func(id string, score float64) *RankedResult {
		r := candidate(id, 0, 5, "")
		r.RRFScore = score
		return r
	}
	in := []*RankedResult{mk("low", 0.5), mk("mid", 0.8), mk("high", 0.9)}
	out, decisions := f.Apply("query", in, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "high", out[0].Chunk.SourceID)
	assert.Equal(t, ReasonFallback, decisions[2].Reason)
}

func TestFilter_MinimumOutputUnscored(t *testing.T) {
	f := newTestFilter(DefaultFilterConfig())

	in := []*RankedResult{
		candidate("first", 0, 5, ""),
		candidate("second", 0, 8, ""),
	}
	out, _ := f.Apply("query", in, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].Chunk.SourceID)
}

func TestFilter_EndToEndScenario(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.CodeFilterEnabled = false
	f := newTestFilter(cfg)

	in := []*RankedResult{
		{Chunk: &store.Chunk{
			SourceID: "good", Position: 0,
			Content:     strings.Repeat("a", 200),
			HeadingPath: []string{"X"},
		}},
		{Chunk: &store.Chunk{
			SourceID: "toc", Position: 0,
			Content:     "[Table of Contents]",
			HeadingPath: []string{"Y"},
		}},
	}
	out, _ := f.Apply("query", in, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].Chunk.SourceID)
}
