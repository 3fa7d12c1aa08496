package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// MemorySparseIndex is the default in-process BM25 index. Queries read an
// immutable corpus snapshot through an atomic pointer; Index and Delete
// build a replacement snapshot under a writer mutex and swap it in, so a
// query that started before a corpus update completes against the
// snapshot it began with.
type MemorySparseIndex struct {
	cfg      SparseConfig
	snapshot atomic.Pointer[memSnapshot]
	writeMu  sync.Mutex
	closed   atomic.Bool
}

type memSnapshot struct {
	// docs maps chunk key to its tokenized document.
	docs map[ChunkKey]*memDoc
	// postings maps term to the keys of documents containing it.
	postings map[string][]ChunkKey
	// avgLen is the mean token count across all documents.
	avgLen float64
	// termCount is the number of distinct terms.
	termCount int
}

type memDoc struct {
	key    ChunkKey
	length int
	// freq maps term to its frequency within the document.
	freq map[string]int
}

// NewMemorySparseIndex builds an empty in-memory index.
func NewMemorySparseIndex(cfg SparseConfig) *MemorySparseIndex {
	if cfg.K1 <= 0 {
		cfg.K1 = 1.2
	}
	if cfg.B <= 0 {
		cfg.B = 0.75
	}
	idx := &MemorySparseIndex{cfg: cfg}
	idx.snapshot.Store(emptySnapshot())
	return idx
}

func emptySnapshot() *memSnapshot {
	return &memSnapshot{
		docs:     map[ChunkKey]*memDoc{},
		postings: map[string][]ChunkKey{},
	}
}

// Index adds or replaces chunks, then publishes a new snapshot.
func (m *MemorySparseIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if m.closed.Load() {
		return ErrUnavailable
	}
	if len(chunks) == 0 {
		return nil
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.snapshot.Load()
	docs := make(map[ChunkKey]*memDoc, len(cur.docs)+len(chunks))
	for k, d := range cur.docs {
		docs[k] = d
	}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		tokens := Tokenize(c.Content, m.cfg)
		freq := make(map[string]int, len(tokens))
		for _, t := range tokens {
			freq[t]++
		}
		docs[c.Key()] = &memDoc{key: c.Key(), length: len(tokens), freq: freq}
	}
	m.snapshot.Store(rebuildSnapshot(docs))
	return nil
}

// Delete removes chunks, then publishes a new snapshot. Missing keys are
// ignored.
func (m *MemorySparseIndex) Delete(ctx context.Context, keys []ChunkKey) error {
	if m.closed.Load() {
		return ErrUnavailable
	}
	if len(keys) == 0 {
		return nil
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cur := m.snapshot.Load()
	remove := make(map[ChunkKey]bool, len(keys))
	for _, k := range keys {
		remove[k] = true
	}
	docs := make(map[ChunkKey]*memDoc, len(cur.docs))
	for k, d := range cur.docs {
		if !remove[k] {
			docs[k] = d
		}
	}
	m.snapshot.Store(rebuildSnapshot(docs))
	return nil
}

func rebuildSnapshot(docs map[ChunkKey]*memDoc) *memSnapshot {
	s := &memSnapshot{docs: docs, postings: map[string][]ChunkKey{}}
	var totalLen int
	for _, d := range docs {
		totalLen += d.length
		for term := range d.freq {
			s.postings[term] = append(s.postings[term], d.key)
		}
	}
	if len(docs) > 0 {
		s.avgLen = float64(totalLen) / float64(len(docs))
	}
	s.termCount = len(s.postings)
	return s
}

// Search scores the corpus with BM25 and returns the top limit hits,
// ordered by score descending. Documents sharing no term with the query
// do not appear.
func (m *MemorySparseIndex) Search(ctx context.Context, query string, limit int) ([]*SparseResult, error) {
	if m.closed.Load() {
		return nil, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := Tokenize(query, m.cfg)
	if len(terms) == 0 || limit <= 0 {
		return []*SparseResult{}, nil
	}

	snap := m.snapshot.Load()
	n := len(snap.docs)
	if n == 0 {
		return []*SparseResult{}, nil
	}

	// Deduplicate query terms; repeated terms do not multiply the score.
	seen := make(map[string]bool, len(terms))
	uniq := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			uniq = append(uniq, t)
		}
	}

	type hit struct {
		score   float64
		matched []string
	}
	hits := map[ChunkKey]*hit{}
	for _, term := range uniq {
		keys := snap.postings[term]
		if len(keys) == 0 {
			continue
		}
		df := float64(len(keys))
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
		for _, key := range keys {
			doc := snap.docs[key]
			tf := float64(doc.freq[term])
			norm := m.cfg.K1 * (1 - m.cfg.B + m.cfg.B*float64(doc.length)/snap.avgLen)
			score := idf * tf * (m.cfg.K1 + 1) / (tf + norm)
			h := hits[key]
			if h == nil {
				h = &hit{}
				hits[key] = h
			}
			h.score += score
			h.matched = append(h.matched, term)
		}
	}

	results := make([]*SparseResult, 0, len(hits))
	for key, h := range hits {
		results = append(results, &SparseResult{Key: key, Score: h.score, MatchedTerms: h.matched})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Key.SourceID != results[j].Key.SourceID {
			return results[i].Key.SourceID < results[j].Key.SourceID
		}
		return results[i].Key.Position < results[j].Key.Position
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats returns snapshot statistics.
func (m *MemorySparseIndex) Stats() *IndexStats {
	snap := m.snapshot.Load()
	return &IndexStats{
		DocumentCount: len(snap.docs),
		TermCount:     snap.termCount,
		AvgDocLength:  snap.avgLen,
	}
}

// Close releases the index. Further calls fail with ErrUnavailable.
func (m *MemorySparseIndex) Close() error {
	m.closed.Store(true)
	m.snapshot.Store(emptySnapshot())
	return nil
}
