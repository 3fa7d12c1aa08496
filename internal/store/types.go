// Package store provides the chunk data model, the sparse lexical index
// (BM25), the document store used for sibling expansion, and the in-process
// dense vector store adapter. This is the persistence layer for all
// retrieval candidates.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnavailable signals that an underlying index or store could not serve
// the request. Callers degrade to the remaining retrieval signals instead of
// failing the whole query.
var ErrUnavailable = errors.New("retrieval store unavailable")

// Chunk is a retrievable unit of content from an ingested document.
type Chunk struct {
	// SourceID identifies the originating document. Stable across all
	// chunks of the same document.
	SourceID string `json:"source_id"`

	// Position is the ordinal of this chunk within its source document.
	Position int `json:"position"`

	// Content is the chunk text. Never mutated in place; pipeline stages
	// produce new records.
	Content string `json:"content"`

	// HeadingPath is the ordered heading trail from the document root to
	// this chunk's section. HeadingPath[0] is the top-level section used
	// for diversity grouping.
	HeadingPath []string `json:"heading_path,omitempty"`

	// EstimatedTokens is the token estimate for Content. Zero means
	// unknown; use TokenEstimate to derive one.
	EstimatedTokens int `json:"estimated_tokens,omitempty"`

	// IsCode marks source-code chunks; CodeLanguage names the language.
	IsCode       bool   `json:"is_code,omitempty"`
	CodeLanguage string `json:"code_language,omitempty"`

	// Metadata carries custom fields through the pipeline untouched.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Expansion flags, set by the context expansion stage.
	IsOriginal  bool `json:"is_original,omitempty"`
	IsExpanded  bool `json:"is_expanded,omitempty"`
	MergedCount int  `json:"merged_count,omitempty"`
}

// ChunkKey identifies a chunk across index backends and ranked lists.
// Results from the sparse and dense indexes referring to the same
// (SourceID, Position) pair are the same underlying chunk.
type ChunkKey struct {
	SourceID string
	Position int
}

// keySeparator joins SourceID and Position in string document IDs.
// SourceIDs containing '#' are still parseable: the position is taken
// after the last separator.
const keySeparator = "#"

// String encodes the key as an index document ID.
func (k ChunkKey) String() string {
	return k.SourceID + keySeparator + strconv.Itoa(k.Position)
}

// ParseChunkKey decodes a document ID produced by ChunkKey.String.
func ParseChunkKey(s string) (ChunkKey, error) {
	idx := strings.LastIndex(s, keySeparator)
	if idx < 0 {
		return ChunkKey{}, fmt.Errorf("invalid chunk key %q: missing separator", s)
	}
	pos, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return ChunkKey{}, fmt.Errorf("invalid chunk key %q: %w", s, err)
	}
	return ChunkKey{SourceID: s[:idx], Position: pos}, nil
}

// Key returns the chunk's matching key.
func (c *Chunk) Key() ChunkKey {
	return ChunkKey{SourceID: c.SourceID, Position: c.Position}
}

// TokenEstimate returns EstimatedTokens, deriving ceil(len(Content)/4)
// when no estimate was attached during ingestion.
func (c *Chunk) TokenEstimate() int {
	if c.EstimatedTokens > 0 {
		return c.EstimatedTokens
	}
	return (len(c.Content) + 3) / 4
}

// TopHeading returns the top-level section heading, or "" when the chunk
// carries no heading trail.
func (c *Chunk) TopHeading() string {
	if len(c.HeadingPath) == 0 {
		return ""
	}
	return c.HeadingPath[0]
}

// Clone returns a copy of the chunk with its own metadata map. Pipeline
// stages clone before setting stage flags so earlier records stay intact.
func (c *Chunk) Clone() *Chunk {
	out := *c
	if c.HeadingPath != nil {
		out.HeadingPath = append([]string(nil), c.HeadingPath...)
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SparseResult is a single lexical search hit.
type SparseResult struct {
	Key          ChunkKey
	Score        float64
	MatchedTerms []string
}

// DenseResult is a single vector search hit. Chunk is populated when the
// dense collaborator returns content alongside the key; otherwise the
// pipeline resolves content through the document store.
type DenseResult struct {
	Key   ChunkKey
	Score float64
	Chunk *Chunk
}

// IndexStats describes a sparse index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// SparseIndex provides BM25 lexical search over one workspace's corpus.
// Implementations are read-only during query serving; corpus changes swap
// in a new snapshot (memory backend) or commit a batch (persistent
// backends).
type SparseIndex interface {
	// Index adds or replaces chunks in the corpus.
	Index(ctx context.Context, chunks []*Chunk) error

	// Search returns the top-ranked chunks for the query, scored by BM25.
	// Empty or whitespace-only queries yield an empty result, not an error.
	Search(ctx context.Context, query string, limit int) ([]*SparseResult, error)

	// Delete removes chunks from the corpus.
	Delete(ctx context.Context, keys []ChunkKey) error

	// Stats returns corpus statistics.
	Stats() *IndexStats

	Close() error
}

// DenseStore is the boundary contract for the dense vector collaborator.
type DenseStore interface {
	// Add inserts vectors for the given chunk keys in a workspace.
	Add(ctx context.Context, workspaceID string, keys []ChunkKey, vectors [][]float32) error

	// Search finds the k nearest chunks to the query embedding.
	Search(ctx context.Context, workspaceID string, embedding []float32, k int) ([]*DenseResult, error)

	// Count returns the number of vectors stored for a workspace.
	Count(workspaceID string) int

	Close() error
}

// DocumentStore is the boundary contract for chunk content retrieval,
// used for pipeline enrichment and sibling expansion.
type DocumentStore interface {
	// SaveChunks persists chunks for a workspace, replacing existing
	// entries with the same key.
	SaveChunks(ctx context.Context, workspaceID string, chunks []*Chunk) error

	// GetChunks fetches chunks by key in a single batch.
	GetChunks(ctx context.Context, workspaceID string, keys []ChunkKey) ([]*Chunk, error)

	// GetRange fetches chunks of one source document with positions in
	// [lo, hi], ordered by position ascending.
	GetRange(ctx context.Context, workspaceID, sourceID string, lo, hi int) ([]*Chunk, error)

	// AllChunks returns the full corpus of a workspace, ordered by
	// (source_id, position). Used for index rebuilds.
	AllChunks(ctx context.Context, workspaceID string) ([]*Chunk, error)

	// Count returns the number of chunks stored for a workspace.
	Count(ctx context.Context, workspaceID string) (int, error)

	Close() error
}

// SparseConfig configures BM25 scoring and tokenization.
type SparseConfig struct {
	// K1 is the term frequency saturation parameter (default: 1.2).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64

	// StopWords are filtered out during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultSparseConfig returns the default BM25 configuration.
func DefaultSparseConfig() SparseConfig {
	return SparseConfig{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains high-frequency terms excluded from lexical
// scoring. The list mixes English function words with programming noise
// terms since compliance corpora carry both prose and code.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "of", "to", "in", "is", "are", "for",
	"on", "with", "as", "by", "at", "be", "this", "that",
	"var", "let", "const", "func", "def", "return", "if", "else",
}
