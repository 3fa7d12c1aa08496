package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BleveSparseIndex is a persistent full-text backend on bleve. It trades
// the FTS5 backend's smaller footprint for bleve's richer scoring and
// crash-safe segment files.
type BleveSparseIndex struct {
	idx bleve.Index
	cfg SparseConfig
}

type bleveChunkDoc struct {
	Content string `json:"content"`
}

func bleveMapping() mapping.IndexMapping {
	content := bleve.NewTextFieldMapping()
	content.Analyzer = "standard"
	content.Store = false
	content.IncludeTermVectors = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// NewBleveSparseIndex opens the index at path, creating it when absent.
// An empty path builds a memory-only index.
func NewBleveSparseIndex(path string, cfg SparseConfig) (*BleveSparseIndex, error) {
	var idx bleve.Index
	var err error
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(bleveMapping())
	case indexExists(path):
		idx, err = bleve.Open(path)
	default:
		idx, err = bleve.New(path, bleveMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &BleveSparseIndex{idx: idx, cfg: cfg}, nil
}

func indexExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Index adds or replaces chunks in a single batch.
func (b *BleveSparseIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.idx.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Feed the shared token stream so all backends agree on matching.
		doc := bleveChunkDoc{Content: strings.Join(Tokenize(c.Content, b.cfg), " ")}
		if err := batch.Index(c.Key().String(), doc); err != nil {
			return fmt.Errorf("batch chunk %s: %w", c.Key(), err)
		}
	}
	if err := b.idx.Batch(batch); err != nil {
		return fmt.Errorf("commit bleve batch: %w", err)
	}
	return nil
}

// Delete removes chunks by key.
func (b *BleveSparseIndex) Delete(ctx context.Context, keys []ChunkKey) error {
	if len(keys) == 0 {
		return nil
	}
	batch := b.idx.NewBatch()
	for _, k := range keys {
		batch.Delete(k.String())
	}
	if err := b.idx.Batch(batch); err != nil {
		return fmt.Errorf("commit delete batch: %w", err)
	}
	return nil
}

// Search runs a disjunction of match queries over the tokenized terms.
func (b *BleveSparseIndex) Search(ctx context.Context, query string, limit int) ([]*SparseResult, error) {
	terms := Tokenize(query, b.cfg)
	if len(terms) == 0 || limit <= 0 {
		return []*SparseResult{}, nil
	}
	disjuncts := bleve.NewDisjunctionQuery()
	for _, t := range terms {
		mq := bleve.NewMatchQuery(t)
		mq.SetField("content")
		disjuncts.AddQuery(mq)
	}
	req := bleve.NewSearchRequestOptions(disjuncts, limit, 0, false)
	res, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	results := make([]*SparseResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		key, err := ParseChunkKey(hit.ID)
		if err != nil {
			continue
		}
		results = append(results, &SparseResult{Key: key, Score: hit.Score})
	}
	return results, nil
}

// Stats reports the document count.
func (b *BleveSparseIndex) Stats() *IndexStats {
	count, err := b.idx.DocCount()
	if err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: int(count)}
}

func (b *BleveSparseIndex) Close() error {
	return b.idx.Close()
}
