package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWDenseStore keeps one HNSW graph per workspace for approximate
// nearest-neighbor search over chunk embeddings. Graph node IDs are
// uint64; the store maintains the mapping to chunk keys and persists it
// alongside the graph.
type HNSWDenseStore struct {
	baseDir string

	mu     sync.RWMutex
	graphs map[string]*workspaceGraph
}

type workspaceGraph struct {
	graph   *hnsw.Graph[uint64]
	nextID  uint64
	idToKey map[uint64]ChunkKey
	keyToID map[ChunkKey]uint64
}

type hnswMeta struct {
	NextID  uint64
	IDToKey map[uint64]ChunkKey
}

// NewHNSWDenseStore builds a store rooted at baseDir. Pass "" for a
// memory-only store that never persists.
func NewHNSWDenseStore(baseDir string) *HNSWDenseStore {
	return &HNSWDenseStore{baseDir: baseDir, graphs: map[string]*workspaceGraph{}}
}

func newWorkspaceGraph() *workspaceGraph {
	g := hnsw.NewGraph[uint64]()
	g.M = 16
	g.EfSearch = 64
	g.Distance = hnsw.CosineDistance
	return &workspaceGraph{
		graph:   g,
		idToKey: map[uint64]ChunkKey{},
		keyToID: map[ChunkKey]uint64{},
	}
}

func (h *HNSWDenseStore) workspace(workspaceID string) *workspaceGraph {
	h.mu.Lock()
	defer h.mu.Unlock()
	wg, ok := h.graphs[workspaceID]
	if !ok {
		wg = newWorkspaceGraph()
		if h.baseDir != "" {
			if loaded, err := loadWorkspaceGraph(h.paths(workspaceID)); err == nil {
				wg = loaded
			}
		}
		h.graphs[workspaceID] = wg
	}
	return wg
}

func (h *HNSWDenseStore) paths(workspaceID string) (graphPath, metaPath string) {
	dir := filepath.Join(h.baseDir, workspaceID)
	return filepath.Join(dir, "dense.hnsw"), filepath.Join(dir, "dense.meta")
}

// Add inserts embeddings for the given chunk keys. Re-adding a key
// replaces its vector.
func (h *HNSWDenseStore) Add(ctx context.Context, workspaceID string, keys []ChunkKey, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("keys/vectors length mismatch: %d != %d", len(keys), len(vectors))
	}
	wg := h.workspace(workspaceID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := wg.keyToID[key]
		if ok {
			wg.graph.Delete(id)
		} else {
			id = wg.nextID
			wg.nextID++
			wg.keyToID[key] = id
			wg.idToKey[id] = key
		}
		wg.graph.Add(hnsw.MakeNode(id, vectors[i]))
	}
	return nil
}

// Search returns the k nearest chunks to the query embedding. Cosine
// distance is converted to a similarity score in [0, 1].
func (h *HNSWDenseStore) Search(ctx context.Context, workspaceID string, embedding []float32, k int) ([]*DenseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 || k <= 0 {
		return []*DenseResult{}, nil
	}
	wg := h.workspace(workspaceID)
	h.mu.RLock()
	defer h.mu.RUnlock()
	if wg.graph.Len() == 0 {
		return []*DenseResult{}, nil
	}
	nodes := wg.graph.Search(embedding, k)
	results := make([]*DenseResult, 0, len(nodes))
	for _, node := range nodes {
		key, ok := wg.idToKey[node.Key]
		if !ok {
			continue
		}
		sim := 1 - hnsw.CosineDistance(embedding, node.Value)
		results = append(results, &DenseResult{Key: key, Score: float64(sim)})
	}
	return results, nil
}

// Count returns the number of stored vectors for a workspace.
func (h *HNSWDenseStore) Count(workspaceID string) int {
	wg := h.workspace(workspaceID)
	h.mu.RLock()
	defer h.mu.RUnlock()
	return wg.graph.Len()
}

// Save persists a workspace's graph and key mapping to disk.
func (h *HNSWDenseStore) Save(workspaceID string) error {
	if h.baseDir == "" {
		return nil
	}
	wg := h.workspace(workspaceID)
	graphPath, metaPath := h.paths(workspaceID)
	if err := os.MkdirAll(filepath.Dir(graphPath), 0o755); err != nil {
		return fmt.Errorf("create dense dir: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	gf, err := os.Create(graphPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	defer gf.Close()
	if err := wg.graph.Export(gf); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	mf, err := os.Create(metaPath)
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}
	defer mf.Close()
	meta := hnswMeta{NextID: wg.nextID, IDToKey: wg.idToKey}
	if err := gob.NewEncoder(mf).Encode(&meta); err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	return nil
}

func loadWorkspaceGraph(graphPath, metaPath string) (*workspaceGraph, error) {
	gf, err := os.Open(graphPath)
	if err != nil {
		return nil, err
	}
	defer gf.Close()
	wg := newWorkspaceGraph()
	if err := wg.graph.Import(gf); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}

	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, err
	}
	defer mf.Close()
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	wg.nextID = meta.NextID
	wg.idToKey = meta.IDToKey
	for id, key := range meta.IDToKey {
		wg.keyToID[key] = id
	}
	return wg, nil
}

// Close persists all loaded workspaces.
func (h *HNSWDenseStore) Close() error {
	h.mu.RLock()
	ids := make([]string, 0, len(h.graphs))
	for id := range h.graphs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	var first error
	for _, id := range ids {
		if err := h.Save(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}
