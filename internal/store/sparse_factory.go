package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// Sparse backend names accepted in configuration.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBleve  = "bleve"
)

// NewSparseIndex builds a sparse index of the named backend. dir is the
// workspace data directory for persistent backends and is ignored by the
// memory backend.
func NewSparseIndex(backend, dir string, cfg SparseConfig) (SparseIndex, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemorySparseIndex(cfg), nil
	case BackendSQLite:
		return NewSQLiteSparseIndex(filepath.Join(dir, "sparse.db"), cfg)
	case BackendBleve:
		return NewBleveSparseIndex(filepath.Join(dir, "sparse.bleve"), cfg)
	default:
		return nil, fmt.Errorf("unknown sparse backend %q", backend)
	}
}

// WorkspaceSparse hands out one sparse index per workspace, creating
// instances lazily. Corpora of different tenants never share an index.
type WorkspaceSparse struct {
	backend string
	baseDir string
	cfg     SparseConfig

	mu      sync.Mutex
	indexes map[string]SparseIndex
}

// NewWorkspaceSparse builds a provider rooted at baseDir. Each workspace
// gets a subdirectory named after its ID.
func NewWorkspaceSparse(backend, baseDir string, cfg SparseConfig) *WorkspaceSparse {
	return &WorkspaceSparse{
		backend: backend,
		baseDir: baseDir,
		cfg:     cfg,
		indexes: map[string]SparseIndex{},
	}
}

// Get returns the workspace's index, creating it on first use.
func (w *WorkspaceSparse) Get(ctx context.Context, workspaceID string) (SparseIndex, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace id required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if idx, ok := w.indexes[workspaceID]; ok {
		return idx, nil
	}
	idx, err := NewSparseIndex(w.backend, filepath.Join(w.baseDir, workspaceID), w.cfg)
	if err != nil {
		return nil, fmt.Errorf("sparse index for workspace %s: %w", workspaceID, err)
	}
	w.indexes[workspaceID] = idx
	return idx, nil
}

// Close closes all open indexes. The first error wins.
func (w *WorkspaceSparse) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var first error
	for id, idx := range w.indexes {
		if err := idx.Close(); err != nil && first == nil {
			first = fmt.Errorf("close index %s: %w", id, err)
		}
		delete(w.indexes, id)
	}
	return first
}
