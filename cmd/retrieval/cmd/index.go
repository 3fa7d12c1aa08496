package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/complyra/retrieval/internal/errors"
	"github.com/complyra/retrieval/internal/output"
	"github.com/complyra/retrieval/internal/store"
)

const embedBatchSize = 64

func newIndexCmd() *cobra.Command {
	var workspaceID string
	var inputPath string
	var skipDense bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index document chunks into a workspace",
		Long: `Index reads chunks from a JSONL file (one chunk object per line, with
source_id, position, content, and optional heading_path, estimated_tokens,
is_code, code_language, metadata fields) and loads them into the document
store, the sparse lexical index, and the dense vector index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, workspaceID, inputPath, skipDense)
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Chunk JSONL file (required)")
	cmd.Flags().BoolVar(&skipDense, "skip-dense", false, "Skip dense vector indexing")
	cmd.MarkFlagRequired("workspace")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runIndex(cmd *cobra.Command, workspaceID, inputPath string, skipDense bool) error {
	ctx := cmd.Context()
	out := output.New()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	chunks, err := readChunkFile(inputPath)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		out.Warning("no chunks found in %s", inputPath)
		return nil
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	// One indexer per workspace directory at a time.
	lock, err := store.NewIndexLock(cfg.DataDir)
	if err != nil {
		return err
	}
	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrIndexLocked
	}
	defer lock.Unlock()

	out.Status("indexing %d chunks into workspace %s", len(chunks), workspaceID)

	if err := app.docs.SaveChunks(ctx, workspaceID, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	idx, err := app.sparse.Get(ctx, workspaceID)
	if err != nil {
		return err
	}
	if err := idx.Index(ctx, chunks); err != nil {
		return fmt.Errorf("sparse index: %w", err)
	}
	out.Status("sparse index updated (%d documents)", idx.Stats().DocumentCount)

	if !skipDense {
		if err := indexDense(cmd, app, workspaceID, chunks); err != nil {
			// Sparse-only corpora still serve queries.
			out.Warning("dense indexing failed, corpus is sparse-only: %v", err)
		} else {
			out.Status("dense index updated (%d vectors)", app.dense.Count(workspaceID))
		}
	}

	out.Success("workspace %s ready", workspaceID)
	return nil
}

func indexDense(cmd *cobra.Command, app *app, workspaceID string, chunks []*store.Chunk) error {
	ctx := cmd.Context()
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		keys := make([]store.ChunkKey, len(batch))
		vectors := make([][]float32, len(batch))
		for i, c := range batch {
			vec, err := app.embedder.Embed(ctx, c.Content)
			if err != nil {
				return err
			}
			keys[i] = c.Key()
			vectors[i] = vec
		}
		if err := app.dense.Add(ctx, workspaceID, keys, vectors); err != nil {
			return err
		}
	}
	return app.dense.Save(workspaceID)
}

func readChunkFile(path string) ([]*store.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	defer f.Close()

	var chunks []*store.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var c store.Chunk
		if err := json.Unmarshal(text, &c); err != nil {
			return nil, fmt.Errorf("parse chunk at line %d: %w", line, err)
		}
		if c.SourceID == "" {
			return nil, fmt.Errorf("chunk at line %d missing source_id", line)
		}
		chunks = append(chunks, &c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	return chunks, nil
}
