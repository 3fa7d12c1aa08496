package cmd

import (
	"path/filepath"

	"github.com/complyra/retrieval/internal/config"
	"github.com/complyra/retrieval/internal/embed"
	"github.com/complyra/retrieval/internal/pipeline"
	"github.com/complyra/retrieval/internal/store"
	"github.com/complyra/retrieval/internal/telemetry"
)

// app holds the wired service stack shared by the commands.
type app struct {
	cfg      *config.Config
	sparse   *store.WorkspaceSparse
	dense    *store.HNSWDenseStore
	docs     *store.SQLiteDocumentStore
	embedder embed.Embedder
	engine   *pipeline.Engine
	recorder *telemetry.Recorder
}

func buildApp(cfg *config.Config) (*app, error) {
	sparseCfg := store.DefaultSparseConfig()
	sparseCfg.K1 = cfg.Sparse.K1
	sparseCfg.B = cfg.Sparse.B

	sparse := store.NewWorkspaceSparse(cfg.Sparse.Backend,
		filepath.Join(cfg.DataDir, "sparse"), sparseCfg)
	dense := store.NewHNSWDenseStore(filepath.Join(cfg.DataDir, "dense"))

	docs, err := store.NewSQLiteDocumentStore(filepath.Join(cfg.DataDir, "chunks.db"))
	if err != nil {
		sparse.Close()
		return nil, err
	}

	var embedder embed.Embedder
	switch cfg.Embed.Provider {
	case "ollama":
		embedder = embed.NewOllamaEmbedder(cfg.Embed.OllamaURL, cfg.Embed.Model,
			cfg.Embed.Dimensions, cfg.Embed.Timeout)
	default:
		embedder = embed.NewStaticEmbedder(cfg.Embed.Dimensions)
	}

	recorder := telemetry.NewRecorder(0)
	engine, err := pipeline.NewEngine(sparse, dense, docs, embedder,
		engineConfig(cfg), recorder, nil)
	if err != nil {
		docs.Close()
		sparse.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		sparse:   sparse,
		dense:    dense,
		docs:     docs,
		embedder: embedder,
		engine:   engine,
		recorder: recorder,
	}, nil
}

func engineConfig(cfg *config.Config) pipeline.EngineConfig {
	return pipeline.EngineConfig{
		DefaultLimit:   cfg.Engine.DefaultLimit,
		CandidateLimit: cfg.Engine.CandidateLimit,
		SearchTimeout:  cfg.Engine.SearchTimeout,
		Fusion: pipeline.NewFusion(cfg.Fusion.K, cfg.Fusion.Alpha,
			cfg.Fusion.BoostThreshold),
		Filter: pipeline.FilterConfig{
			Enabled:           cfg.Filter.EnableChunkFilter,
			CodeFilterEnabled: cfg.Filter.EnableCodeFilter,
			MinTokens:         cfg.Filter.MinTokens,
		},
		Expansion: pipeline.ExpansionConfig{
			Enabled:            cfg.Expand.Enabled,
			SiblingWindow:      cfg.Expand.SiblingWindow,
			MaxChunksPerSource: cfg.Expand.MaxChunksPerSource,
			Concurrency:        cfg.Expand.Concurrency,
			FetchTimeout:       cfg.Expand.FetchTimeout,
		},
	}
}

// reconfigure rebuilds the engine against the existing stores so new
// filter and fusion settings take effect on live servers.
func (a *app) reconfigure(cfg *config.Config) (*pipeline.Engine, error) {
	engine, err := pipeline.NewEngine(a.sparse, a.dense, a.docs, a.embedder,
		engineConfig(cfg), a.recorder, nil)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	a.engine = engine
	return engine, nil
}

func (a *app) close() {
	a.docs.Close()
	a.dense.Close()
	a.sparse.Close()
}
