// Package mcp exposes the retrieval pipeline to MCP clients over stdio.
// Two tools are registered: retrieve_context runs the full pipeline,
// workspace_status reports index health.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/complyra/retrieval/internal/pipeline"
	"github.com/complyra/retrieval/internal/store"
	"github.com/complyra/retrieval/internal/telemetry"
	"github.com/complyra/retrieval/pkg/version"
)

// Server bridges MCP clients with the retrieval engine.
type Server struct {
	mcp      *mcp.Server
	sparse   *store.WorkspaceSparse
	docs     store.DocumentStore
	recorder *telemetry.Recorder
	logger   *slog.Logger

	// engine is swappable for config hot reload.
	mu     sync.RWMutex
	engine *pipeline.Engine
}

// SetEngine replaces the engine serving subsequent tool calls.
func (s *Server) SetEngine(engine *pipeline.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

func (s *Server) currentEngine() *pipeline.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RetrieveInput is the retrieve_context tool input.
type RetrieveInput struct {
	Query       string `json:"query" jsonschema:"the retrieval query"`
	WorkspaceID string `json:"workspace_id" jsonschema:"workspace whose corpus to search"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of context blocks, default 10"`
	Expand      bool   `json:"expand,omitempty" jsonschema:"merge adjacent chunks into coherent passages"`
}

// RetrieveChunk is one context block in the tool output.
type RetrieveChunk struct {
	SourceID    string   `json:"source_id"`
	Position    int      `json:"position"`
	Content     string   `json:"content"`
	HeadingPath []string `json:"heading_path,omitempty"`
	IsExpanded  bool     `json:"is_expanded,omitempty"`
	MergedCount int      `json:"merged_count,omitempty"`
}

// RetrieveOutput is the retrieve_context tool output.
type RetrieveOutput struct {
	Chunks  []RetrieveChunk  `json:"chunks" jsonschema:"ranked context blocks"`
	Metrics pipeline.Metrics `json:"metrics" jsonschema:"pipeline metrics for this call"`
}

// StatusInput is the workspace_status tool input.
type StatusInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"workspace to inspect"`
}

// StatusOutput is the workspace_status tool output.
type StatusOutput struct {
	WorkspaceID   string             `json:"workspace_id"`
	ChunkCount    int                `json:"chunk_count"`
	DocumentCount int                `json:"document_count"`
	TermCount     int                `json:"term_count"`
	Telemetry     telemetry.Snapshot `json:"telemetry"`
}

// NewServer wires the MCP surface over an engine.
func NewServer(engine *pipeline.Engine, sparse *store.WorkspaceSparse, docs store.DocumentStore, recorder *telemetry.Recorder, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if sparse == nil {
		return nil, fmt.Errorf("sparse index provider is required")
	}
	if docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if recorder == nil {
		recorder = telemetry.NewRecorder(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   engine,
		sparse:   sparse,
		docs:     docs,
		recorder: recorder,
		logger:   logger,
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "complyra-retrieval",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Retrieve the most relevant document context for a query. Fuses lexical and semantic search, filters low-quality chunks, and optionally merges adjacent chunks into coherent passages.",
	}, s.retrieveHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "workspace_status",
		Description: "Report index statistics and recent query telemetry for a workspace. Use to verify a corpus is indexed before retrieving.",
	}, s.statusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

func (s *Server) retrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	if input.Query == "" {
		return nil, RetrieveOutput{}, NewInvalidParamsError("query parameter is required")
	}
	if input.WorkspaceID == "" {
		return nil, RetrieveOutput{}, NewInvalidParamsError("workspace_id parameter is required")
	}

	res, err := s.currentEngine().RetrieveContext(ctx, input.Query, input.WorkspaceID, pipeline.Options{
		Limit:  input.Limit,
		Expand: input.Expand,
	})
	if err != nil {
		return nil, RetrieveOutput{}, MapError(err)
	}

	out := RetrieveOutput{
		Chunks:  make([]RetrieveChunk, len(res.Chunks)),
		Metrics: res.Metrics,
	}
	for i, c := range res.Chunks {
		out.Chunks[i] = RetrieveChunk{
			SourceID:    c.SourceID,
			Position:    c.Position,
			Content:     c.Content,
			HeadingPath: c.HeadingPath,
			IsExpanded:  c.IsExpanded,
			MergedCount: c.MergedCount,
		}
	}
	return nil, out, nil
}

func (s *Server) statusHandler(ctx context.Context, _ *mcp.CallToolRequest, input StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	if input.WorkspaceID == "" {
		return nil, StatusOutput{}, NewInvalidParamsError("workspace_id parameter is required")
	}

	out := StatusOutput{
		WorkspaceID: input.WorkspaceID,
		Telemetry:   s.recorder.Snapshot(),
	}
	if n, err := s.docs.Count(ctx, input.WorkspaceID); err == nil {
		out.ChunkCount = n
	}
	if idx, err := s.sparse.Get(ctx, input.WorkspaceID); err == nil {
		stats := idx.Stats()
		out.DocumentCount = stats.DocumentCount
		out.TermCount = stats.TermCount
	}
	return nil, out, nil
}

// Serve runs the server over stdio until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
