package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/complyra/retrieval/internal/config"
	"github.com/complyra/retrieval/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the retrieval pipeline to MCP clients over stdio",
		Long: `Serve runs an MCP server on stdio exposing the retrieve_context and
workspace_status tools. With --watch, the config file is hot-reloaded so
filter kill switches apply without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Hot-reload the config file on change")

	return cmd
}

func runServe(cmd *cobra.Command, watch bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	srv, err := mcp.NewServer(app.engine, app.sparse, app.docs, app.recorder, slog.Default())
	if err != nil {
		return err
	}

	if watch && configPath != "" {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		watcher := config.NewWatcher(configPath, func(next *config.Config) {
			// Engine construction is cheap; rebuild it against the same
			// stores so the new filter flags take effect.
			slog.Info("applying reloaded configuration")
			engine, err := app.reconfigure(next)
			if err != nil {
				slog.Warn("config apply failed, keeping previous engine", "error", err)
				return
			}
			srv.SetEngine(engine)
		}, slog.Default())
		go func() {
			if err := watcher.Run(watchCtx); err != nil && watchCtx.Err() == nil {
				slog.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	return srv.Serve(ctx)
}
