package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/complyra/retrieval/internal/output"
	"github.com/complyra/retrieval/internal/pipeline"
)

const timeRounding = time.Millisecond

func newSearchCmd() *cobra.Command {
	var workspaceID string
	var limit int
	var expand bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run the retrieval pipeline for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), workspaceID, limit, expand, jsonOut)
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum result count (default from config)")
	cmd.Flags().BoolVarP(&expand, "expand", "e", false, "Merge adjacent chunks into passages")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	cmd.MarkFlagRequired("workspace")

	return cmd
}

func runSearch(cmd *cobra.Command, query, workspaceID string, limit int, expand, jsonOut bool) error {
	out := output.New()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	res, err := app.engine.RetrieveContext(cmd.Context(), query, workspaceID, pipeline.Options{
		Limit:  limit,
		Expand: expand,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		out.Result("%s", data)
		return nil
	}

	if len(res.Chunks) == 0 {
		if res.Metrics.Degraded {
			out.Warning("no results (retrieval degraded)")
		} else {
			out.Status("no results")
		}
		return nil
	}

	for i, c := range res.Chunks {
		header := fmt.Sprintf("%d. %s #%d", i+1, c.SourceID, c.Position)
		if len(c.HeadingPath) > 0 {
			header += " (" + strings.Join(c.HeadingPath, " > ") + ")"
		}
		if c.IsExpanded {
			header += fmt.Sprintf(" [merged %d chunks]", c.MergedCount)
		}
		out.Result("%s", header)
		out.Result("%s\n", snippet(c.Content, 400))
	}
	out.Status("%d results in %s (sparse %d, dense %d, dropped %d)",
		len(res.Chunks), res.Metrics.Latency.Round(timeRounding),
		res.Metrics.SparseCandidates, res.Metrics.DenseCandidates,
		res.Metrics.Dropped)
	return nil
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
