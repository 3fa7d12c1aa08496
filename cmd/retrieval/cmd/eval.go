package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/complyra/retrieval/internal/eval"
	"github.com/complyra/retrieval/internal/output"
	"github.com/complyra/retrieval/internal/pipeline"
)

func newEvalCmd() *cobra.Command {
	var workspaceID string
	var serviceURL string
	var metrics []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "eval [samples.jsonl]",
		Short: "Score retrieval quality through the RAGAS evaluation service",
		Long: `Eval reads question/answer samples from a JSONL file, runs each
question through the retrieval pipeline to collect contexts, and sends
the batch to the evaluation service for scoring.

Each line is an object with "question", "answer" and optionally
"ground_truth". Lines that already carry "contexts" are scored as-is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, args[0], workspaceID, serviceURL, metrics, jsonOut)
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace ID (required)")
	cmd.Flags().StringVar(&serviceURL, "service", "", "Evaluation service URL (default from config)")
	cmd.Flags().StringSliceVar(&metrics, "metrics", nil, "Metrics to compute (default service set)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")
	cmd.MarkFlagRequired("workspace")

	return cmd
}

func runEval(cmd *cobra.Command, samplePath, workspaceID, serviceURL string, metrics []string, jsonOut bool) error {
	out := output.New()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serviceURL == "" {
		serviceURL = cfg.Eval.BaseURL
	}

	samples, err := readSampleFile(samplePath)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no samples in %s", samplePath)
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	ctx := cmd.Context()
	for i := range samples {
		if len(samples[i].Contexts) > 0 {
			continue
		}
		res, err := app.engine.RetrieveContext(ctx, samples[i].Question, workspaceID, pipeline.Options{})
		if err != nil {
			return fmt.Errorf("retrieve contexts for sample %d: %w", i+1, err)
		}
		for _, c := range res.Chunks {
			samples[i].Contexts = append(samples[i].Contexts, c.Content)
		}
	}

	client := eval.NewClient(serviceURL, cfg.Eval.Timeout)
	result, err := client.EvaluateBatch(ctx, eval.BatchRequest{
		Samples: samples,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		out.Result("%s", data)
		return nil
	}

	out.Status("%d samples scored in %dms", result.TotalSamples, result.EvaluationTimeMS)
	for name, score := range result.Aggregate {
		if score == nil {
			out.Warning("%s: n/a", name)
			continue
		}
		out.Result("%s: %.3f", name, *score)
	}
	return nil
}

func readSampleFile(path string) ([]eval.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample file: %w", err)
	}
	defer f.Close()

	var samples []eval.Sample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var s eval.Sample
		if err := json.Unmarshal([]byte(text), &s); err != nil {
			return nil, fmt.Errorf("parse sample at line %d: %w", line, err)
		}
		if s.Question == "" {
			return nil, fmt.Errorf("sample at line %d has no question", line)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sample file: %w", err)
	}
	return samples, nil
}
