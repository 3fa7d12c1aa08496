// Package eval is an HTTP client for the RAGAS evaluation microservice.
// The service scores retrieval quality (faithfulness, answer relevancy,
// context precision, context recall) out of band; the pipeline never
// blocks on it.
package eval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/complyra/retrieval/internal/errors"
)

// Metric names accepted by the evaluation service.
const (
	MetricFaithfulness     = "faithfulness"
	MetricAnswerRelevancy  = "answer_relevancy"
	MetricContextPrecision = "context_precision"
	MetricContextRecall    = "context_recall"
)

// DefaultMetrics is the service's default metric set.
var DefaultMetrics = []string{
	MetricFaithfulness,
	MetricAnswerRelevancy,
	MetricContextPrecision,
}

// Sample is one question/answer/contexts triple to score.
type Sample struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth,omitempty"`
}

// EvaluateRequest is the POST /evaluate body.
type EvaluateRequest struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth,omitempty"`
	Metrics     []string `json:"metrics,omitempty"`
}

// EvaluateResult is the POST /evaluate response. Metric values may be
// null when the service could not compute them.
type EvaluateResult struct {
	Metrics          map[string]*float64 `json:"metrics"`
	OverallScore     *float64            `json:"overall_score"`
	EvaluationTimeMS int                 `json:"evaluation_time_ms"`
	Timestamp        string              `json:"timestamp"`
}

// BatchRequest is the POST /evaluate/batch body.
type BatchRequest struct {
	Samples []Sample `json:"samples"`
	Metrics []string `json:"metrics,omitempty"`
}

// BatchResult is the POST /evaluate/batch response.
type BatchResult struct {
	Results          []map[string]*float64 `json:"results"`
	Aggregate        map[string]*float64   `json:"aggregate"`
	TotalSamples     int                   `json:"total_samples"`
	EvaluationTimeMS int                   `json:"evaluation_time_ms"`
	Timestamp        string                `json:"timestamp"`
}

// Health is the GET /health response.
type Health struct {
	Status           string   `json:"status"`
	LLMProvider      string   `json:"llm_provider"`
	LLMModel         string   `json:"llm_model"`
	AvailableMetrics []string `json:"available_metrics"`
}

// Client talks to one evaluation service instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client. Evaluations run an LLM per metric, so the
// timeout default is generous.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Evaluate scores a single sample.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	if len(req.Metrics) == 0 {
		req.Metrics = DefaultMetrics
	}
	var out EvaluateResult
	if err := c.post(ctx, "/evaluate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EvaluateBatch scores multiple samples in one call.
func (c *Client) EvaluateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Metrics) == 0 {
		req.Metrics = DefaultMetrics
	}
	var out BatchResult
	if err := c.post(ctx, "/evaluate/batch", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.CodeEvalUnavailable,
			"eval service unreachable", err).WithRetryable()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeEvalUnavailable,
			fmt.Sprintf("eval health returned status %d", resp.StatusCode))
	}
	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(errors.CodeEvalUnavailable,
			"decode health response", err)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal eval request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build eval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.CodeEvalUnavailable,
			"eval service unreachable", err).WithRetryable()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeEvalUnavailable,
			fmt.Sprintf("eval service returned status %d", resp.StatusCode)).
			WithDetail("path", path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.CodeEvalUnavailable,
			"decode eval response", err)
	}
	return nil
}
