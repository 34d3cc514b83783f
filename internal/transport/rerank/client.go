// Package rerank is the HTTP client for an external cross-encoder scoring
// service. A circuit breaker sits in front of the service so a flapping
// reranker degrades searches instead of slowing every request down.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
)

const defaultTimeout = 5 * time.Second

// Config holds the rerank service settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// breaker tuning; zero values fall back to gobreaker defaults
	MaxFailures uint32
	OpenFor     time.Duration
	Logger      *zap.Logger
}

// Client scores query/document pairs via the rerank service.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a rerank client with its circuit breaker.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:    "rerank",
		Timeout: cfg.OpenFor,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Rerank circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	if cfg.MaxFailures > 0 {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		}
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns one relevance score per document, in input order. All
// failures wrap domain.ErrRerankerUnavailable; the caller decides whether
// to fall back.
func (c *Client) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.score(ctx, query, documents)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRerankerUnavailable, err)
	}

	scores := res.([]float64)
	if len(scores) != len(documents) {
		return nil, fmt.Errorf("%w: got %d scores for %d documents",
			domain.ErrRerankerUnavailable, len(scores), len(documents))
	}
	return scores, nil
}

// Available reports whether the breaker admits requests. An open breaker
// means the reranker is down and searches should skip it up front.
func (c *Client) Available(_ context.Context) bool {
	return c.breaker.State() != gobreaker.StateOpen
}

func (c *Client) score(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("score request: status %d: %s", resp.StatusCode, snippet)
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}
	return parsed.Scores, nil
}
