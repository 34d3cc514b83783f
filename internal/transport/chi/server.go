// Package chi is the HTTP surface of the retrieval pipeline.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/filter"
	"github.com/ragline/ragline/internal/domain/search/mode"
	"github.com/ragline/ragline/internal/domain/search/result"
	"github.com/ragline/ragline/internal/domain/trace"
	"github.com/ragline/ragline/internal/repository/tracestore"
	healthuc "github.com/ragline/ragline/internal/usecase/health"
	ingestuc "github.com/ragline/ragline/internal/usecase/ingest"
	pipelineuc "github.com/ragline/ragline/internal/usecase/pipeline"
)

// Error response codes.
const (
	codeBadRequest           = "bad_request"
	codeInvalidQuery         = "invalid_query"
	codeNotReady             = "not_ready"
	codeRetrievalUnavailable = "retrieval_unavailable"
	codeEmbeddingProvider    = "embedding_provider_error"
	codeInternalError        = "internal_error"
)

// recentTracesInStats bounds the trace sample returned by GET /stats.
const recentTracesInStats = 10

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the pipeline over HTTP.
type Server struct {
	pipeline      *pipelineuc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	traces        *tracestore.Store
	updateSource  ingestuc.Source
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. updateSource backs POST /update;
// nil disables that endpoint.
func NewServer(
	pipeline *pipelineuc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	traces *tracestore.Store,
	updateSource ingestuc.Source,
	logger *zap.Logger,
) *Server {
	s := &Server{
		pipeline:     pipeline,
		ingest:       ingest,
		health:       health,
		traces:       traces,
		updateSource: updateSource,
		logger:       logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, codeNotReady),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, codeRetrievalUnavailable),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// Register mounts the API routes. Middleware is owned by the caller.
func (s *Server) Register(r chi.Router) {
	r.Post("/search", s.handleSearch)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/update", s.handleUpdate)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type searchRequest struct {
	Query   string            `json:"query"`
	Mode    string            `json:"mode"`
	Filters map[string]string `json:"filters"`
	TopK    int               `json:"top_k"`
	Limit   int               `json:"limit"`
	Rerank  *bool             `json:"rerank"` // absent means enabled
}

type searchResultItem struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	TraceID string             `json:"trace_id"`
	Status  string             `json:"status"`
	TookMS  int64              `json:"took_ms"`
	Results []searchResultItem `json:"results"`
}

// handleSearch handles POST /search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	filters, err := filtersFromRequest(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid filters: "+err.Error())
		return
	}

	rerank := true
	if req.Rerank != nil {
		rerank = *req.Rerank
	}

	resp, err := s.pipeline.Search(r.Context(), pipelineuc.Params{
		Query:   req.Query,
		Mode:    mode.Mode(req.Mode),
		Filters: filters,
		TopK:    req.TopK,
		Limit:   req.Limit,
		Rerank:  rerank,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, 0, len(resp.Results))
	for i := range resp.Results {
		items = append(items, rankedToItem(&resp.Results[i]))
	}

	writeJSON(w, http.StatusOK, searchResponse{
		TraceID: resp.TraceID,
		Status:  string(resp.Status),
		TookMS:  resp.Took.Milliseconds(),
		Results: items,
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

type traceStepItem struct {
	Name       string            `json:"name"`
	DurationMS int64             `json:"duration_ms"`
	Details    map[string]string `json:"details,omitempty"`
}

type traceItem struct {
	ID     string          `json:"id"`
	Query  string          `json:"query"`
	Status string          `json:"status"`
	TookMS int64           `json:"took_ms"`
	Steps  []traceStepItem `json:"steps"`
}

type statsResponse struct {
	Corpus       *ingestuc.Stats `json:"corpus"`
	Traces       traceStatsItem  `json:"traces"`
	RecentTraces []traceItem     `json:"recent_traces"`
}

type traceStatsItem struct {
	Capacity  int               `json:"capacity"`
	Retained  int               `json:"retained"`
	Appended  uint64            `json:"appended"`
	ByStatus  map[string]uint64 `json:"by_status"`
	AvgTookMS int64             `json:"avg_took_ms"`
	MaxTookMS int64             `json:"max_took_ms"`
}

// handleStats handles GET /stats: corpus state plus trace store summary
// and a small sample of recent traces.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	corpusStats, err := s.ingest.Stats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ts := s.traces.Stats()
	byStatus := make(map[string]uint64, len(ts.ByStatus))
	for k, v := range ts.ByStatus {
		byStatus[string(k)] = v
	}

	recent := s.traces.Recent(recentTracesInStats)
	recentItems := make([]traceItem, 0, len(recent))
	for i := range recent {
		recentItems = append(recentItems, traceToItem(&recent[i]))
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Corpus: corpusStats,
		Traces: traceStatsItem{
			Capacity:  ts.Capacity,
			Retained:  ts.Size,
			Appended:  ts.Appended,
			ByStatus:  byStatus,
			AvgTookMS: ts.AvgTotal.Milliseconds(),
			MaxTookMS: ts.MaxTotal.Milliseconds(),
		},
		RecentTraces: recentItems,
	})
}

type updateRequest struct {
	Clear bool `json:"clear"`
}

// handleUpdate handles POST /update: re-ingest from the configured source.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.updateSource == nil {
		writeError(w, http.StatusNotImplemented, codeBadRequest, "no ingest source configured")
		return
	}

	var req updateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	res, err := s.ingest.Run(r.Context(), s.updateSource, req.Clear)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func rankedToItem(r *result.Ranked) searchResultItem {
	return searchResultItem{
		ID:       r.ID(),
		Text:     r.Text(),
		Score:    r.Score(),
		Source:   string(r.Source()),
		Metadata: r.Metadata(),
	}
}

func traceToItem(t *trace.Trace) traceItem {
	steps := t.Steps()
	items := make([]traceStepItem, 0, len(steps))
	for i := range steps {
		items = append(items, traceStepItem{
			Name:       steps[i].Name(),
			DurationMS: steps[i].Duration().Milliseconds(),
			Details:    steps[i].Details(),
		})
	}
	return traceItem{
		ID:     t.ID(),
		Query:  t.Query(),
		Status: string(t.Status()),
		TookMS: t.Total().Milliseconds(),
		Steps:  items,
	}
}

// filtersFromRequest builds a conjunction filter from a flat key/value
// map. Keys are processed in sorted order so validation errors are
// deterministic.
func filtersFromRequest(raw map[string]string) (filter.Expression, error) {
	if len(raw) == 0 {
		return filter.Expression{}, nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]filter.Condition, 0, len(keys))
	for _, k := range keys {
		c, err := filter.NewMatch(k, raw[k])
		if err != nil {
			return filter.Expression{}, err
		}
		conds = append(conds, c)
	}
	return filter.NewExpression(conds)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrNotReady,
		domain.ErrRetrievalUnavailable,
		domain.ErrEmbeddingProvider,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
