// Package pipeline orchestrates hybrid retrieval: concurrent dense and
// keyword branches, reciprocal rank fusion, and an optional rerank pass.
// Partial failures degrade the response instead of failing it; only
// losing every branch fails a request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/filter"
	"github.com/ragline/ragline/internal/domain/search/mode"
	"github.com/ragline/ragline/internal/domain/search/request"
	"github.com/ragline/ragline/internal/domain/search/result"
	"github.com/ragline/ragline/internal/domain/trace"
	"github.com/ragline/ragline/internal/metrics"
)

// DefaultBranchTimeout bounds each retrieval branch when unconfigured.
const DefaultBranchTimeout = 2 * time.Second

// Config holds orchestrator tuning.
type Config struct {
	BranchTimeout time.Duration
	RRFK          int
	RerankDepth   int
	RerankEnabled bool
}

// Params are the raw search inputs before validation.
type Params struct {
	Query   string
	Mode    mode.Mode
	Filters filter.Expression
	TopK    int
	Limit   int
	Rerank  bool
}

// Response is the outcome of one pipeline invocation.
type Response struct {
	TraceID string
	Status  trace.Status
	Results []result.Ranked
	Took    time.Duration
}

// Service runs the retrieval pipeline.
type Service struct {
	dense    DenseSearcher
	keyword  KeywordSearcher
	reranker Reranker
	traces   TraceSink
	cfg      Config
	logger   *zap.Logger
}

// New creates the pipeline orchestrator. reranker may be nil; rerank
// requests are then served with fused ordering.
func New(
	dense DenseSearcher,
	keyword KeywordSearcher,
	reranker Reranker,
	traces TraceSink,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.BranchTimeout <= 0 {
		cfg.BranchTimeout = DefaultBranchTimeout
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.RerankDepth <= 0 {
		cfg.RerankDepth = request.DefaultTopK / 2
	}
	return &Service{
		dense:    dense,
		keyword:  keyword,
		reranker: reranker,
		traces:   traces,
		cfg:      cfg,
		logger:   logger,
	}
}

// branchOutcome carries one retrieval branch's result across the
// goroutine boundary.
type branchOutcome struct {
	candidates []result.Candidate
	err        error
	took       time.Duration
}

// Search runs validation, retrieval, fusion, and rerank for one query.
//
// Error contract: validation failures return domain.ErrInvalidQuery; an
// unbuilt index returns domain.ErrNotReady; losing every retrieval branch
// returns domain.ErrRetrievalUnavailable. A single lost branch or a
// failed rerank degrades the response but does not error. A canceled
// parent context returns ctx.Err() and records no trace.
func (s *Service) Search(ctx context.Context, p Params) (*Response, error) {
	req, err := request.New(p.Query, p.Mode, p.Filters, p.TopK, p.Limit, p.Rerank)
	if err != nil {
		s.reject(p, err)
		return nil, err
	}

	tr := trace.New(uuid.NewString(), req.Query())

	dense, keyword, err := s.retrieve(ctx, tr, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.finish(tr, req, trace.StatusFailed)
		return nil, err
	}
	degraded := dense.err != nil || keyword.err != nil

	fused := s.fusion(tr, req, dense.candidates, keyword.candidates)

	ranked, fellBack := s.rank(ctx, tr, req, fused)
	if fellBack {
		degraded = true
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	status := trace.StatusSuccess
	if degraded {
		status = trace.StatusDegraded
	}
	s.finish(tr, req, status)

	return &Response{
		TraceID: tr.ID(),
		Status:  status,
		Results: ranked,
		Took:    tr.Total(),
	}, nil
}

// retrieve runs the branches the mode asks for. The returned error is
// non-nil only when the request cannot be served at all: every branch
// failed, or the only branch of a single-branch mode failed.
func (s *Service) retrieve(ctx context.Context, tr *trace.Trace, req request.Request) (dense, keyword branchOutcome, err error) {
	runDense := req.Mode() != mode.Keyword
	runKeyword := req.Mode() != mode.Semantic

	g, gctx := errgroup.WithContext(ctx)
	if runDense {
		g.Go(func() error {
			dense = s.runBranch(gctx, "dense_search", func(bctx context.Context) ([]result.Candidate, error) {
				return s.dense.Search(bctx, req.Query(), req.TopK(), req.Filters())
			})
			return nil
		})
	}
	if runKeyword {
		g.Go(func() error {
			keyword = s.runBranch(gctx, "keyword_search", func(bctx context.Context) ([]result.Candidate, error) {
				out, kerr := s.keyword.Search(bctx, req.Query(), req.TopK())
				if kerr != nil {
					return nil, kerr
				}
				return filterCandidates(out, req.Filters()), nil
			})
			return nil
		})
	}
	_ = g.Wait() // branch errors are carried in the outcomes

	if ctx.Err() != nil {
		return dense, keyword, ctx.Err()
	}

	s.recordBranch(tr, "dense_search", runDense, dense)
	s.recordBranch(tr, "keyword_search", runKeyword, keyword)

	denseFailed := runDense && dense.err != nil
	keywordFailed := runKeyword && keyword.err != nil
	if (!runDense || denseFailed) && (!runKeyword || keywordFailed) {
		err = errors.Join(dense.err, keyword.err)
		if !errors.Is(err, domain.ErrRetrievalUnavailable) && !errors.Is(err, domain.ErrNotReady) {
			err = fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
		}
		return dense, keyword, err
	}
	return dense, keyword, nil
}

// runBranch executes one retrieval branch under its own timeout and
// normalizes failures into BranchError.
func (s *Service) runBranch(
	ctx context.Context,
	name string,
	fn func(ctx context.Context) ([]result.Candidate, error),
) branchOutcome {
	bctx, cancel := context.WithTimeout(ctx, s.cfg.BranchTimeout)
	defer cancel()

	start := time.Now()
	candidates, err := fn(bctx)
	took := time.Since(start)

	if err != nil {
		reason := "error"
		var timeout time.Duration
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			reason = "timeout"
			timeout = s.cfg.BranchTimeout
		}
		metrics.BranchFailuresTotal.WithLabelValues(name, reason).Inc()
		return branchOutcome{err: domain.NewBranchError(name, timeout, err), took: took}
	}
	return branchOutcome{candidates: candidates, took: took}
}

func (s *Service) recordBranch(tr *trace.Trace, name string, ran bool, out branchOutcome) {
	if !ran {
		return
	}
	details := map[string]string{"candidates": strconv.Itoa(len(out.candidates))}
	if out.err != nil {
		details = map[string]string{"error": out.err.Error()}
		s.logger.Warn("Retrieval branch failed", zap.String("branch", name), zap.Error(out.err))
	}
	tr.AddStep(name, out.took, details)
	metrics.PipelineStageDuration.WithLabelValues(name).Observe(out.took.Seconds())
}

func (s *Service) fusion(tr *trace.Trace, req request.Request, dense, keyword []result.Candidate) []result.Fused {
	step := tr.Begin("fusion")
	start := time.Now()

	var lists [][]result.Candidate
	if dense != nil {
		lists = append(lists, dense)
	}
	if keyword != nil {
		lists = append(lists, keyword)
	}

	fused := fuse(lists, s.cfg.RRFK)
	if len(fused) > req.TopK() {
		fused = fused[:req.TopK()]
	}

	step.End(map[string]string{"fused": strconv.Itoa(len(fused))})
	metrics.PipelineStageDuration.WithLabelValues("fusion").Observe(time.Since(start).Seconds())
	return fused
}

// rank applies the rerank pass when requested, falling back to fused
// ordering on any reranker failure. The second return reports a fallback.
func (s *Service) rank(ctx context.Context, tr *trace.Trace, req request.Request, fused []result.Fused) ([]result.Ranked, bool) {
	rerankable := req.Rerank() && s.cfg.RerankEnabled && s.reranker != nil && len(fused) > 0
	if !rerankable {
		return fusedToRanked(fused, req.Limit()), false
	}

	depth := min(s.cfg.RerankDepth, len(fused))

	step := tr.Begin("rerank")
	start := time.Now()
	ranked, err := s.reranker.Rerank(ctx, req.Query(), fused[:depth], req.Limit())
	metrics.PipelineStageDuration.WithLabelValues("rerank").Observe(time.Since(start).Seconds())

	if err != nil {
		step.End(map[string]string{"error": err.Error()})
		s.logger.Warn("Rerank failed, serving fused order", zap.Error(err))
		metrics.RerankFallbacksTotal.Inc()
		return fusedToRanked(fused, req.Limit()), true
	}

	step.End(map[string]string{"reranked": strconv.Itoa(len(ranked))})
	return ranked, false
}

// reject records a validation failure as a minimal trace so rejected
// requests stay visible in diagnostics.
func (s *Service) reject(p Params, err error) {
	tr := trace.New(uuid.NewString(), p.Query)
	tr.AddStep("validate", 0, map[string]string{"error": err.Error()})
	tr.Finish(trace.StatusRejected)
	s.traces.Append(*tr)
	metrics.SearchRequestsTotal.WithLabelValues(resolveMode(p.Mode), string(trace.StatusRejected)).Inc()
}

func (s *Service) finish(tr *trace.Trace, req request.Request, status trace.Status) {
	tr.Finish(status)
	s.traces.Append(*tr)
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode()), string(status)).Inc()
}

// resolveMode keeps the mode label bounded for rejected requests.
func resolveMode(m mode.Mode) string {
	switch {
	case m == "":
		return string(mode.Hybrid)
	case m.IsValid():
		return string(m)
	default:
		return "invalid"
	}
}

func fusedToRanked(fused []result.Fused, limit int) []result.Ranked {
	n := min(limit, len(fused))
	out := make([]result.Ranked, 0, n)
	for _, f := range fused[:n] {
		out = append(out, result.NewRanked(f.ID(), f.Text(), f.Score(), f.Metadata(), f.Source()))
	}
	return out
}

// filterCandidates applies metadata filters to keyword hits. The keyword
// index has no native filtering, so the conjunction is evaluated here.
func filterCandidates(candidates []result.Candidate, filters filter.Expression) []result.Candidate {
	if filters.IsEmpty() {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if filters.Matches(c.Metadata()) {
			out = append(out, c)
		}
	}
	if out == nil {
		return []result.Candidate{}
	}
	return out
}
