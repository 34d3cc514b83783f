package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/filter"
	"github.com/ragline/ragline/internal/domain/search/mode"
	"github.com/ragline/ragline/internal/domain/search/result"
	"github.com/ragline/ragline/internal/domain/trace"
)

type stubDense struct {
	mu     sync.Mutex
	calls  int
	search func(ctx context.Context, query string, limit int, filters filter.Expression) ([]result.Candidate, error)
}

func (s *stubDense) Search(ctx context.Context, query string, limit int, filters filter.Expression) ([]result.Candidate, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.search(ctx, query, limit, filters)
}

func (s *stubDense) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubKeyword struct {
	mu     sync.Mutex
	calls  int
	search func(ctx context.Context, query string, limit int) ([]result.Candidate, error)
}

func (s *stubKeyword) Search(ctx context.Context, query string, limit int) ([]result.Candidate, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.search(ctx, query, limit)
}

func (s *stubKeyword) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubReranker struct {
	rerank func(ctx context.Context, query string, fused []result.Fused, limit int) ([]result.Ranked, error)
}

func (s *stubReranker) Rerank(ctx context.Context, query string, fused []result.Fused, limit int) ([]result.Ranked, error) {
	return s.rerank(ctx, query, fused, limit)
}

type memSink struct {
	mu     sync.Mutex
	traces []trace.Trace
}

func (m *memSink) Append(t trace.Trace) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces = append(m.traces, t)
}

func (m *memSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.traces)
}

func (m *memSink) last(t *testing.T) trace.Trace {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.traces) == 0 {
		t.Fatal("expected at least one trace")
	}
	return m.traces[len(m.traces)-1]
}

func denseOK(ids ...string) *stubDense {
	return &stubDense{search: func(context.Context, string, int, filter.Expression) ([]result.Candidate, error) {
		return denseList(ids...), nil
	}}
}

func keywordOK(ids ...string) *stubKeyword {
	return &stubKeyword{search: func(context.Context, string, int) ([]result.Candidate, error) {
		return keywordList(ids...), nil
	}}
}

func denseErr(err error) *stubDense {
	return &stubDense{search: func(context.Context, string, int, filter.Expression) ([]result.Candidate, error) {
		return nil, err
	}}
}

func keywordErr(err error) *stubKeyword {
	return &stubKeyword{search: func(context.Context, string, int) ([]result.Candidate, error) {
		return nil, err
	}}
}

func newService(dense DenseSearcher, keyword KeywordSearcher, reranker Reranker, sink TraceSink, cfg Config) *Service {
	return New(dense, keyword, reranker, sink, cfg, zap.NewNop())
}

func rankedIDs(rs []result.Ranked) []string {
	out := make([]string, len(rs))
	for i := range rs {
		out[i] = rs[i].ID()
	}
	return out
}

func hasStep(tr trace.Trace, name string) bool {
	for _, s := range tr.Steps() {
		if s.Name() == name {
			return true
		}
	}
	return false
}

func TestSearch_HybridSuccess(t *testing.T) {
	sink := &memSink{}
	svc := newService(denseOK("shared", "d1"), keywordOK("shared", "k1"), nil, sink, Config{})

	resp, err := svc.Search(context.Background(), Params{Query: "goroutines", Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if resp.Status != trace.StatusSuccess {
		t.Errorf("expected success, got %q", resp.Status)
	}
	if got := rankedIDs(resp.Results); len(got) == 0 || got[0] != "shared" {
		t.Errorf("expected shared ranked first, got %v", got)
	}
	if resp.Results[0].Source() != result.SourceBoth {
		t.Errorf("expected source both, got %q", resp.Results[0].Source())
	}
	if resp.TraceID == "" {
		t.Error("expected non-empty trace id")
	}

	tr := sink.last(t)
	if tr.Status() != trace.StatusSuccess {
		t.Errorf("trace status = %q", tr.Status())
	}
	for _, step := range []string{"dense_search", "keyword_search", "fusion"} {
		if !hasStep(tr, step) {
			t.Errorf("trace missing step %q", step)
		}
	}
}

func TestSearch_SingleBranchFailureDegrades(t *testing.T) {
	sink := &memSink{}
	svc := newService(denseErr(errors.New("vector store down")), keywordOK("k1", "k2"), nil, sink, Config{})

	resp, err := svc.Search(context.Background(), Params{Query: "channels"})
	if err != nil {
		t.Fatalf("expected degraded response, got error %v", err)
	}

	if resp.Status != trace.StatusDegraded {
		t.Errorf("expected degraded, got %q", resp.Status)
	}
	if got := rankedIDs(resp.Results); len(got) != 2 || got[0] != "k1" {
		t.Errorf("expected keyword results, got %v", got)
	}
	if tr := sink.last(t); tr.Status() != trace.StatusDegraded {
		t.Errorf("trace status = %q", tr.Status())
	}
}

func TestSearch_AllBranchesFailed(t *testing.T) {
	sink := &memSink{}
	svc := newService(denseErr(errors.New("dense down")), keywordErr(errors.New("keyword down")), nil, sink, Config{})

	_, err := svc.Search(context.Background(), Params{Query: "channels"})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}

	if tr := sink.last(t); tr.Status() != trace.StatusFailed {
		t.Errorf("trace status = %q", tr.Status())
	}
}

func TestSearch_KeywordModeNotReady(t *testing.T) {
	sink := &memSink{}
	dense := denseOK("d1")
	svc := newService(dense, keywordErr(domain.ErrNotReady), nil, sink, Config{})

	_, err := svc.Search(context.Background(), Params{Query: "channels", Mode: mode.Keyword})
	if !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if dense.callCount() != 0 {
		t.Errorf("dense branch ran %d times in keyword mode", dense.callCount())
	}
}

func TestSearch_SemanticModeSkipsKeyword(t *testing.T) {
	sink := &memSink{}
	keyword := keywordOK("k1")
	svc := newService(denseOK("d1", "d2"), keyword, nil, sink, Config{})

	resp, err := svc.Search(context.Background(), Params{Query: "channels", Mode: mode.Semantic})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if keyword.callCount() != 0 {
		t.Errorf("keyword branch ran %d times in semantic mode", keyword.callCount())
	}
	if got := rankedIDs(resp.Results); !equalStrings(got, []string{"d1", "d2"}) {
		t.Errorf("unexpected results %v", got)
	}
}

func TestSearch_RerankReorders(t *testing.T) {
	sink := &memSink{}
	reranker := &stubReranker{rerank: func(_ context.Context, _ string, fused []result.Fused, limit int) ([]result.Ranked, error) {
		// reverse the fused order
		out := make([]result.Ranked, 0, len(fused))
		for i := len(fused) - 1; i >= 0; i-- {
			f := fused[i]
			out = append(out, result.NewRanked(f.ID(), f.Text(), 1.0, f.Metadata(), f.Source()))
		}
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}}
	svc := newService(denseOK("a", "b"), keywordOK("a", "b"), reranker, sink, Config{RerankEnabled: true, RerankDepth: 10})

	resp, err := svc.Search(context.Background(), Params{Query: "channels", Rerank: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if resp.Status != trace.StatusSuccess {
		t.Errorf("expected success, got %q", resp.Status)
	}
	if got := rankedIDs(resp.Results); !equalStrings(got, []string{"b", "a"}) {
		t.Errorf("expected reranked order [b a], got %v", got)
	}
	if !hasStep(sink.last(t), "rerank") {
		t.Error("trace missing rerank step")
	}
}

func TestSearch_RerankFailureFallsBack(t *testing.T) {
	sink := &memSink{}
	reranker := &stubReranker{rerank: func(context.Context, string, []result.Fused, int) ([]result.Ranked, error) {
		return nil, domain.ErrRerankerUnavailable
	}}
	svc := newService(denseOK("a", "b"), keywordOK("b", "a"), reranker, sink, Config{RerankEnabled: true, RerankDepth: 10})

	resp, err := svc.Search(context.Background(), Params{Query: "channels", Rerank: true})
	if err != nil {
		t.Fatalf("expected fallback, got error %v", err)
	}

	if resp.Status != trace.StatusDegraded {
		t.Errorf("expected degraded, got %q", resp.Status)
	}
	// fused order survives the failed rerank
	if got := rankedIDs(resp.Results); len(got) != 2 {
		t.Errorf("expected 2 fused results, got %v", got)
	}
}

func TestSearch_RerankDisabledByRequest(t *testing.T) {
	sink := &memSink{}
	called := false
	reranker := &stubReranker{rerank: func(context.Context, string, []result.Fused, int) ([]result.Ranked, error) {
		called = true
		return nil, nil
	}}
	svc := newService(denseOK("a"), keywordOK("a"), reranker, sink, Config{RerankEnabled: true})

	resp, err := svc.Search(context.Background(), Params{Query: "channels", Rerank: false})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if called {
		t.Error("reranker ran despite rerank=false")
	}
	if resp.Status != trace.StatusSuccess {
		t.Errorf("expected success, got %q", resp.Status)
	}
}

func TestSearch_ValidationRejected(t *testing.T) {
	sink := &memSink{}
	svc := newService(denseOK(), keywordOK(), nil, sink, Config{})

	_, err := svc.Search(context.Background(), Params{Query: "   "})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}

	tr := sink.last(t)
	if tr.Status() != trace.StatusRejected {
		t.Errorf("trace status = %q", tr.Status())
	}
	if !hasStep(tr, "validate") {
		t.Error("rejected trace missing validate step")
	}
}

func TestSearch_CanceledContext(t *testing.T) {
	sink := &memSink{}
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	dense := &stubDense{search: func(ctx context.Context, _ string, _ int, _ filter.Expression) ([]result.Candidate, error) {
		return nil, block(ctx)
	}}
	keyword := &stubKeyword{search: func(ctx context.Context, _ string, _ int) ([]result.Candidate, error) {
		return nil, block(ctx)
	}}
	svc := newService(dense, keyword, nil, sink, Config{BranchTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Search(ctx, Params{Query: "channels"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.len() != 0 {
		t.Errorf("expected no trace for canceled request, got %d", sink.len())
	}
}

func TestSearch_KeywordFilteredByMetadata(t *testing.T) {
	cond, err := filter.NewMatch("library", "go")
	if err != nil {
		t.Fatal(err)
	}
	filters, err := filter.NewExpression([]filter.Condition{cond})
	if err != nil {
		t.Fatal(err)
	}

	keyword := &stubKeyword{search: func(context.Context, string, int) ([]result.Candidate, error) {
		return []result.Candidate{
			result.NewCandidate("go-doc", 2.0, "goroutines", map[string]string{"library": "go"}, result.SourceKeyword),
			result.NewCandidate("py-doc", 1.5, "coroutines", map[string]string{"library": "python"}, result.SourceKeyword),
		}, nil
	}}
	sink := &memSink{}
	svc := newService(denseOK(), keyword, nil, sink, Config{})

	resp, err := svc.Search(context.Background(), Params{Query: "concurrency", Filters: filters})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if got := rankedIDs(resp.Results); !equalStrings(got, []string{"go-doc"}) {
		t.Errorf("expected only go-doc, got %v", got)
	}
}

func TestSearch_EmptyCorpusIsSuccess(t *testing.T) {
	sink := &memSink{}
	svc := newService(denseOK(), keywordOK(), nil, sink, Config{})

	resp, err := svc.Search(context.Background(), Params{Query: "anything"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.Status != trace.StatusSuccess {
		t.Errorf("expected success, got %q", resp.Status)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %v", rankedIDs(resp.Results))
	}
}

func TestSearch_LimitApplied(t *testing.T) {
	sink := &memSink{}
	svc := newService(denseOK("a", "b", "c", "d", "e"), keywordOK("c", "f", "g"), nil, sink, Config{})

	resp, err := svc.Search(context.Background(), Params{Query: "channels", Limit: 3})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("expected 3 results, got %d", len(resp.Results))
	}
}

func TestSearch_BranchTimeoutDegrades(t *testing.T) {
	sink := &memSink{}
	dense := &stubDense{search: func(ctx context.Context, _ string, _ int, _ filter.Expression) ([]result.Candidate, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return denseList("late"), nil
		}
	}}
	svc := newService(dense, keywordOK("k1"), nil, sink, Config{BranchTimeout: 20 * time.Millisecond})

	resp, err := svc.Search(context.Background(), Params{Query: "channels"})
	if err != nil {
		t.Fatalf("expected degraded response, got error %v", err)
	}
	if resp.Status != trace.StatusDegraded {
		t.Errorf("expected degraded, got %q", resp.Status)
	}
	if got := rankedIDs(resp.Results); !equalStrings(got, []string{"k1"}) {
		t.Errorf("expected keyword results only, got %v", got)
	}
}
