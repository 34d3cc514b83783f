package ingest

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/domain/passage"
	"github.com/ragline/ragline/internal/index/keyword"
)

type fakeCorpus struct {
	ensureCalls int
	upserted    [][]passage.Passage
	clearCalls  int
	count       int

	ensureErr error
	upsertErr error
	clearErr  error
	countErr  error
}

func (f *fakeCorpus) EnsureIndex(context.Context) error {
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeCorpus) Upsert(_ context.Context, ps []passage.Passage) error {
	f.upserted = append(f.upserted, ps)
	return f.upsertErr
}

func (f *fakeCorpus) Clear(context.Context) error {
	f.clearCalls++
	return f.clearErr
}

func (f *fakeCorpus) Count(context.Context) (int, error) {
	return f.count, f.countErr
}

type staticSource struct {
	passages []passage.Passage
	err      error
}

func (s *staticSource) Load(context.Context) ([]passage.Passage, error) {
	return s.passages, s.err
}

func mustPassage(t *testing.T, id, text string) passage.Passage {
	t.Helper()
	p, err := passage.New(id, text, map[string]string{"library": "go"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRun_FirstIngest(t *testing.T) {
	corpus := &fakeCorpus{}
	holder := keyword.NewHolder()
	svc := New(corpus, holder, zap.NewNop())

	src := &staticSource{passages: []passage.Passage{
		mustPassage(t, "p1", "goroutines are lightweight"),
		mustPassage(t, "p2", "channels communicate"),
	}}

	res, err := svc.Run(context.Background(), src, false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.SnapshotVersion != 1 || res.Ingested != 2 || res.Cleared {
		t.Errorf("unexpected result %+v", res)
	}
	if corpus.ensureCalls != 1 || len(corpus.upserted) != 1 {
		t.Errorf("expected one EnsureIndex and one Upsert, got %d/%d", corpus.ensureCalls, len(corpus.upserted))
	}
	if corpus.clearCalls != 0 {
		t.Errorf("Clear called %d times without clear flag", corpus.clearCalls)
	}
	if !holder.Ready() || holder.Version() != 1 {
		t.Errorf("keyword index not published: ready=%v version=%d", holder.Ready(), holder.Version())
	}

	hits, err := holder.Search(context.Background(), "goroutines", 10)
	if err != nil {
		t.Fatalf("keyword search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID() != "p1" {
		t.Errorf("expected p1 searchable, got %d hits", len(hits))
	}
}

func TestRun_MergesByID(t *testing.T) {
	corpus := &fakeCorpus{}
	holder := keyword.NewHolder()
	svc := New(corpus, holder, zap.NewNop())

	first := &staticSource{passages: []passage.Passage{
		mustPassage(t, "p1", "goroutines are lightweight"),
		mustPassage(t, "p2", "channels communicate"),
	}}
	if _, err := svc.Run(context.Background(), first, false); err != nil {
		t.Fatal(err)
	}

	// p2 replaced, p3 added; p1 must survive
	second := &staticSource{passages: []passage.Passage{
		mustPassage(t, "p2", "buffered channels decouple senders"),
		mustPassage(t, "p3", "select waits on multiple channels"),
	}}
	res, err := svc.Run(context.Background(), second, false)
	if err != nil {
		t.Fatal(err)
	}

	if res.SnapshotVersion != 2 {
		t.Errorf("expected version 2, got %d", res.SnapshotVersion)
	}

	hits, err := holder.Search(context.Background(), "goroutines", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID() != "p1" {
		t.Errorf("expected p1 to survive the merge, got %d hits", len(hits))
	}

	hits, err = holder.Search(context.Background(), "buffered", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID() != "p2" {
		t.Errorf("expected p2 replaced with new text, got %d hits", len(hits))
	}
}

func TestRun_ClearResetsCorpus(t *testing.T) {
	corpus := &fakeCorpus{}
	holder := keyword.NewHolder()
	svc := New(corpus, holder, zap.NewNop())

	first := &staticSource{passages: []passage.Passage{
		mustPassage(t, "p1", "goroutines are lightweight"),
	}}
	if _, err := svc.Run(context.Background(), first, false); err != nil {
		t.Fatal(err)
	}

	second := &staticSource{passages: []passage.Passage{
		mustPassage(t, "p2", "channels communicate"),
	}}
	res, err := svc.Run(context.Background(), second, true)
	if err != nil {
		t.Fatal(err)
	}

	if !res.Cleared || res.SnapshotVersion != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if corpus.clearCalls != 1 {
		t.Errorf("expected one Clear call, got %d", corpus.clearCalls)
	}

	hits, err := holder.Search(context.Background(), "goroutines", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected p1 gone after clear, got %d hits", len(hits))
	}
}

func TestRun_LoadFailureLeavesIndexUntouched(t *testing.T) {
	corpus := &fakeCorpus{}
	holder := keyword.NewHolder()
	svc := New(corpus, holder, zap.NewNop())

	loadErr := errors.New("source unreachable")
	if _, err := svc.Run(context.Background(), &staticSource{err: loadErr}, false); !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}

	if holder.Ready() {
		t.Error("index published despite failed load")
	}
	if corpus.ensureCalls != 0 || len(corpus.upserted) != 0 {
		t.Error("corpus touched despite failed load")
	}
}

func TestRun_UpsertFailureSkipsSnapshot(t *testing.T) {
	corpus := &fakeCorpus{upsertErr: errors.New("write failed")}
	holder := keyword.NewHolder()
	svc := New(corpus, holder, zap.NewNop())

	src := &staticSource{passages: []passage.Passage{
		mustPassage(t, "p1", "goroutines are lightweight"),
	}}
	if _, err := svc.Run(context.Background(), src, false); err == nil {
		t.Fatal("expected error")
	}
	if holder.Ready() {
		t.Error("index published despite failed upsert")
	}
}

func TestStats(t *testing.T) {
	corpus := &fakeCorpus{count: 7}
	holder := keyword.NewHolder()
	svc := New(corpus, holder, zap.NewNop())

	src := &staticSource{passages: []passage.Passage{
		mustPassage(t, "p1", "goroutines are lightweight"),
		mustPassage(t, "p2", "channels communicate"),
	}}
	if _, err := svc.Run(context.Background(), src, false); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.SnapshotVersion != 1 || st.SnapshotLen != 2 || st.DenseCount != 7 || !st.Ready {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.LastIngest.IsZero() {
		t.Error("expected last ingest timestamp")
	}
}

func TestStats_CountFailure(t *testing.T) {
	corpus := &fakeCorpus{countErr: errors.New("connection refused")}
	svc := New(corpus, keyword.NewHolder(), zap.NewNop())

	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.DenseCount != -1 {
		t.Errorf("expected sentinel -1 dense count, got %d", st.DenseCount)
	}
	if st.Ready {
		t.Error("expected not ready before first ingest")
	}
}
