package dense

import (
	"context"
	"errors"
	"testing"

	"github.com/ragline/ragline/internal/db"
	"github.com/ragline/ragline/internal/domain"
	"github.com/ragline/ragline/internal/domain/search/filter"
	"github.com/ragline/ragline/internal/domain/search/result"
)

type stubStore struct {
	lastQuery *db.KNNQuery
	result    *db.SearchResult
	err       error
}

func (s *stubStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	s.lastQuery = q
	return s.result, s.err
}

type stubEmbedder struct {
	embedding []float32
	err       error
}

func (s *stubEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	if s.err != nil {
		return domain.EmbeddingResult{}, s.err
	}
	return domain.EmbeddingResult{Embedding: s.embedding}, nil
}

func TestSearch(t *testing.T) {
	store := &stubStore{result: &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{Key: "ragline:doc:p1", Score: 0.92, Fields: map[string]string{
				"__text": "goroutines are lightweight", "library": "go",
			}},
			{Key: "ragline:doc:p2", Score: 0.81, Fields: map[string]string{
				"__text": "channels communicate", "library": "go", "__vector": "\x00\x01",
			}},
		},
	}}
	embed := &stubEmbedder{embedding: []float32{0.1, 0.2, 0.3}}
	s := New(store, embed, "technical_docs", "ragline:doc:")

	got, err := s.Search(context.Background(), "concurrency", 10, filter.Expression{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID() != "p1" || got[1].ID() != "p2" {
		t.Errorf("expected prefix-stripped ids [p1 p2], got [%s %s]", got[0].ID(), got[1].ID())
	}
	if got[0].Score() != 0.92 {
		t.Errorf("expected provider order preserved, first score %f", got[0].Score())
	}
	if got[0].Text() != "goroutines are lightweight" {
		t.Errorf("unexpected text %q", got[0].Text())
	}
	if got[0].Metadata()["library"] != "go" {
		t.Errorf("unexpected metadata %v", got[0].Metadata())
	}
	if _, ok := got[1].Metadata()["__vector"]; ok {
		t.Error("raw vector bytes leaked into metadata")
	}
	if got[0].Source() != result.SourceDense {
		t.Errorf("unexpected source %q", got[0].Source())
	}

	q := store.lastQuery
	if q.IndexName != "technical_docs" || q.K != 10 {
		t.Errorf("unexpected KNN query %+v", q)
	}
	if len(q.Vector) != 3 {
		t.Errorf("expected query embedding forwarded, got %v", q.Vector)
	}
}

func TestSearch_EmbedFailure(t *testing.T) {
	embedErr := errors.New("provider 503")
	s := New(&stubStore{}, &stubEmbedder{err: embedErr}, "idx", "pfx:")

	_, err := s.Search(context.Background(), "q", 10, filter.Expression{})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if !errors.Is(err, embedErr) {
		t.Errorf("expected cause preserved, got %v", err)
	}
}

func TestSearch_KNNFailure(t *testing.T) {
	knnErr := errors.New("connection refused")
	s := New(&stubStore{err: knnErr}, &stubEmbedder{embedding: []float32{1}}, "idx", "pfx:")

	_, err := s.Search(context.Background(), "q", 10, filter.Expression{})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if !errors.Is(err, knnErr) {
		t.Errorf("expected cause preserved, got %v", err)
	}
}

func TestSearch_NoHits(t *testing.T) {
	s := New(&stubStore{result: &db.SearchResult{}}, &stubEmbedder{embedding: []float32{1}}, "idx", "pfx:")

	got, err := s.Search(context.Background(), "q", 10, filter.Expression{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestSearch_ForwardsFilters(t *testing.T) {
	cond, err := filter.NewMatch("library", "go")
	if err != nil {
		t.Fatal(err)
	}
	filters, err := filter.NewExpression([]filter.Condition{cond})
	if err != nil {
		t.Fatal(err)
	}

	store := &stubStore{result: &db.SearchResult{}}
	s := New(store, &stubEmbedder{embedding: []float32{1}}, "idx", "pfx:")

	if _, err := s.Search(context.Background(), "q", 10, filters); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if store.lastQuery.Filters.IsEmpty() {
		t.Error("expected filters forwarded to the KNN query")
	}
}
