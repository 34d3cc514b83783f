package pipeline

import (
	"math"
	"testing"

	"github.com/ragline/ragline/internal/domain/search/result"
)

func candidate(id string, source result.Source) result.Candidate {
	return result.NewCandidate(id, 1.0, "text for "+id, map[string]string{"id": id}, source)
}

func denseList(ids ...string) []result.Candidate {
	out := make([]result.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, candidate(id, result.SourceDense))
	}
	return out
}

func keywordList(ids ...string) []result.Candidate {
	out := make([]result.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, candidate(id, result.SourceKeyword))
	}
	return out
}

func fusedIDs(fused []result.Fused) []string {
	out := make([]string, len(fused))
	for i := range fused {
		out[i] = fused[i].ID()
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestFuse_SingleList(t *testing.T) {
	fused := fuse([][]result.Candidate{denseList("a", "b", "c")}, 60)

	if got, want := fusedIDs(fused), []string{"a", "b", "c"}; !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	// rank 1 contributes 1/(60+1)
	if !approx(fused[0].Score(), 1.0/61) {
		t.Errorf("rank 1 score = %v, want 1/61", fused[0].Score())
	}
	if !approx(fused[1].Score(), 1.0/62) {
		t.Errorf("rank 2 score = %v, want 1/62", fused[1].Score())
	}
	if fused[0].Source() != result.SourceDense {
		t.Errorf("unexpected source %q", fused[0].Source())
	}
}

func TestFuse_OverlapSumsContributions(t *testing.T) {
	fused := fuse([][]result.Candidate{
		denseList("shared", "d1"),
		keywordList("shared", "k1"),
	}, 60)

	if fused[0].ID() != "shared" {
		t.Fatalf("expected shared first, got %v", fusedIDs(fused))
	}
	if !approx(fused[0].Score(), 2.0/61) {
		t.Errorf("shared score = %v, want 2/61", fused[0].Score())
	}
	if fused[0].Source() != result.SourceBoth {
		t.Errorf("expected source both, got %q", fused[0].Source())
	}
	if fused[0].Lists() != 2 {
		t.Errorf("expected 2 contributing lists, got %d", fused[0].Lists())
	}

	// d1 and k1 both sit at rank 2 of one list
	for i := 1; i < len(fused); i++ {
		if !approx(fused[i].Score(), 1.0/62) {
			t.Errorf("%s score = %v, want 1/62", fused[i].ID(), fused[i].Score())
		}
		if fused[i].Lists() != 1 {
			t.Errorf("%s lists = %d, want 1", fused[i].ID(), fused[i].Lists())
		}
	}
}

func TestFuse_TieBreaksOnListCountThenID(t *testing.T) {
	// "z" and "x" sit at rank 2 of one list each: identical score,
	// identical list count. The remaining tie must break on id.
	fused := fuse([][]result.Candidate{
		denseList("two", "z"),
		keywordList("a", "x", "two"),
	}, 60)

	ids := fusedIDs(fused)
	if ids[0] != "two" {
		t.Fatalf("expected two first, got %v", ids)
	}
	xPos, zPos := -1, -1
	for i, id := range ids {
		switch id {
		case "x":
			xPos = i
		case "z":
			zPos = i
		}
	}
	if xPos == -1 || zPos == -1 || xPos > zPos {
		t.Errorf("expected x before z on id tie-break, got %v", ids)
	}
}

func TestFuse_Deterministic(t *testing.T) {
	lists := [][]result.Candidate{
		denseList("a", "b", "c", "d"),
		keywordList("c", "e", "a", "f"),
	}
	first := fusedIDs(fuse(lists, 60))
	for i := 0; i < 20; i++ {
		if got := fusedIDs(fuse(lists, 60)); !equalStrings(got, first) {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
}

func TestFuse_EmptyInput(t *testing.T) {
	if got := fuse(nil, 60); len(got) != 0 {
		t.Errorf("expected empty fusion for nil input, got %d", len(got))
	}
	if got := fuse([][]result.Candidate{{}, {}}, 60); len(got) != 0 {
		t.Errorf("expected empty fusion for empty lists, got %d", len(got))
	}
}

func TestFuse_NonPositiveKUsesDefault(t *testing.T) {
	withDefault := fuse([][]result.Candidate{denseList("a")}, 0)
	explicit := fuse([][]result.Candidate{denseList("a")}, DefaultRRFK)

	if !approx(withDefault[0].Score(), explicit[0].Score()) {
		t.Errorf("k=0 score %v != default-k score %v", withDefault[0].Score(), explicit[0].Score())
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
