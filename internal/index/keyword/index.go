// Package keyword provides sparse lexical retrieval: a BM25 inverted index
// built as a pure function of a corpus snapshot, plus a holder that swaps
// rebuilt indexes atomically under live queries.
package keyword

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ragline/ragline/internal/domain/passage"
	"github.com/ragline/ragline/internal/domain/search/result"
)

// BM25 parameters (standard Robertson/Walker values).
const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	ord int // snapshot insertion position
	tf  int
}

// Index is an immutable BM25 index over one corpus snapshot.
type Index struct {
	snap     *passage.Snapshot
	postings map[string][]posting
	docLens  []int
	avgdl    float64
}

// Build constructs the inverted postings and per-document length statistics
// for a snapshot. It never mutates incrementally; re-ingestion builds a
// fresh index off to the side.
func Build(snap *passage.Snapshot) *Index {
	ix := &Index{
		snap:     snap,
		postings: make(map[string][]posting),
		docLens:  make([]int, snap.Len()),
	}

	var totalLen int
	for ord := 0; ord < snap.Len(); ord++ {
		tokens := Tokenize(snap.At(ord).Text())
		ix.docLens[ord] = len(tokens)
		totalLen += len(tokens)

		tfs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tfs[tok]++
		}
		for term, tf := range tfs {
			ix.postings[term] = append(ix.postings[term], posting{ord: ord, tf: tf})
		}
	}
	if snap.Len() > 0 {
		ix.avgdl = float64(totalLen) / float64(snap.Len())
	}
	return ix
}

// Version returns the underlying snapshot version.
func (ix *Index) Version() uint64 { return ix.snap.Version() }

// Len returns the number of indexed passages.
func (ix *Index) Len() int { return ix.snap.Len() }

// Search scores every passage sharing at least one token with the query
// and returns the top limit candidates by BM25 score descending. Ties are
// broken by snapshot insertion order, so identical inputs always produce
// identical output. Only positive scores are returned; an empty query
// yields an empty list.
func (ix *Index) Search(query string, limit int) []result.Candidate {
	terms := Tokenize(query)
	if len(terms) == 0 || limit <= 0 || ix.snap.Len() == 0 {
		return []result.Candidate{}
	}

	seen := make(map[string]bool, len(terms))
	scores := make(map[int]float64)
	n := float64(ix.snap.Len())

	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		plist := ix.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			dl := float64(ix.docLens[p.ord])
			tf := float64(p.tf)
			norm := tf * (k1 + 1) / (tf + k1*(1-b+b*dl/ix.avgdl))
			scores[p.ord] += idf * norm
		}
	}

	ords := make([]int, 0, len(scores))
	for ord, score := range scores {
		if score > 0 {
			ords = append(ords, ord)
		}
	}
	sort.Slice(ords, func(i, j int) bool {
		si, sj := scores[ords[i]], scores[ords[j]]
		if si != sj {
			return si > sj
		}
		return ords[i] < ords[j]
	})
	if len(ords) > limit {
		ords = ords[:limit]
	}

	out := make([]result.Candidate, 0, len(ords))
	for _, ord := range ords {
		p := ix.snap.At(ord)
		out = append(out, result.NewCandidate(
			p.ID(), scores[ord], p.Text(), p.Metadata(), result.SourceKeyword,
		))
	}
	return out
}

// Tokenize lower-cases the input and splits it on any rune that is not a
// letter or digit. Queries and passages must tokenize identically.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
