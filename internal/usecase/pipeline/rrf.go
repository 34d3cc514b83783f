package pipeline

import (
	"sort"

	"github.com/ragline/ragline/internal/domain/search/result"
)

// DefaultRRFK is the standard reciprocal rank fusion constant.
const DefaultRRFK = 60

// fuse merges ranked candidate lists with reciprocal rank fusion: each
// candidate contributes 1/(k+rank) per list it appears in, rank starting
// at 1. Ties break on contributing list count, then id, so fusion output
// is deterministic for identical inputs.
func fuse(lists [][]result.Candidate, k int) []result.Fused {
	if k <= 0 {
		k = DefaultRRFK
	}

	type acc struct {
		score    float64
		listHits int
		text     string
		metadata map[string]string
		source   result.Source
	}
	byID := make(map[string]*acc)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, c := range list {
			a, ok := byID[c.ID()]
			if !ok {
				a = &acc{source: c.Source()}
				byID[c.ID()] = a
				order = append(order, c.ID())
			} else if a.source != c.Source() {
				a.source = result.SourceBoth
			}
			a.score += 1.0 / float64(k+rank+1)
			a.listHits++
			if a.text == "" {
				a.text = c.Text()
			}
			if a.metadata == nil {
				a.metadata = c.Metadata()
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		ai, aj := byID[order[i]], byID[order[j]]
		if ai.score != aj.score {
			return ai.score > aj.score
		}
		if ai.listHits != aj.listHits {
			return ai.listHits > aj.listHits
		}
		return order[i] < order[j]
	})

	out := make([]result.Fused, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, result.NewFused(id, a.score, a.listHits, a.text, a.metadata, a.source))
	}
	return out
}
