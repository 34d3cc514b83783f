// Package result defines the candidate and result types flowing through the
// retrieval pipeline: branch candidates, fused candidates, and final ranked
// results.
package result

import "maps"

// Source tags which retrieval branch produced a candidate.
type Source string

// Branch source tags.
const (
	SourceDense   Source = "dense"
	SourceKeyword Source = "keyword"
	// SourceBoth marks results whose id appeared in both branches.
	SourceBoth Source = "both"
)

// Candidate is a single hit from one retrieval branch. It lives only for
// the duration of one query.
type Candidate struct {
	id       string
	score    float64
	text     string
	metadata map[string]string
	source   Source
}

// NewCandidate creates a branch candidate. Metadata is not copied; branches
// hand over ownership.
func NewCandidate(id string, score float64, text string, metadata map[string]string, source Source) Candidate {
	return Candidate{id: id, score: score, text: text, metadata: metadata, source: source}
}

// ID returns the passage identifier.
func (c *Candidate) ID() string { return c.id }

// Score returns the branch-local relevance score. Dense scores are in
// [0,1]; keyword scores are raw BM25 values. The two scales are never
// compared directly -- fusion works on ranks.
func (c *Candidate) Score() float64 { return c.score }

// Text returns the passage content.
func (c *Candidate) Text() string { return c.text }

// Metadata returns the passage metadata.
func (c *Candidate) Metadata() map[string]string { return c.metadata }

// Source returns the producing branch.
func (c *Candidate) Source() Source { return c.source }

// Fused is a candidate after reciprocal-rank fusion across branches.
type Fused struct {
	id       string
	score    float64
	lists    int
	text     string
	metadata map[string]string
	source   Source
}

// NewFused creates a fused candidate. lists is the number of branch lists
// the id appeared in.
func NewFused(id string, score float64, lists int, text string, metadata map[string]string, source Source) Fused {
	return Fused{id: id, score: score, lists: lists, text: text, metadata: metadata, source: source}
}

// ID returns the passage identifier.
func (f *Fused) ID() string { return f.id }

// Score returns the accumulated reciprocal-rank score.
func (f *Fused) Score() float64 { return f.score }

// Lists returns how many branch lists contributed to the score.
func (f *Fused) Lists() int { return f.lists }

// Text returns the passage content.
func (f *Fused) Text() string { return f.text }

// Metadata returns the passage metadata.
func (f *Fused) Metadata() map[string]string { return f.metadata }

// Source returns the branch union tag (dense, keyword, or both).
func (f *Fused) Source() Source { return f.source }

// Ranked is the final output unit of the pipeline.
type Ranked struct {
	id       string
	text     string
	score    float64
	metadata map[string]string
	source   Source
}

// NewRanked creates a final ranked result.
func NewRanked(id, text string, score float64, metadata map[string]string, source Source) Ranked {
	return Ranked{id: id, text: text, score: score, metadata: metadata, source: source}
}

// ID returns the passage identifier.
func (r *Ranked) ID() string { return r.id }

// Text returns the passage content.
func (r *Ranked) Text() string { return r.text }

// Score returns the final relevance score (rerank score, or the fused
// score when the pipeline fell back to fused order).
func (r *Ranked) Score() float64 { return r.score }

// Metadata returns a copy of the passage metadata.
func (r *Ranked) Metadata() map[string]string {
	if r.metadata == nil {
		return nil
	}
	return maps.Clone(r.metadata)
}

// Source returns the branch union tag.
func (r *Ranked) Source() Source { return r.source }
