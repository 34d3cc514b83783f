package db

import "github.com/ragline/ragline/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	Filters   filter.Expression
	Vector    []float32
	K         int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Score is a similarity in [0,1]
// derived from the cosine distance reported by the index (see
// parseKNNResult in the redis driver).
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
