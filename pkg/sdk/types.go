package sdk

// SearchRequest is the POST /search payload.
type SearchRequest struct {
	Query   string            `json:"query"`
	Mode    string            `json:"mode,omitempty"` // hybrid (default), semantic, keyword
	Filters map[string]string `json:"filters,omitempty"`
	TopK    int               `json:"top_k,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Rerank  *bool             `json:"rerank,omitempty"` // nil means enabled
}

// SearchResult is a single ranked passage.
type SearchResult struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the POST /search response.
type SearchResponse struct {
	TraceID string         `json:"trace_id"`
	Status  string         `json:"status"` // success or degraded
	TookMS  int64          `json:"took_ms"`
	Results []SearchResult `json:"results"`
}

// HealthResponse is the GET /health response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// CorpusStats describes the server's corpus state.
type CorpusStats struct {
	SnapshotVersion uint64 `json:"snapshot_version"`
	SnapshotLen     int    `json:"snapshot_len"`
	DenseCount      int    `json:"dense_count"`
	Ready           bool   `json:"ready"`
}

// TraceStats summarizes the server's trace store.
type TraceStats struct {
	Capacity  int               `json:"capacity"`
	Retained  int               `json:"retained"`
	Appended  uint64            `json:"appended"`
	ByStatus  map[string]uint64 `json:"by_status"`
	AvgTookMS int64             `json:"avg_took_ms"`
	MaxTookMS int64             `json:"max_took_ms"`
}

// StatsResponse is the GET /stats response.
type StatsResponse struct {
	Corpus CorpusStats `json:"corpus"`
	Traces TraceStats  `json:"traces"`
}

// UpdateRequest is the POST /update payload.
type UpdateRequest struct {
	Clear bool `json:"clear"`
}

// UpdateResponse is the POST /update response.
type UpdateResponse struct {
	SnapshotVersion uint64 `json:"snapshot_version"`
	Ingested        int    `json:"ingested"`
	Cleared         bool   `json:"cleared"`
}
