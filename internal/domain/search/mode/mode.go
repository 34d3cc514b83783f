package mode

// Mode is the retrieval strategy.
type Mode string

// Recognized search modes.
const (
	// Hybrid runs dense and keyword retrieval in parallel and fuses them.
	Hybrid Mode = "hybrid"
	// Semantic runs only the dense (vector similarity) branch.
	Semantic Mode = "semantic"
	// Keyword runs only the sparse (BM25) branch.
	Keyword Mode = "keyword"
)

// IsValid checks if the mode is one of the recognized values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Semantic || m == Keyword
}
