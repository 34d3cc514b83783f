package sdk

import "fmt"

// Error codes returned by the server.
const (
	CodeBadRequest           = "bad_request"
	CodeInvalidQuery         = "invalid_query"
	CodeNotReady             = "not_ready"
	CodeRetrievalUnavailable = "retrieval_unavailable"
	CodeEmbeddingProvider    = "embedding_provider_error"
	CodeInternalError        = "internal_error"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ragline: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("ragline: unexpected status %d: %s", e.Status, e.Message)
}
