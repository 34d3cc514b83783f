// Package sdk provides a Go client for the ragline HTTP API.
//
//	client := sdk.New("http://localhost:8080")
//	resp, err := client.Search(ctx, sdk.SearchRequest{
//	    Query: "how do goroutines work",
//	    Filters: map[string]string{"library": "go"},
//	    Limit: 5,
//	})
//
// Errors returned by the server are surfaced as *APIError; use errors.As
// to inspect the status and code.
package sdk
