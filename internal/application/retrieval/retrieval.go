package retrieval

import (
	"context"

	"github.com/promptdial/promptdial/internal/infrastructure/transport"
)

// Retriever fetches context passages for a query. Retrieval is
// best-effort: the pipeline swallows failures and continues with whatever
// it got.
type Retriever interface {
	Retrieve(ctx context.Context, traceID, query string, limit int) ([]string, error)
}

// HTTPRetriever calls the retrieval worker service.
type HTTPRetriever struct {
	client *transport.Client
}

// NewHTTPRetriever creates a retriever over a transport client.
func NewHTTPRetriever(client *transport.Client) *HTTPRetriever {
	return &HTTPRetriever{client: client}
}

type retrieveRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type retrieveResponse struct {
	Passages []string `json:"passages"`
}

// Retrieve fetches up to limit passages for the query.
func (r *HTTPRetriever) Retrieve(ctx context.Context, traceID, query string, limit int) ([]string, error) {
	var resp retrieveResponse
	err := r.client.Call(ctx, traceID, "retrieve", retrieveRequest{Query: query, Limit: limit}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Passages, nil
}

// Noop is the retriever used when no retrieval service is configured.
type Noop struct{}

// Retrieve returns no passages.
func (Noop) Retrieve(_ context.Context, _, _ string, _ int) ([]string, error) {
	return nil, nil
}
