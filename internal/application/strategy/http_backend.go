package strategy

import (
	"context"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/transport"
)

// HTTPBackend consults a remote strategy worker. Whatever it returns is
// still validated and fails closed like any other backend result.
type HTTPBackend struct {
	client *transport.Client
}

// NewHTTPBackend creates a backend over a transport client.
func NewHTTPBackend(client *transport.Client) *HTTPBackend {
	return &HTTPBackend{client: client}
}

type planRequest struct {
	Prompt  string             `json:"prompt"`
	Context domain.PlanContext `json:"context"`
}

// Plan calls the remote planner.
func (b *HTTPBackend) Plan(ctx context.Context, prompt string, planCtx domain.PlanContext) (*domain.PlannerResult, error) {
	traceID, _ := ctx.Value(traceIDKey{}).(string)

	var result domain.PlannerResult
	err := b.client.Call(ctx, traceID, "plan", planRequest{Prompt: prompt, Context: planCtx}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type traceIDKey struct{}

// WithTraceID stamps the trace ID onto a context for remote planner calls.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}
