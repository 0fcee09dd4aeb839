package runner

import (
	"context"

	"github.com/promptdial/promptdial/internal/domain"
)

// Backend executes a variant against one text-generation provider.
// Implementations return provider-level failures as errors; the Runner
// converts them into error-bearing results so a bad variant cannot abort
// the fan-out stage.
type Backend interface {
	// Name returns the provider name.
	Name() string

	// Model returns the model this backend is configured for.
	Model() string

	// Configured reports whether the backend has credentials to run.
	Configured() bool

	// Call executes the variant and returns the generated text with usage.
	Call(ctx context.Context, variant domain.Variant) (*domain.RunnerResult, error)
}

// StreamingBackend is implemented by backends that can deliver the
// response incrementally. onToken receives each chunk as it arrives.
type StreamingBackend interface {
	Backend

	Stream(ctx context.Context, variant domain.Variant, onToken func(chunk string)) (*domain.RunnerResult, error)
}
