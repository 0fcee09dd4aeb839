package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/promptdial/promptdial/internal/domain"
)

// EchoBackend is a deterministic local backend used when no provider API
// key is configured. It lets the pipeline, tests, and the canary run
// end-to-end without external calls.
type EchoBackend struct {
	model string
}

// NewEchoBackend creates the local backend.
func NewEchoBackend() *EchoBackend {
	return &EchoBackend{model: "echo-1"}
}

// Name returns the provider name.
func (b *EchoBackend) Name() string {
	return "echo"
}

// Model returns the configured model.
func (b *EchoBackend) Model() string {
	return b.model
}

// Configured always reports true.
func (b *EchoBackend) Configured() bool {
	return true
}

// Call produces a deterministic response derived from the prompt.
func (b *EchoBackend) Call(_ context.Context, variant domain.Variant) (*domain.RunnerResult, error) {
	start := time.Now()

	head := variant.Prompt
	if len(head) > 280 {
		head = head[:280]
	}
	content := fmt.Sprintf(
		"Considering the request step by step. First, the task asks: %s "+
			"Then the relevant factors are weighed against each other. "+
			"Therefore, the answer addresses the request directly and completely.",
		strings.TrimSpace(head))

	tokens := len(strings.Fields(variant.Prompt)) + len(strings.Fields(content))
	return &domain.RunnerResult{
		VariantID:    variant.ID,
		Content:      content,
		TokensUsed:   tokens,
		LatencyMS:    time.Since(start).Milliseconds() + 1,
		Provider:     b.Name(),
		Model:        b.model,
		FinishReason: "stop",
		CostUSD:      ModelCost(b.model, tokens),
	}, nil
}

// Stream delivers the response in word-sized chunks.
func (b *EchoBackend) Stream(ctx context.Context, variant domain.Variant, onToken func(chunk string)) (*domain.RunnerResult, error) {
	result, err := b.Call(ctx, variant)
	if err != nil {
		return nil, err
	}
	if onToken != nil {
		for _, word := range strings.SplitAfter(result.Content, " ") {
			onToken(word)
		}
	}
	return result, nil
}
