package runner

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
)

// SafeAnthropicBackend wraps the Anthropic backend with a tool-pair
// pre-filter: if the prompt parses as a structured message list, every
// unmatched tool_use is paired with a synthesized tool_result before the
// call. Plain-text prompts pass through untouched.
type SafeAnthropicBackend struct {
	inner *AnthropicBackend
}

// NewSafeAnthropicBackend creates the pre-filtering wrapper.
func NewSafeAnthropicBackend(apiKey, model, baseURL string) *SafeAnthropicBackend {
	return &SafeAnthropicBackend{
		inner: NewAnthropicBackend(apiKey, model, baseURL),
	}
}

// Name returns the provider name.
func (b *SafeAnthropicBackend) Name() string {
	return "safe-anthropic"
}

// Model returns the configured model.
func (b *SafeAnthropicBackend) Model() string {
	return b.inner.Model()
}

// Configured reports whether an API key is present.
func (b *SafeAnthropicBackend) Configured() bool {
	return b.inner.Configured()
}

// Call repairs unmatched tool pairs if needed, then delegates.
func (b *SafeAnthropicBackend) Call(ctx context.Context, variant domain.Variant) (*domain.RunnerResult, error) {
	messages, structured := ParseToolMessages(variant.Prompt)
	if !structured {
		return b.inner.Call(ctx, variant)
	}

	if unmatched := UnmatchedToolUses(messages); len(unmatched) > 0 {
		log.Debug().
			Str("variant_id", variant.ID).
			Strs("tool_use_ids", unmatched).
			Msg("repairing unmatched tool_use blocks")
		messages = RepairToolPairs(messages)
	}

	wire := make([]anthropicMessage, len(messages))
	for i, m := range messages {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		wire[i] = anthropicMessage{Role: m.Role, Content: json.RawMessage(content)}
	}
	return b.inner.call(ctx, variant, wire)
}
