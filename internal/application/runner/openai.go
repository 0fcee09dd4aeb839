package runner

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/promptdial/promptdial/internal/domain"
)

// OpenAIBackend executes variants through the OpenAI chat completions API.
type OpenAIBackend struct {
	client *openai.Client
	model  string
	apiKey string
}

// NewOpenAIBackend creates a backend for the given key and model. An empty
// model defaults to gpt-4o. baseURL overrides the API location when the
// runner is fronted by a proxy.
func NewOpenAIBackend(apiKey, model, baseURL string) *OpenAIBackend {
	if model == "" {
		model = "gpt-4o"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		apiKey: apiKey,
	}
}

// Name returns the provider name.
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Model returns the configured model.
func (b *OpenAIBackend) Model() string {
	return b.model
}

// Configured reports whether an API key is present.
func (b *OpenAIBackend) Configured() bool {
	return b.apiKey != ""
}

// Call executes the variant as a single-turn chat completion.
func (b *OpenAIBackend) Call(ctx context.Context, variant domain.Variant) (*domain.RunnerResult, error) {
	start := time.Now()

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: float32(variant.Temperature),
		MaxTokens:   variant.EstTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: variant.Prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	tokens := resp.Usage.TotalTokens
	return &domain.RunnerResult{
		VariantID:    variant.ID,
		Content:      resp.Choices[0].Message.Content,
		TokensUsed:   tokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		Provider:     b.Name(),
		Model:        b.model,
		FinishReason: string(resp.Choices[0].FinishReason),
		CostUSD:      ModelCost(b.model, tokens),
	}, nil
}

// Stream executes the variant as a streaming completion, delivering each
// content delta to onToken and returning the assembled result.
func (b *OpenAIBackend) Stream(ctx context.Context, variant domain.Variant, onToken func(chunk string)) (*domain.RunnerResult, error) {
	start := time.Now()

	stream, err := b.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: float32(variant.Temperature),
		MaxTokens:   variant.EstTokens,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: variant.Prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var content string
	var finishReason string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			content += delta
			if onToken != nil {
				onToken(delta)
			}
		}
		if chunk.Choices[0].FinishReason != "" {
			finishReason = string(chunk.Choices[0].FinishReason)
		}
	}

	// The streaming API omits usage; estimate from the variant.
	tokens := variant.EstTokens
	return &domain.RunnerResult{
		VariantID:    variant.ID,
		Content:      content,
		TokensUsed:   tokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		Provider:     b.Name(),
		Model:        b.model,
		FinishReason: finishReason,
		CostUSD:      ModelCost(b.model, tokens),
	}, nil
}
