package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/promptdial/promptdial/internal/domain"
)

const defaultAnthropicURL = "https://api.anthropic.com/v1/messages"

// AnthropicBackend executes variants through the Anthropic messages API.
type AnthropicBackend struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewAnthropicBackend creates a backend for the given key and model. An
// empty model defaults to claude-3-5-sonnet-20241022.
func NewAnthropicBackend(apiKey, model, baseURL string) *AnthropicBackend {
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &AnthropicBackend{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Name returns the provider name.
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// Model returns the configured model.
func (b *AnthropicBackend) Model() string {
	return b.model
}

// Configured reports whether an API key is present.
func (b *AnthropicBackend) Configured() bool {
	return b.apiKey != ""
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call executes the variant as a single-turn message exchange.
func (b *AnthropicBackend) Call(ctx context.Context, variant domain.Variant) (*domain.RunnerResult, error) {
	return b.call(ctx, variant, []anthropicMessage{
		{Role: "user", Content: variant.Prompt},
	})
}

func (b *AnthropicBackend) call(ctx context.Context, variant domain.Variant, messages []anthropicMessage) (*domain.RunnerResult, error) {
	start := time.Now()

	// The messages API caps temperature at 1.
	temperature := variant.Temperature
	if temperature > 1 {
		temperature = 1
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       b.model,
		MaxTokens:   variant.EstTokens,
		Temperature: temperature,
		Messages:    messages,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("anthropic %s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("anthropic returned %d", resp.StatusCode)
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	tokens := parsed.Usage.InputTokens + parsed.Usage.OutputTokens
	return &domain.RunnerResult{
		VariantID:    variant.ID,
		Content:      content,
		TokensUsed:   tokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		Provider:     b.Name(),
		Model:        b.model,
		FinishReason: parsed.StopReason,
		CostUSD:      ModelCost(b.model, tokens),
	}, nil
}
