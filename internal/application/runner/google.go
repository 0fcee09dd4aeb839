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

const defaultGoogleURLFormat = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// GoogleBackend executes variants through the Gemini generateContent API.
type GoogleBackend struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewGoogleBackend creates a backend for the given key and model. An empty
// model defaults to gemini-1.5-flash.
func NewGoogleBackend(apiKey, model, baseURL string) *GoogleBackend {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf(defaultGoogleURLFormat, model)
	}
	return &GoogleBackend{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// Name returns the provider name.
func (b *GoogleBackend) Name() string {
	return "google"
}

// Model returns the configured model.
func (b *GoogleBackend) Model() string {
	return b.model
}

// Configured reports whether an API key is present.
func (b *GoogleBackend) Configured() bool {
	return b.apiKey != ""
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Config   geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Call executes the variant as a single-turn generation.
func (b *GoogleBackend) Call(ctx context.Context, variant domain.Variant) (*domain.RunnerResult, error) {
	start := time.Now()

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: variant.Prompt}}},
		},
		Config: geminiGenConfig{
			Temperature:     variant.Temperature,
			MaxOutputTokens: variant.EstTokens,
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("gemini: %s", parsed.Error.Message)
		}
		return nil, fmt.Errorf("gemini returned %d", resp.StatusCode)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var content string
	for _, part := range parsed.Candidates[0].Content.Parts {
		content += part.Text
	}

	tokens := parsed.UsageMetadata.TotalTokenCount
	return &domain.RunnerResult{
		VariantID:    variant.ID,
		Content:      content,
		TokensUsed:   tokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		Provider:     b.Name(),
		Model:        b.model,
		FinishReason: parsed.Candidates[0].FinishReason,
		CostUSD:      ModelCost(b.model, tokens),
	}, nil
}
