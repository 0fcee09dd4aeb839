package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
)

// TraceHeader carries the trace ID on every inter-service call.
const TraceHeader = "X-Trace-ID"

// DefaultBackoffBase is the initial retry delay; it doubles per attempt.
const DefaultBackoffBase = 100 * time.Millisecond

// Client calls one worker service using the shared envelope protocol.
// The retry budget is a per-call value copied from configuration, never
// mutated in place.
type Client struct {
	service     string
	baseURL     string
	httpClient  *http.Client
	retries     int
	backoffBase time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets the per-call retry cap.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBackoffBase overrides the initial backoff delay.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// NewClient creates a client for the named service at baseURL.
func NewClient(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service:     service,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		retries:     2,
		backoffBase: DefaultBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call posts a payload wrapped in the service envelope and decodes the
// response data into out. Transport failures and 5xx statuses are retried
// with exponential backoff; 4xx statuses are surfaced immediately.
func (c *Client) Call(ctx context.Context, traceID, method string, payload, out any) error {
	envelope, err := domain.NewServiceRequest(traceID, c.service, method, payload)
	if err != nil {
		return errors.NewPipelineError(domain.CodeInvalidParameters, traceID, "",
			fmt.Sprintf("encode %s request", c.service), err)
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return errors.NewPipelineError(domain.CodeInvalidParameters, traceID, "",
			fmt.Sprintf("encode %s envelope", c.service), err)
	}

	var lastErr error
	delay := c.backoffBase

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Debug().
				Str("trace_id", traceID).
				Str("service", c.service).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying service call")

			select {
			case <-ctx.Done():
				return errors.NewPipelineError(domain.CodeTimeout, traceID, "",
					fmt.Sprintf("%s call cancelled", c.service), ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, retryable, err := c.doOnce(ctx, traceID, method, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		_ = resp

		if !retryable {
			return err
		}
	}

	return lastErr
}

// doOnce performs a single HTTP exchange. The second return value reports
// whether the failure is retryable.
func (c *Client) doOnce(ctx context.Context, traceID, method string, body []byte, out any) (*domain.ServiceResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, errors.NewPipelineError(domain.CodeInternalError, traceID, "",
			fmt.Sprintf("build %s request", c.service), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TraceHeader, traceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No response received: retryable.
		return nil, true, errors.NewPipelineError(domain.CodeServiceUnavailable, traceID, "",
			fmt.Sprintf("%s unreachable: %s", c.service, method), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.NewPipelineError(domain.CodeServiceUnavailable, traceID, "",
			fmt.Sprintf("%s response read failed", c.service), err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, errors.NewPipelineError(domain.CodeServiceUnavailable, traceID, "",
			fmt.Sprintf("%s returned %d", c.service, resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		// 4xx is never retried.
		return nil, false, errors.NewPipelineError(domain.CodeInvalidParameters, traceID, "",
			fmt.Sprintf("%s rejected call with %d", c.service, resp.StatusCode), nil)
	}

	var envelope domain.ServiceResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false, errors.NewPipelineError(domain.CodeInternalError, traceID, "",
			fmt.Sprintf("decode %s envelope", c.service), err)
	}

	if !envelope.Success {
		code := domain.CodeInternalError
		message := "service reported failure"
		retryable := false
		if envelope.Error != nil {
			code = envelope.Error.Code
			message = envelope.Error.Message
			retryable = envelope.Error.Retryable
		}
		pe := errors.NewPipelineError(code, traceID, "", message, nil)
		pe.Retryable = retryable
		return &envelope, retryable, pe
	}

	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return &envelope, false, errors.NewPipelineError(domain.CodeInternalError, traceID, "",
				fmt.Sprintf("decode %s payload", c.service), err)
		}
	}
	return &envelope, false, nil
}
