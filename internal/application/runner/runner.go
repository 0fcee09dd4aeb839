package runner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// Runner executes variants against one backend with circuit-breaker
// protection and usage accounting. A backend failure is converted into an
// error-bearing result so the fan-out stage keeps going.
type Runner struct {
	backend Backend
	breaker *CircuitBreaker
	metrics *telemetry.Registry
}

// New creates a runner over a backend.
func New(backend Backend, metrics *telemetry.Registry) *Runner {
	return &Runner{
		backend: backend,
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		metrics: metrics,
	}
}

// Model returns the backend's configured model.
func (r *Runner) Model() string {
	return r.backend.Model()
}

// Provider returns the backend's provider name.
func (r *Runner) Provider() string {
	return r.backend.Name()
}

// Configured reports whether the backend has credentials.
func (r *Runner) Configured() bool {
	return r.backend.Configured()
}

// Run executes the variant. The returned result carries an Error string
// instead of a Go error on failure.
func (r *Runner) Run(ctx context.Context, variant domain.Variant, traceID string) *domain.RunnerResult {
	start := time.Now()

	if err := r.breaker.Allow(); err != nil {
		r.metrics.Counter("runner_circuit_rejections").Inc()
		return r.errorResult(variant, start, err)
	}

	result, err := r.backend.Call(ctx, variant)
	r.breaker.Record(err == nil)

	if err != nil {
		r.metrics.Counter("runner_errors_total").Inc()
		log.Warn().
			Str("trace_id", traceID).
			Str("variant_id", variant.ID).
			Str("provider", r.backend.Name()).
			Err(err).
			Msg("runner backend call failed")
		return r.errorResult(variant, start, err)
	}

	r.metrics.Counter("runner_calls_total").Inc()
	r.metrics.Counter("runner_tokens_total").Add(int64(result.TokensUsed))
	r.metrics.ObserveDuration("runner_latency_ms", time.Since(start))
	return result
}

// RunStream executes the variant with incremental delivery when the
// backend supports it, falling back to a blocking call otherwise. onToken
// receives each chunk; onComplete receives the final result exactly once.
func (r *Runner) RunStream(ctx context.Context, variant domain.Variant, traceID string,
	onToken func(chunk string), onComplete func(result *domain.RunnerResult)) {

	streamer, ok := r.backend.(StreamingBackend)
	if !ok {
		onComplete(r.Run(ctx, variant, traceID))
		return
	}

	start := time.Now()
	if err := r.breaker.Allow(); err != nil {
		r.metrics.Counter("runner_circuit_rejections").Inc()
		onComplete(r.errorResult(variant, start, err))
		return
	}

	result, err := streamer.Stream(ctx, variant, onToken)
	r.breaker.Record(err == nil)
	if err != nil {
		r.metrics.Counter("runner_errors_total").Inc()
		onComplete(r.errorResult(variant, start, err))
		return
	}

	r.metrics.Counter("runner_calls_total").Inc()
	r.metrics.ObserveDuration("runner_latency_ms", time.Since(start))
	onComplete(result)
}

func (r *Runner) errorResult(variant domain.Variant, start time.Time, err error) *domain.RunnerResult {
	return &domain.RunnerResult{
		VariantID: variant.ID,
		Content:   "",
		LatencyMS: time.Since(start).Milliseconds(),
		Provider:  r.backend.Name(),
		Model:     r.backend.Model(),
		Error:     err.Error(),
	}
}
