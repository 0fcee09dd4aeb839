// Package promptdial optimizes a natural-language prompt into ranked
// candidate rewrites. A request fans through nine ordered stages: sanitize,
// classify, plan, retrieve, build, run, evaluate, select, validate — and
// returns a Pareto-ranked selection with a signed, tamper-evident receipt.
package promptdial

import (
	"context"
	"time"

	"github.com/promptdial/promptdial/internal/application/classifier"
	"github.com/promptdial/promptdial/internal/application/evaluator"
	"github.com/promptdial/promptdial/internal/application/orchestrator"
	"github.com/promptdial/promptdial/internal/application/runner"
	"github.com/promptdial/promptdial/internal/application/safety"
	"github.com/promptdial/promptdial/internal/application/selector"
	"github.com/promptdial/promptdial/internal/application/strategy"
	"github.com/promptdial/promptdial/internal/application/technique"
	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/audit"
	"github.com/promptdial/promptdial/internal/infrastructure/receipt"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// Core data types re-exported for embedding applications.
type (
	Classification       = domain.Classification
	Variant              = domain.Variant
	Technique            = domain.Technique
	Budget               = domain.Budget
	EvaluationResult     = domain.EvaluationResult
	RunnerResult         = domain.RunnerResult
	OptimizationRequest  = domain.OptimizationRequest
	OptimizationResponse = domain.OptimizationResponse
	RequestOptions       = domain.RequestOptions
	Receipt              = domain.Receipt
	PlannerResult        = domain.PlannerResult
)

// FlowVersion is the pipeline version stamped into every receipt.
const FlowVersion = domain.FlowVersion

// Backend selects the text-generation provider a Dial executes against.
type Backend = runner.Backend

// NewEchoBackend returns the deterministic local backend. It needs no
// credentials and suits development and tests.
func NewEchoBackend() Backend {
	return runner.NewEchoBackend()
}

// NewOpenAIBackend returns an OpenAI chat-completions backend.
func NewOpenAIBackend(apiKey, model string) Backend {
	return runner.NewOpenAIBackend(apiKey, model, "")
}

// NewAnthropicBackend returns an Anthropic messages backend.
func NewAnthropicBackend(apiKey, model string) Backend {
	return runner.NewAnthropicBackend(apiKey, model, "")
}

// NewSafeAnthropicBackend returns the Anthropic backend with the tool-pair
// pre-filter enabled.
func NewSafeAnthropicBackend(apiKey, model string) Backend {
	return runner.NewSafeAnthropicBackend(apiKey, model, "")
}

// NewGoogleBackend returns a Gemini generateContent backend.
func NewGoogleBackend(apiKey, model string) Backend {
	return runner.NewGoogleBackend(apiKey, model, "")
}

// Dial is an embeddable optimization pipeline with in-process components.
type Dial struct {
	pipeline *orchestrator.Pipeline
	metrics  *telemetry.Registry
	ring     *audit.Ring
}

// Option configures a Dial.
type Option func(*dialConfig)

type dialConfig struct {
	backend Backend
}

// WithBackend selects the generation backend. The echo backend is the
// default.
func WithBackend(backend Backend) Option {
	return func(c *dialConfig) {
		c.backend = backend
	}
}

// New assembles a complete in-process pipeline.
func New(opts ...Option) (*Dial, error) {
	cfg := &dialConfig{backend: runner.NewEchoBackend()}
	for _, opt := range opts {
		opt(cfg)
	}

	metrics := telemetry.NewRegistry()
	ring := audit.NewRing()
	guard := safety.NewGuard(ring, metrics)
	signer, err := receipt.NewSigner()
	if err != nil {
		return nil, err
	}

	pipeline := orchestrator.NewPipeline(orchestrator.Deps{
		Safety:     guard,
		Classifier: classifier.New(),
		Planner:    strategy.NewPlanner(nil, metrics),
		Engine:     technique.NewEngine(metrics),
		Runner:     runner.New(cfg.backend, metrics),
		Ensemble:   evaluator.NewEnsemble(evaluator.NewMonitor(metrics), metrics, cfg.backend.Configured()),
		Selector:   selector.New(guard),
		Guard:      orchestrator.NewFlowGuard(signer, metrics),
		Metrics:    metrics,
		Audit:      ring,
	})

	return &Dial{pipeline: pipeline, metrics: metrics, ring: ring}, nil
}

// Optimize runs one prompt through the pipeline under the caller's trace ID.
func (d *Dial) Optimize(ctx context.Context, traceID string, request *OptimizationRequest) (*OptimizationResponse, error) {
	return d.pipeline.Optimize(ctx, traceID, request)
}

// VerifyReceipt checks a receipt against the trace it was issued for.
func (d *Dial) VerifyReceipt(r *Receipt, traceID string) bool {
	return d.pipeline.Guard().Verify(r, traceID)
}

// Metrics exposes the telemetry registry.
func (d *Dial) Metrics() *telemetry.Registry {
	return d.metrics
}

// StartCanary launches the periodic self-test loop; it stops when the
// context is cancelled.
func (d *Dial) StartCanary(ctx context.Context, interval time.Duration) {
	go orchestrator.NewCanary(d.pipeline, d.metrics, interval).Start(ctx)
}
