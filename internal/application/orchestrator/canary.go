package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// canaryPrompt is the fixed synthetic prompt the canary submits.
const canaryPrompt = "What is the capital of France?"

// Canary periodically re-exercises the full pipeline with a synthetic
// request and verifies the receipt chain. A failure is loud in telemetry
// and logs but never quiesces live traffic.
type Canary struct {
	pipeline *Pipeline
	metrics  *telemetry.Registry
	interval time.Duration
}

// NewCanary creates a canary over the live pipeline.
func NewCanary(pipeline *Pipeline, metrics *telemetry.Registry, interval time.Duration) *Canary {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Canary{
		pipeline: pipeline,
		metrics:  metrics,
		interval: interval,
	}
}

// Start runs the canary loop until the context is cancelled.
func (c *Canary) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", c.interval).Msg("canary loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("canary loop stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce submits one canary request and checks every assertion. It
// returns the list of failed assertions, empty on success.
func (c *Canary) RunOnce(ctx context.Context) []string {
	traceID := "canary-" + uuid.NewString()

	response, err := c.pipeline.Optimize(ctx, traceID, &domain.OptimizationRequest{
		Prompt: canaryPrompt,
	})

	failures := c.check(traceID, response, err)
	if len(failures) > 0 {
		c.metrics.Counter(telemetry.MetricCanaryTestFailed).Inc()
		log.Error().
			Str("trace_id", traceID).
			Strs("failures", failures).
			Msg("CRITICAL: canary test failed")
	} else {
		c.metrics.Counter("canary_test_passed").Inc()
		log.Debug().Str("trace_id", traceID).Msg("canary test passed")
	}
	return failures
}

func (c *Canary) check(traceID string, response *domain.OptimizationResponse, err error) []string {
	var failures []string

	if err != nil {
		return []string{fmt.Sprintf("optimization failed: %v", err)}
	}
	if response == nil {
		return []string{"optimization returned no response"}
	}

	if response.Receipt == nil {
		failures = append(failures, "receipt missing")
		return failures
	}
	if response.Receipt.FlowVersion != domain.FlowVersion {
		failures = append(failures, fmt.Sprintf("flow version %q, want %q",
			response.Receipt.FlowVersion, domain.FlowVersion))
	}
	if !c.pipeline.Guard().Verify(response.Receipt, traceID) {
		failures = append(failures, "receipt failed verification against trace")
	}
	if ts, parseErr := time.Parse(time.RFC3339, response.Receipt.Timestamp); parseErr != nil {
		failures = append(failures, "receipt timestamp unparseable")
	} else if skew := time.Since(ts); skew < -time.Minute || skew > time.Minute {
		failures = append(failures, fmt.Sprintf("receipt timestamp skew %s", skew))
	}

	if !hasTechnique(response.Metadata.TechniquesUsed, domain.TechniqueChainOfThought) {
		failures = append(failures, "techniques_used missing chain_of_thought")
	}
	if response.Metadata.TotalVariantsGenerated < 2 {
		failures = append(failures, fmt.Sprintf("only %d variants generated, want >= 2",
			response.Metadata.TotalVariantsGenerated))
	}
	if response.RecommendedVariant == nil {
		failures = append(failures, "no recommended variant")
	}
	return failures
}

func hasTechnique(techniques []domain.Technique, want domain.Technique) bool {
	for _, t := range techniques {
		if t == want {
			return true
		}
	}
	return false
}
