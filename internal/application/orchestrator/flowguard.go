package orchestrator

import (
	"crypto/ed25519"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
	"github.com/promptdial/promptdial/internal/infrastructure/receipt"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// FlowGuard validates every assembled response end-to-end and issues the
// signed receipt. There is no silent fallback: any failed invariant
// replaces the response with a FLOW_MISMATCH error carrying the detail
// list.
type FlowGuard struct {
	signer  *receipt.Signer
	metrics *telemetry.Registry
}

// NewFlowGuard creates a flow guard over the process signing key.
func NewFlowGuard(signer *receipt.Signer, metrics *telemetry.Registry) *FlowGuard {
	return &FlowGuard{
		signer:  signer,
		metrics: metrics,
	}
}

// PublicKey exposes the verification key for external verifiers.
func (g *FlowGuard) PublicKey() ed25519.PublicKey {
	return g.signer.PublicKey()
}

// CheckInvariants returns the list of failed response invariants. An empty
// list means the response is sound.
func (g *FlowGuard) CheckInvariants(response *domain.OptimizationResponse) []string {
	var failures []string

	if len(response.Metadata.TechniquesUsed) == 0 {
		failures = append(failures, "No techniques used in optimization")
		g.metrics.Counter(telemetry.MetricZeroTechniquesTotal).Inc()
	}
	for _, outcome := range response.Variants {
		if outcome.Variant.Technique == "" || outcome.Variant.Prompt == "" {
			failures = append(failures,
				fmt.Sprintf("Variant %s is malformed: empty technique or prompt", outcome.Variant.ID))
		}
	}
	if len(response.Metadata.SuggestedTechniques) == 0 {
		failures = append(failures, "No suggested techniques from strategy planner")
	}
	if len(response.Variants) == 0 {
		failures = append(failures, "No variants in response")
	}
	if response.Receipt != nil && response.Receipt.FlowVersion != domain.FlowVersion {
		failures = append(failures,
			fmt.Sprintf("Flow version mismatch: %s != %s", response.Receipt.FlowVersion, domain.FlowVersion))
	}
	return failures
}

// Seal validates the response, issues the receipt, and verifies the fresh
// signature before attaching it. On invariant failure the response is
// replaced by a FLOW_MISMATCH error.
func (g *FlowGuard) Seal(response *domain.OptimizationResponse, runnerModel string) error {
	if failures := g.CheckInvariants(response); len(failures) > 0 {
		g.metrics.Counter(telemetry.MetricFlowMismatchTotal).Inc()
		log.Error().
			Str("trace_id", response.TraceID).
			Strs("failures", failures).
			Msg("flow guard rejected response")
		return errors.NewFlowMismatchError(response.TraceID, failures)
	}

	r := g.signer.Issue(response.TraceID,
		response.Metadata.SuggestedTechniques,
		response.Metadata.TechniquesUsed,
		runnerModel)

	if !receipt.Verify(r, response.TraceID, g.signer.PublicKey()) {
		g.metrics.Counter(telemetry.MetricReceiptInvalidTotal).Inc()
		return errors.NewPipelineError(domain.CodeInternalError, response.TraceID, "S9",
			"freshly issued receipt failed verification", nil)
	}

	response.Receipt = r
	return nil
}

// Verify checks a receipt against a trace using the process public key.
func (g *FlowGuard) Verify(r *domain.Receipt, traceID string) bool {
	return receipt.Verify(r, traceID, g.signer.PublicKey())
}
