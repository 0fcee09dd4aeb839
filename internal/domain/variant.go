package domain

import (
	"fmt"
)

// Variant bounds. A variant violating any of these is invalid and must be
// dropped by the technique engine before it reaches the runner.
const (
	VariantMinTemperature = 0.0
	VariantMaxTemperature = 2.0
	VariantMinEstTokens   = 1
	VariantMaxEstTokens   = 8192
	VariantMaxCostUSD     = 5.0
)

// Variant is one rewritten candidate of the user's prompt produced by a
// technique.
type Variant struct {
	ID          string    `json:"id"`
	Technique   Technique `json:"technique"`
	Prompt      string    `json:"prompt"`
	Temperature float64   `json:"temperature"`
	EstTokens   int       `json:"est_tokens"`
	CostUSD     float64   `json:"cost_usd"`
}

// MakeVariantID derives a variant ID from the technique name, the emission
// ordinal, and the trace. IDs are stable for a given trace.
func MakeVariantID(technique Technique, ordinal int, traceID string) string {
	trace := traceID
	if len(trace) > 8 {
		trace = trace[:8]
	}
	return fmt.Sprintf("%s#%d@%s", technique, ordinal, trace)
}

// Validate checks the variant against its bounds.
func (v *Variant) Validate() error {
	if v.Technique == "" {
		return NewDomainError(ErrCodeValidationFailed, "variant has empty technique", nil)
	}
	if !v.Technique.IsValid() {
		return NewDomainError(ErrCodeValidationFailed, "technique not on allow-list: "+v.Technique.String(), nil)
	}
	if v.Prompt == "" {
		return NewDomainError(ErrCodeValidationFailed, "variant has empty prompt", nil)
	}
	if v.Temperature < VariantMinTemperature || v.Temperature > VariantMaxTemperature {
		return NewDomainError(ErrCodeValidationFailed,
			fmt.Sprintf("temperature %.2f out of [%.0f,%.0f]", v.Temperature, VariantMinTemperature, VariantMaxTemperature), nil)
	}
	if v.EstTokens < VariantMinEstTokens || v.EstTokens > VariantMaxEstTokens {
		return NewDomainError(ErrCodeValidationFailed,
			fmt.Sprintf("est_tokens %d out of [%d,%d]", v.EstTokens, VariantMinEstTokens, VariantMaxEstTokens), nil)
	}
	if v.CostUSD <= 0 || v.CostUSD > VariantMaxCostUSD {
		return NewDomainError(ErrCodeValidationFailed,
			fmt.Sprintf("cost_usd %.4f out of (0,%.1f]", v.CostUSD, VariantMaxCostUSD), nil)
	}
	return nil
}
