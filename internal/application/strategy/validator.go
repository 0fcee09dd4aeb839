package strategy

import (
	"regexp"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/domain/errors"
)

// Planner result bounds.
const (
	MinTechniques = 1
	MaxTechniques = 3
)

// injectionSignatures are rejected in any string field of a planner result.
// A plan that echoes attacker-controlled text must not pass downstream.
var injectionSignatures = []*regexp.Regexp{
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`(?i)\bsystem\s*\(`),
	regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)<script\b`),
}

// Validator enforces the planner result contract. Validation is pure and
// completes in well under the 100ms allowance.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a planner result against the contract: technique count in
// [1,3], every technique on the allow-list, confidence in [0,1], non-empty
// rationale, and no injection signature in any string.
func (v *Validator) Validate(result *domain.PlannerResult) error {
	if result == nil {
		return errors.NewValidationError("result", "planner result is nil")
	}
	n := len(result.SuggestedTechniques)
	if n < MinTechniques || n > MaxTechniques {
		return errors.NewValidationError("suggested_techniques", "technique count out of [1,3]")
	}
	for _, t := range result.SuggestedTechniques {
		if !t.IsValid() {
			return errors.NewValidationError("suggested_techniques", "technique not on allow-list: "+t.String())
		}
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return errors.NewValidationError("confidence", "confidence out of [0,1]")
	}
	if result.Rationale == "" {
		return errors.NewValidationError("rationale", "rationale must not be empty")
	}

	for _, s := range collectStrings(result) {
		for _, sig := range injectionSignatures {
			if sig.MatchString(s) {
				return errors.NewValidationError("rationale", "injection signature detected")
			}
		}
	}
	return nil
}

func collectStrings(result *domain.PlannerResult) []string {
	out := []string{result.Rationale, result.Metadata.ModelUsed}
	for _, t := range result.SuggestedTechniques {
		out = append(out, t.String())
	}
	return out
}
