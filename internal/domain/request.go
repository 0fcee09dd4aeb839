package domain

// Request defaults applied when the client omits options.
const (
	DefaultMaxVariants  = 5
	DefaultCostCapUSD   = 1.0
	DefaultLatencyCapMS = 10000
	DefaultSecurity     = "standard"
	MaxPromptChars      = 10000
)

// RequestOptions tunes a single optimization.
type RequestOptions struct {
	TaskType        TaskType          `json:"task_type,omitempty"`
	Domain          Domain            `json:"domain,omitempty"`
	MaxVariants     int               `json:"max_variants,omitempty"`
	CostCapUSD      float64           `json:"cost_cap_usd,omitempty"`
	LatencyCapMS    int64             `json:"latency_cap_ms,omitempty"`
	SecurityLevel   string            `json:"security_level,omitempty"`
	Examples        []string          `json:"examples,omitempty"`
	ReferenceOutput string            `json:"reference_output,omitempty"`
	StyleGuide      string            `json:"style_guide,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
}

// OptimizationRequest is the client-facing request body of POST /api/optimize.
type OptimizationRequest struct {
	Prompt  string          `json:"prompt"`
	Options *RequestOptions `json:"options,omitempty"`
}

// Normalize fills defaults and validates the prompt length. It returns the
// effective options; the input is not mutated.
func (r *OptimizationRequest) Normalize() (RequestOptions, error) {
	if r.Prompt == "" {
		return RequestOptions{}, NewDomainError(ErrCodeInvalidInput, "prompt must not be empty", nil)
	}
	if len(r.Prompt) > MaxPromptChars {
		return RequestOptions{}, NewDomainError(ErrCodeInvalidInput, "prompt exceeds 10000 characters", nil)
	}
	opts := RequestOptions{}
	if r.Options != nil {
		opts = *r.Options
	}
	if opts.MaxVariants <= 0 {
		opts.MaxVariants = DefaultMaxVariants
	}
	if opts.CostCapUSD <= 0 {
		opts.CostCapUSD = DefaultCostCapUSD
	}
	if opts.LatencyCapMS <= 0 {
		opts.LatencyCapMS = DefaultLatencyCapMS
	}
	if opts.SecurityLevel == "" {
		opts.SecurityLevel = DefaultSecurity
	}
	return opts, nil
}
