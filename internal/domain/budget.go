package domain

import (
	"time"
)

// Budget tracks the cost and latency allowance of a single optimization.
// It is created from the request caps and mutated only by the technique
// engine as variants are emitted. The orchestrator reads it between stages
// but never writes after construction. A Budget is per-request state and is
// not safe for concurrent mutation.
type Budget struct {
	MaxCostUSD       float64 `json:"max_cost_usd"`
	MaxLatencyMS     int64   `json:"max_latency_ms"`
	MaxTokens        int     `json:"max_tokens"`
	RemainingCostUSD float64 `json:"remaining_cost_usd"`

	// deadline anchors remaining_time_ms. Advisory only: stages check it
	// before starting, nothing is forcibly terminated when it passes.
	deadline time.Time
	now      func() time.Time
}

// NewBudget creates a budget from request caps.
func NewBudget(costCapUSD float64, latencyCapMS int64, maxTokens int) *Budget {
	return newBudgetAt(costCapUSD, latencyCapMS, maxTokens, time.Now)
}

func newBudgetAt(costCapUSD float64, latencyCapMS int64, maxTokens int, now func() time.Time) *Budget {
	return &Budget{
		MaxCostUSD:       costCapUSD,
		MaxLatencyMS:     latencyCapMS,
		MaxTokens:        maxTokens,
		RemainingCostUSD: costCapUSD,
		deadline:         now().Add(time.Duration(latencyCapMS) * time.Millisecond),
		now:              now,
	}
}

// RemainingTimeMS returns the advisory time remaining. It is monotonically
// non-increasing and never negative.
func (b *Budget) RemainingTimeMS() int64 {
	remaining := b.deadline.Sub(b.now()).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeExhausted reports whether the latency allowance has run out.
func (b *Budget) TimeExhausted() bool {
	return b.RemainingTimeMS() <= 0
}

// CanAfford reports whether a variant costing costUSD fits the remaining
// cost allowance.
func (b *Budget) CanAfford(costUSD float64) bool {
	return b.RemainingCostUSD >= costUSD
}

// Charge deducts costUSD from the remaining allowance. Returns false and
// leaves the budget untouched if the charge would overdraw it.
func (b *Budget) Charge(costUSD float64) bool {
	if !b.CanAfford(costUSD) {
		return false
	}
	b.RemainingCostUSD -= costUSD
	return true
}
