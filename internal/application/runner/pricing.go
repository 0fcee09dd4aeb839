package runner

import "strings"

// fallbackPricePer1K applies to any model absent from the price table.
const fallbackPricePer1K = 0.01

// pricePer1K maps a model prefix to its blended USD price per 1000 tokens.
// Longest matching prefix wins.
var pricePer1K = map[string]float64{
	"gpt-4o":            0.0075,
	"gpt-4o-mini":       0.000375,
	"gpt-4-turbo":       0.02,
	"gpt-3.5-turbo":     0.001,
	"claude-3-5-sonnet": 0.009,
	"claude-3-5-haiku":  0.0024,
	"claude-3-opus":     0.045,
	"gemini-1.5-pro":    0.00625,
	"gemini-1.5-flash":  0.0004,
}

// ModelCost prices a call by its total token count. Unknown models fall
// back to a flat rate rather than failing the call.
func ModelCost(model string, tokens int) float64 {
	rate := fallbackPricePer1K
	bestLen := 0
	for prefix, p := range pricePer1K {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			rate = p
			bestLen = len(prefix)
		}
	}
	return float64(tokens) / 1000.0 * rate
}
