package safety

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
	"github.com/promptdial/promptdial/internal/infrastructure/audit"
	"github.com/promptdial/promptdial/internal/infrastructure/telemetry"
)

// blockPattern is a sanitizer rule that rejects the whole prompt.
type blockPattern struct {
	name    string
	pattern *regexp.Regexp
}

// scrubPattern is a sanitizer rule that rewrites matching fragments.
type scrubPattern struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

// defaultBlockPatterns covers prompt-injection and escape signatures. The
// production pattern list is maintained by the sanitizer service; this is
// the core's guard for in-process operation.
var defaultBlockPatterns = []blockPattern{
	{"ignore_instructions", regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`)},
	{"system_override", regexp.MustCompile(`(?i)you\s+are\s+now\s+(dan|in\s+developer\s+mode)`)},
	{"path_traversal", regexp.MustCompile(`\.\./`)},
	{"shell_injection", regexp.MustCompile(`(?i)\bsystem\s*\(`)},
	{"prompt_leak", regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|hidden\s+instructions)`)},
}

var defaultScrubPatterns = []scrubPattern{
	{"control_chars", regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]"), ""},
	{"zero_width", regexp.MustCompile("[\u200b\u200c\u200d\ufeff]"), ""},
	{"role_marker", regexp.MustCompile(`(?i)^\s*(system|assistant)\s*:\s*`), ""},
}

// Guard validates prompts on the way in (S1) and re-checks selected output
// on the way out (S8). Every decision is appended to the audit store; a
// blocked prompt is kept verbatim there even though it is redacted from
// user-facing output.
type Guard struct {
	blocks  []blockPattern
	scrubs  []scrubPattern
	store   audit.Store
	metrics *telemetry.Registry
}

// NewGuard creates a guard with the default rule set.
func NewGuard(store audit.Store, metrics *telemetry.Registry) *Guard {
	return &Guard{
		blocks:  defaultBlockPatterns,
		scrubs:  defaultScrubPatterns,
		store:   store,
		metrics: metrics,
	}
}

// Sanitize inspects a prompt and either blocks it or returns a sanitized
// copy. Modified is true when any scrub rule changed the text.
func (g *Guard) Sanitize(ctx context.Context, traceID, prompt string) (*domain.SafetyResult, error) {
	for _, bp := range g.blocks {
		if bp.pattern.MatchString(prompt) {
			g.metrics.Counter("safety_blocked_total").Inc()
			g.record(ctx, traceID, prompt, "blocked:"+bp.name)

			log.Warn().
				Str("trace_id", traceID).
				Str("rule", bp.name).
				Msg("prompt blocked by safety guard")

			return &domain.SafetyResult{
				Safe:          false,
				BlockedReason: bp.name,
			}, nil
		}
	}

	sanitized := prompt
	for _, sp := range g.scrubs {
		sanitized = sp.pattern.ReplaceAllString(sanitized, sp.replacement)
	}
	sanitized = strings.TrimSpace(sanitized)

	modified := sanitized != prompt
	if modified {
		g.metrics.Counter("safety_modified_total").Inc()
		g.record(ctx, traceID, prompt, "modified")
	} else {
		g.record(ctx, traceID, prompt, "clean")
	}

	return &domain.SafetyResult{
		Safe:            true,
		SanitizedPrompt: sanitized,
		Modified:        modified,
	}, nil
}

// Recheck validates a generated response before it is recommended. It
// applies only the block rules; scrubbing generated text would corrupt it.
func (g *Guard) Recheck(text string) bool {
	for _, bp := range g.blocks {
		if bp.pattern.MatchString(text) {
			return false
		}
	}
	return true
}

func (g *Guard) record(ctx context.Context, traceID, prompt, detail string) {
	err := g.store.Append(ctx, audit.Record{
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
		Kind:      audit.KindSanitize,
		Prompt:    prompt,
		Detail:    detail,
	})
	if err != nil {
		log.Error().Err(err).Str("trace_id", traceID).Msg("audit append failed")
	}
}
