package evaluator

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/promptdial/promptdial/internal/domain"
)

// Evaluator scores a (variant, response) pair on one or more criteria in
// [0,1]. Implementations must be safe for concurrent use.
type Evaluator interface {
	// Name returns the evaluator name used as the score key.
	Name() string

	// RequiresLLM reports whether the evaluator needs a generation backend.
	RequiresLLM() bool

	// Evaluate scores the pair. A returned error drops this evaluator from
	// the merge for this pair only.
	Evaluate(ctx context.Context, variant domain.Variant, response domain.RunnerResult,
		classification domain.Classification, references []string) (map[string]float64, error)
}

var (
	sentencePattern      = regexp.MustCompile(`[.!?]+\s`)
	contradictionPattern = regexp.MustCompile(`(?i)\b(however,? actually|wait,? no|that was wrong|contradicts?)\b`)
	hedgePattern         = regexp.MustCompile(`(?i)\b(i (cannot|can't) |i am not sure|as an ai)\b`)
	discoursePattern     = regexp.MustCompile(`(?i)\b(however|on the other hand|alternatively|in contrast|conversely)\b`)
	stepPattern          = regexp.MustCompile(`(?i)\b(first|second|third|then|finally|step \d)\b`)
	conclusionPattern    = regexp.MustCompile(`(?i)\b(answer|conclusion|therefore|so)\b`)
)

// GEval scores the response against weighted criteria: relevance to the
// prompt, coherence, fluency, and coverage.
type GEval struct{}

func (e *GEval) Name() string      { return "g_eval" }
func (e *GEval) RequiresLLM() bool { return false }

func (e *GEval) Evaluate(_ context.Context, variant domain.Variant, response domain.RunnerResult,
	_ domain.Classification, _ []string) (map[string]float64, error) {

	if response.Content == "" {
		return nil, fmt.Errorf("empty response for variant %s", variant.ID)
	}

	relevance := termOverlap(variant.Prompt, response.Content)
	coherence := coherenceScore(response.Content)
	fluency := fluencyScore(response.Content)
	coverage := lengthAdequacy(response.Content)

	score := 0.35*relevance + 0.25*coherence + 0.2*fluency + 0.2*coverage
	return map[string]float64{e.Name(): clamp01(score)}, nil
}

// ChatEval probes the response the way a follow-up conversation would:
// does it actually answer what was asked, and does it stand alone?
type ChatEval struct{}

func (e *ChatEval) Name() string      { return "chat_eval" }
func (e *ChatEval) RequiresLLM() bool { return false }

func (e *ChatEval) Evaluate(_ context.Context, variant domain.Variant, response domain.RunnerResult,
	_ domain.Classification, _ []string) (map[string]float64, error) {

	if response.Content == "" {
		return nil, fmt.Errorf("empty response for variant %s", variant.ID)
	}

	directness := 1.0
	if hedgePattern.MatchString(response.Content) {
		directness = 0.4
	}
	addressing := termOverlap(questionTerms(variant.Prompt), response.Content)
	selfContained := lengthAdequacy(response.Content)

	score := 0.4*addressing + 0.35*directness + 0.25*selfContained
	return map[string]float64{e.Name(): clamp01(score)}, nil
}

// RoleDebate simulates a critique-rebuttal-consensus pass: responses that
// weigh alternatives and structure an argument score higher. It is
// selected only for high-complexity work.
type RoleDebate struct{}

func (e *RoleDebate) Name() string      { return "role_debate" }
func (e *RoleDebate) RequiresLLM() bool { return false }

func (e *RoleDebate) Evaluate(_ context.Context, variant domain.Variant, response domain.RunnerResult,
	_ domain.Classification, _ []string) (map[string]float64, error) {

	if response.Content == "" {
		return nil, fmt.Errorf("empty response for variant %s", variant.ID)
	}

	perspectives := float64(len(discoursePattern.FindAllString(response.Content, -1)))
	structure := float64(len(stepPattern.FindAllString(response.Content, -1)))

	score := 0.4 + 0.1*math.Min(perspectives, 3) + 0.066*math.Min(structure, 3)
	return map[string]float64{e.Name(): clamp01(score)}, nil
}

// SelfConsistency checks the response for internal contradiction and
// numeric agreement. Always selected, and mandatory for variants produced
// by consistency-based techniques.
type SelfConsistency struct{}

func (e *SelfConsistency) Name() string      { return "self_consistency" }
func (e *SelfConsistency) RequiresLLM() bool { return false }

func (e *SelfConsistency) Evaluate(_ context.Context, variant domain.Variant, response domain.RunnerResult,
	_ domain.Classification, _ []string) (map[string]float64, error) {

	if response.Content == "" {
		return nil, fmt.Errorf("empty response for variant %s", variant.ID)
	}

	score := 0.85
	contradictions := len(contradictionPattern.FindAllString(response.Content, -1))
	score -= 0.2 * float64(contradictions)

	// Reward responses that converge: a stated conclusion near the end.
	tail := response.Content
	if len(tail) > 200 {
		tail = tail[len(tail)-200:]
	}
	if conclusionPattern.MatchString(tail) {
		score += 0.1
	}
	return map[string]float64{e.Name(): clamp01(score)}, nil
}

// termOverlap measures how many content terms of a appear in b.
func termOverlap(a, b string) float64 {
	aTerms := contentTerms(a)
	if len(aTerms) == 0 {
		return 0.5
	}
	bLower := strings.ToLower(b)
	hits := 0
	for term := range aTerms {
		if strings.Contains(bLower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(aTerms))
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "are": true, "for": true, "with": true,
	"this": true, "that": true, "it": true, "on": true, "be": true, "as": true,
	"what": true, "how": true, "why": true, "your": true, "you": true,
}

func contentTerms(s string) map[string]bool {
	terms := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,:;!?\"'()[]")
		if len(w) > 2 && !stopWords[w] {
			terms[w] = true
		}
	}
	return terms
}

func questionTerms(prompt string) string {
	// The final sentence usually carries the actual ask.
	sentences := sentencePattern.Split(prompt, -1)
	if len(sentences) == 0 {
		return prompt
	}
	return sentences[len(sentences)-1]
}

func coherenceScore(text string) float64 {
	sentences := len(sentencePattern.FindAllString(text+" ", -1))
	if sentences == 0 {
		return 0.4
	}
	words := len(strings.Fields(text))
	avg := float64(words) / float64(sentences)
	// Sentences between 8 and 30 words read as coherent prose.
	if avg >= 8 && avg <= 30 {
		return 0.9
	}
	if avg < 4 || avg > 60 {
		return 0.4
	}
	return 0.65
}

func fluencyScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) < 3 {
		return 0.3
	}
	repeats := 0
	for i := 1; i < len(words); i++ {
		if words[i] == words[i-1] {
			repeats++
		}
	}
	return clamp01(0.95 - 0.1*float64(repeats))
}

func lengthAdequacy(text string) float64 {
	words := len(strings.Fields(text))
	switch {
	case words < 10:
		return 0.3
	case words < 30:
		return 0.6
	case words <= 600:
		return 0.9
	default:
		return 0.7
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
