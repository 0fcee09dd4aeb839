package classifier

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/promptdial/promptdial/internal/domain"
)

// maxSuggestedTechniques caps the classifier's suggestion list.
const maxSuggestedTechniques = 5

// Classifier classifies a prompt into task type, domain, complexity,
// safety risk, retrieval need, and suggested techniques. It is purely
// functional: the same prompt always yields the same classification.
type Classifier struct{}

// New creates a Classifier.
func New() *Classifier {
	return &Classifier{}
}

// Classify runs the rule catalog against the prompt.
func (c *Classifier) Classify(prompt string) *domain.Classification {
	taskType := classifyTask(prompt)
	dom := classifyDomain(prompt)
	profile := classifyProfile(prompt)
	complexity := scoreComplexity(prompt, profile)
	risk := scoreRisk(prompt)
	retrievalNeeded := needsRetrieval(prompt, taskType)
	suggested := suggestTechniques(profile, taskType)

	log.Debug().
		Str("task_type", taskType.String()).
		Str("domain", dom.String()).
		Str("profile", profile.String()).
		Float64("complexity", complexity).
		Float64("safety_risk", risk).
		Bool("needs_retrieval", retrievalNeeded).
		Msg("prompt classified")

	return &domain.Classification{
		TaskType:            taskType,
		Domain:              dom,
		Complexity:          complexity,
		SafetyRisk:          risk,
		NeedsRetrieval:      retrievalNeeded,
		SuggestedTechniques: suggested,
		CognitiveProfile:    profile,
	}
}

func classifyTask(prompt string) domain.TaskType {
	for _, rule := range taskRules {
		for _, p := range rule.patterns {
			if p.MatchString(prompt) {
				return rule.taskType
			}
		}
	}
	return domain.TaskTypeGeneralQA
}

func classifyDomain(prompt string) domain.Domain {
	for _, rule := range domainRules {
		for _, p := range rule.patterns {
			if p.MatchString(prompt) {
				return rule.domain
			}
		}
	}
	return domain.DomainGeneral
}

// classifyProfile picks the cognitive profile from the combination of
// matched cue groups.
func classifyProfile(prompt string) domain.CognitiveProfile {
	matched := make(map[string]bool)
	for name, p := range cognitiveCues {
		if p.MatchString(prompt) {
			matched[name] = true
		}
	}

	switch {
	case matched["analytical"] && matched["creative"]:
		return domain.ProfileFullSpectrum
	case matched["analytical"] && matched["synthetic"]:
		return domain.ProfileAnalyticalSynthetic
	case matched["creative"] && matched["abstract"]:
		return domain.ProfileCreativeAbstract
	case matched["critical"] && matched["analytical"]:
		return domain.ProfileCriticalAnalytical
	case matched["critical"]:
		return domain.ProfileCriticalAnalytical
	case matched["creative"]:
		return domain.ProfileGenerativeCreative
	case matched["analytical"] && matched["exploratory"]:
		return domain.ProfileAnalyticalExplorer
	case matched["exploratory"]:
		return domain.ProfileAnalyticalExplorer
	case matched["analytical"]:
		return domain.ProfileAnalyticalSynthetic
	default:
		return domain.ProfileTaskFocused
	}
}

// scoreComplexity computes the complexity estimate. Starting from 0.5, the
// high/low pattern deltas apply first, the cognitive profile weight is
// averaged into the running score, then the length, step-marker, and
// abstraction deltas apply. The result is clamped to [0,1].
func scoreComplexity(prompt string, profile domain.CognitiveProfile) float64 {
	score := 0.5

	high := false
	for _, p := range highComplexityPatterns {
		if p.MatchString(prompt) {
			high = true
			break
		}
	}
	if high {
		score += 0.3
	} else {
		for _, p := range lowComplexityPatterns {
			if p.MatchString(prompt) {
				score -= 0.2
				break
			}
		}
	}

	score = (score + profile.Weight()) / 2

	words := len(strings.Fields(prompt))
	switch {
	case words > 100:
		score += 0.1
	case words < 20:
		score -= 0.1
	}

	if stepMarkerPattern.MatchString(prompt) {
		score += 0.1
	}
	if abstractPattern.MatchString(prompt) {
		score += 0.05
	}

	return clamp01(score)
}

func scoreRisk(prompt string) float64 {
	risk := 0.0
	for _, p := range riskPatterns {
		if p.MatchString(prompt) {
			risk += 0.3
		}
	}
	return clamp01(risk)
}

func needsRetrieval(prompt string, taskType domain.TaskType) bool {
	if taskType == domain.TaskTypeDataAnalysis || taskType == domain.TaskTypeSummarization {
		return true
	}
	for _, p := range retrievalCuePatterns {
		if p.MatchString(prompt) {
			return true
		}
	}
	return false
}

// suggestTechniques builds the suggestion list: profile seed first, then
// per-task top-ups, deduplicated, capped at maxSuggestedTechniques.
func suggestTechniques(profile domain.CognitiveProfile, taskType domain.TaskType) []domain.Technique {
	seen := make(map[domain.Technique]bool)
	var out []domain.Technique

	add := func(t domain.Technique) {
		if len(out) >= maxSuggestedTechniques || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}

	for _, t := range profileTechniques[profile] {
		add(t)
	}
	for _, t := range taskTechniques[taskType] {
		add(t)
	}
	return out
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
