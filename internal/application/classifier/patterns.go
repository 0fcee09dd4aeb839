package classifier

import (
	"regexp"

	"github.com/promptdial/promptdial/internal/domain"
)

// taskRule binds a task type to its trigger patterns. Rules are scanned in
// order; the first match wins.
type taskRule struct {
	taskType domain.TaskType
	patterns []*regexp.Regexp
}

var taskRules = []taskRule{
	{domain.TaskTypeMathReasoning, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bsolve\b`),
		regexp.MustCompile(`(?i)\bequation\b`),
		regexp.MustCompile(`(?i)\bcalculate\b`),
		regexp.MustCompile(`(?i)\bhow many\b`),
		regexp.MustCompile(`\d+\s*[xy]\s*[+\-*/=]`),
		regexp.MustCompile(`(?i)\b(integral|derivative|probability|theorem)\b`),
	}},
	{domain.TaskTypeCodeGeneration, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(write|implement|debug|refactor)\b.*\b(code|function|class|method|script|program)\b`),
		regexp.MustCompile(`(?i)\b(python|javascript|golang|typescript|rust|java|sql)\b`),
		regexp.MustCompile(`(?i)\bregex\b`),
		regexp.MustCompile(`(?i)\balgorithm\b.*\bimplement`),
	}},
	{domain.TaskTypeCreativeWriting, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwrite\b.*\b(story|poem|essay|song|novel|script)\b`),
		regexp.MustCompile(`(?i)\b(design|create|imagine|invent|compose)\b`),
		regexp.MustCompile(`(?i)\bfiction(al)?\b`),
	}},
	{domain.TaskTypeDataAnalysis, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\banaly[sz]e\b.*\b(data|dataset|trends?|statistics)\b`),
		regexp.MustCompile(`(?i)\b(correlation|regression|distribution|outliers?)\b`),
		regexp.MustCompile(`(?i)\b(csv|spreadsheet|dataframe)\b`),
	}},
	{domain.TaskTypeSummarization, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bsummari[sz]e\b`),
		regexp.MustCompile(`(?i)\btl;?dr\b`),
		regexp.MustCompile(`(?i)\b(key points|main ideas|brief overview)\b`),
	}},
	{domain.TaskTypeTranslation, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btranslate\b`),
		regexp.MustCompile(`(?i)\b(in|into|to)\s+(french|spanish|german|japanese|chinese|russian|italian)\b`),
	}},
	{domain.TaskTypeClassification, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bclassify\b`),
		regexp.MustCompile(`(?i)\bcategori[sz]e\b`),
		regexp.MustCompile(`(?i)\bwhich\s+(category|class|label)\b`),
		regexp.MustCompile(`(?i)\bsentiment\b`),
	}},
}

// domainRule binds a domain to its trigger patterns.
type domainRule struct {
	domain   domain.Domain
	patterns []*regexp.Regexp
}

var domainRules = []domainRule{
	{domain.DomainAcademic, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(research|thesis|citation|peer.reviewed|academic|scholarly|hypothesis)\b`),
	}},
	{domain.DomainBusiness, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(revenue|market(ing)?|stakeholders?|quarterly|roi|kpi|strategy|customers?)\b`),
	}},
	{domain.DomainTechnical, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(api|database|server|deploy(ment)?|kubernetes|latency|architecture|protocol)\b`),
		regexp.MustCompile(`(?i)\b(python|javascript|golang|typescript|rust|java|sql)\b`),
	}},
	{domain.DomainCreative, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(story|poem|artistic|narrative|character|plot|lyrics)\b`),
	}},
}

// Complexity adjustment patterns.
var highComplexityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\banaly[sz]e\b.*\bsynthesi[sz]e\b`),
	regexp.MustCompile(`(?i)\bcompare\b.*\bcontrast\b`),
	regexp.MustCompile(`(?i)\bcomprehensive\b`),
	regexp.MustCompile(`(?i)\bmulti.?step\b`),
	regexp.MustCompile(`(?i)\btrade.?offs?\b`),
	regexp.MustCompile(`(?i)\bevaluate\b.*\balternatives?\b`),
}

var lowComplexityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*what is\b`),
	regexp.MustCompile(`(?i)^\s*define\b`),
	regexp.MustCompile(`(?i)\b(simple|simply|quick(ly)?|briefly)\b`),
	regexp.MustCompile(`(?i)\byes or no\b`),
}

var stepMarkerPattern = regexp.MustCompile(`(?i)\b(first|then|finally|step\s*\d*)\b`)

var abstractPattern = regexp.MustCompile(`(?i)\b(concept|theory|principle|philosophy|abstract)\b`)

// Cognitive cue groups. The combination of matched groups picks the profile.
var cognitiveCues = map[string]*regexp.Regexp{
	"analytical":  regexp.MustCompile(`(?i)\b(analy[sz]e|analy[sz]ing|evaluate|examine|assess|compare)\b`),
	"creative":    regexp.MustCompile(`(?i)\b(design|create|imagine|invent|compose|brainstorm)\b`),
	"critical":    regexp.MustCompile(`(?i)\b(critique|criticize|weaknesses|flaws|limitations)\b`),
	"synthetic":   regexp.MustCompile(`(?i)\b(synthesi[sz]e|integrate|combine|merge|unify)\b`),
	"exploratory": regexp.MustCompile(`(?i)\b(explore|investigate|discover|survey)\b`),
	"abstract":    regexp.MustCompile(`(?i)\b(concept|theory|principle|philosophy|abstract)\b`),
}

// Safety risk patterns: +0.3 per match, capped at 1.0.
var riskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(weapon|explosive|bomb)\b`),
	regexp.MustCompile(`(?i)\b(hack|exploit|malware|phishing)\b`),
	regexp.MustCompile(`(?i)\b(self.?harm|suicide)\b`),
	regexp.MustCompile(`(?i)\b(illegal(ly)?|launder(ing)?)\b`),
	regexp.MustCompile(`(?i)\bpersonal\s+(data|information)\b.*\bwithout\s+consent\b`),
}

// Retrieval cue patterns.
var retrievalCuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\baccording to\b`),
	regexp.MustCompile(`(?i)\bbased on (the|this|these) (document|article|text|data|sources?)\b`),
	regexp.MustCompile(`(?i)\b(look up|search for|find sources|cite)\b`),
	regexp.MustCompile(`(?i)\b(latest|current|recent)\s+(news|data|research|figures)\b`),
}

// profileTechniques maps a cognitive profile to its technique seed list.
var profileTechniques = map[domain.CognitiveProfile][]domain.Technique{
	domain.ProfileFullSpectrum:        {domain.TechniqueTreeOfThought, domain.TechniqueChainOfThought, domain.TechniqueSelfConsistency},
	domain.ProfileAnalyticalSynthetic: {domain.TechniqueChainOfThought, domain.TechniqueTreeOfThought},
	domain.ProfileCreativeAbstract:    {domain.TechniqueUniversalSelfPrompt, domain.TechniqueTreeOfThought},
	domain.ProfileCriticalAnalytical:  {domain.TechniqueChainOfThought, domain.TechniqueSelfConsistency},
	domain.ProfileGenerativeCreative:  {domain.TechniqueUniversalSelfPrompt, domain.TechniqueFewShotCoT},
	domain.ProfileAnalyticalExplorer:  {domain.TechniqueReAct, domain.TechniqueChainOfThought},
	domain.ProfileTaskFocused:         {domain.TechniqueChainOfThought},
}

// taskTechniques tops up the suggestion list per task type.
var taskTechniques = map[domain.TaskType][]domain.Technique{
	domain.TaskTypeMathReasoning:   {domain.TechniqueFewShotCoT, domain.TechniqueSelfConsistency},
	domain.TaskTypeCodeGeneration:  {domain.TechniqueReAct},
	domain.TaskTypeCreativeWriting: {domain.TechniqueTreeOfThought},
	domain.TaskTypeDataAnalysis:    {domain.TechniqueIRCoT, domain.TechniqueChainOfThought},
	domain.TaskTypeSummarization:   {domain.TechniqueIRCoT},
	domain.TaskTypeTranslation:     {domain.TechniqueFewShotCoT},
	domain.TaskTypeClassification:  {domain.TechniqueFewShotCoT, domain.TechniqueAutoDiCoT},
	domain.TaskTypeGeneralQA:       {domain.TechniqueChainOfThought},
}
