package technique

import (
	"fmt"
	"strings"

	"github.com/promptdial/promptdial/internal/domain"
)

func allTasks(types ...domain.TaskType) map[domain.TaskType]bool {
	m := make(map[domain.TaskType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

// builtinDescriptors returns the descriptor for every technique on the
// allow-list. Prompt wording follows the published form of each technique.
func builtinDescriptors() []*Descriptor {
	return []*Descriptor{
		{
			Name: domain.TechniqueChainOfThought,
			BestFor: allTasks(domain.TaskTypeMathReasoning, domain.TaskTypeCodeGeneration,
				domain.TaskTypeDataAnalysis, domain.TaskTypeGeneralQA, domain.TaskTypeGeneral),
			Flavors:  []Flavor{FlavorBasic, FlavorExtended, FlavorFormatted},
			Generate: generateChainOfThought,
		},
		{
			Name: domain.TechniqueFewShotCoT,
			BestFor: allTasks(domain.TaskTypeMathReasoning, domain.TaskTypeClassification,
				domain.TaskTypeTranslation, domain.TaskTypeGeneralQA),
			Flavors:  []Flavor{FlavorBasic, FlavorExtended},
			Generate: generateFewShotCoT,
		},
		{
			Name: domain.TechniqueSelfConsistency,
			BestFor: allTasks(domain.TaskTypeMathReasoning, domain.TaskTypeClassification,
				domain.TaskTypeDataAnalysis),
			Flavors:  []Flavor{FlavorBasic, FlavorExtended},
			Generate: generateSelfConsistency,
		},
		{
			Name: domain.TechniqueReAct,
			BestFor: allTasks(domain.TaskTypeCodeGeneration, domain.TaskTypeDataAnalysis,
				domain.TaskTypeGeneralQA),
			Flavors:  []Flavor{FlavorBasic, FlavorFormatted},
			Generate: generateReAct,
		},
		{
			Name: domain.TechniqueTreeOfThought,
			BestFor: allTasks(domain.TaskTypeCreativeWriting, domain.TaskTypeMathReasoning,
				domain.TaskTypeGeneral),
			Flavors:  []Flavor{FlavorBasic, FlavorExtended, FlavorFormatted},
			Generate: generateTreeOfThought,
		},
		{
			Name: domain.TechniqueIRCoT,
			BestFor: allTasks(domain.TaskTypeDataAnalysis, domain.TaskTypeSummarization,
				domain.TaskTypeGeneralQA),
			NeedsRetrieval: true,
			Flavors:        []Flavor{FlavorBasic, FlavorExtended},
			Generate:       generateIRCoT,
		},
		{
			Name: domain.TechniqueDSPyAPE,
			BestFor: allTasks(domain.TaskTypeGeneralQA, domain.TaskTypeClassification,
				domain.TaskTypeSummarization),
			Flavors:  []Flavor{FlavorBasic, FlavorExtended},
			Generate: generateDSPyAPE,
		},
		{
			Name:     domain.TechniqueDSPyGRIPS,
			BestFor:  allTasks(domain.TaskTypeGeneralQA, domain.TaskTypeSummarization),
			Flavors:  []Flavor{FlavorBasic},
			Generate: generateDSPyGRIPS,
		},
		{
			Name:     domain.TechniqueAutoDiCoT,
			BestFor:  allTasks(domain.TaskTypeClassification, domain.TaskTypeGeneralQA),
			Flavors:  []Flavor{FlavorBasic, FlavorExtended},
			Generate: generateAutoDiCoT,
		},
		{
			Name: domain.TechniqueUniversalSelfPrompt,
			BestFor: allTasks(domain.TaskTypeCreativeWriting, domain.TaskTypeGeneral,
				domain.TaskTypeGeneralQA),
			Flavors:  []Flavor{FlavorBasic, FlavorExtended},
			Generate: generateUniversalSelfPrompt,
		},
	}
}

func generateChainOfThought(in GenerateInput) Generated {
	switch in.Flavor {
	case FlavorExtended:
		return Generated{
			Prompt: in.BasePrompt + "\n\nThink through this step by step. For each step, state what you know, what you are inferring, and why the inference is valid. Then give the final answer.",
			Temperature: 0.3,
		}
	case FlavorFormatted:
		return Generated{
			Prompt: in.BasePrompt + "\n\nLet's think step by step.\n\nFormat:\nStep 1: ...\nStep 2: ...\nConclusion: ...",
			Temperature: 0.2,
		}
	default:
		return Generated{
			Prompt:      in.BasePrompt + "\n\nLet's think step by step.",
			Temperature: 0.3,
		}
	}
}

func generateFewShotCoT(in GenerateInput) Generated {
	examples := in.Examples
	if len(examples) == 0 {
		examples = defaultExamples(in.Classification.TaskType)
	}
	var b strings.Builder
	b.WriteString("Here are worked examples:\n\n")
	for i, ex := range examples {
		fmt.Fprintf(&b, "Example %d:\n%s\n\n", i+1, ex)
	}
	b.WriteString("Now solve the following the same way, showing your reasoning:\n\n")
	b.WriteString(in.BasePrompt)

	temp := 0.3
	if in.Flavor == FlavorExtended {
		b.WriteString("\n\nExplain each reasoning step before stating the final answer.")
		temp = 0.4
	}
	return Generated{Prompt: b.String(), Temperature: temp}
}

func generateSelfConsistency(in GenerateInput) Generated {
	prompt := in.BasePrompt + "\n\nSolve this three times using independent lines of reasoning. Compare the three answers and report the one the majority agrees on, noting any disagreement."
	if in.Flavor == FlavorExtended {
		prompt = in.BasePrompt + "\n\nProduce five independent solution attempts, each from a different starting point. Tabulate the answers, pick the most frequent one, and quantify your confidence as the agreement ratio."
	}
	// Higher temperature is deliberate: the sampled paths must diverge.
	return Generated{Prompt: prompt, Temperature: 0.9}
}

func generateReAct(in GenerateInput) Generated {
	if in.Flavor == FlavorFormatted {
		return Generated{
			Prompt: in.BasePrompt + "\n\nWork through this by interleaving reasoning and actions:\nThought: what to figure out next\nAction: the check or computation to perform\nObservation: the result\nRepeat until done, then write 'Answer:' followed by the conclusion.",
			Temperature: 0.4,
		}
	}
	return Generated{
		Prompt: in.BasePrompt + "\n\nAlternate between thinking about what to do next and doing it. Narrate every thought, action, and observation until you reach the answer.",
		Temperature: 0.4,
	}
}

func generateTreeOfThought(in GenerateInput) Generated {
	switch in.Flavor {
	case FlavorExtended:
		return Generated{
			Prompt: in.BasePrompt + "\n\nExplore three fundamentally different approaches. For each: sketch the approach, develop it two steps further, and score its promise from 1-10 with justification. Then fully develop the highest-scoring approach.",
			Temperature: 0.7,
		}
	case FlavorFormatted:
		return Generated{
			Prompt: in.BasePrompt + "\n\nBuild a decision tree:\nBranch A: <approach> -> <development> -> <assessment>\nBranch B: ...\nBranch C: ...\nSelected branch: <letter> because <reason>\nFull solution: ...",
			Temperature: 0.6,
		}
	default:
		return Generated{
			Prompt: in.BasePrompt + "\n\nConsider several distinct approaches before committing. Briefly evaluate each, discard the weak ones, and pursue the strongest to a complete answer.",
			Temperature: 0.7,
		}
	}
}

func generateIRCoT(in GenerateInput) Generated {
	var b strings.Builder
	if len(in.Examples) > 0 {
		b.WriteString("Retrieved context:\n\n")
		for _, ex := range in.Examples {
			b.WriteString(ex)
			b.WriteString("\n\n")
		}
	}
	b.WriteString(in.BasePrompt)
	b.WriteString("\n\nReason step by step. After each step, state which piece of the context supports it; if the context is insufficient, say what additional information you would retrieve.")
	if in.Flavor == FlavorExtended {
		b.WriteString(" Conclude with a list of the context passages actually used.")
	}
	return Generated{Prompt: b.String(), Temperature: 0.3}
}

func generateDSPyAPE(in GenerateInput) Generated {
	prompt := "Rewrite the following task into the clearest, most effective instruction you can, then carry out the rewritten instruction:\n\n" + in.BasePrompt
	if in.Flavor == FlavorExtended {
		prompt = "Generate three candidate rephrasings of the task below, judge which would elicit the best response, then answer the winning rephrasing:\n\n" + in.BasePrompt
	}
	return Generated{Prompt: prompt, Temperature: 0.5}
}

func generateDSPyGRIPS(in GenerateInput) Generated {
	return Generated{
		Prompt: "Iteratively improve this instruction by deleting, swapping, and paraphrasing phrases until it is maximally precise, then execute the improved instruction:\n\n" + in.BasePrompt,
		Temperature: 0.5,
	}
}

func generateAutoDiCoT(in GenerateInput) Generated {
	prompt := in.BasePrompt + "\n\nBefore answering, write out the decision criteria relevant to this task as explicit directives, then follow them one by one."
	if in.Flavor == FlavorExtended {
		prompt = in.BasePrompt + "\n\nDerive a short checklist of directives for this kind of task, apply each directive in order while showing your work, and flag any directive that changed your preliminary answer."
	}
	return Generated{Prompt: prompt, Temperature: 0.3}
}

func generateUniversalSelfPrompt(in GenerateInput) Generated {
	prompt := "You are an expert in the relevant field. First restate the task in your own words, list what an excellent answer must contain, then produce that answer:\n\n" + in.BasePrompt
	if in.Flavor == FlavorExtended {
		prompt = "Adopt the persona best suited to this task and state it. Define three quality criteria an outstanding response must satisfy. Produce the response, then verify it against each criterion:\n\n" + in.BasePrompt
	}
	return Generated{Prompt: prompt, Temperature: 0.8}
}

func defaultExamples(taskType domain.TaskType) []string {
	switch taskType {
	case domain.TaskTypeMathReasoning:
		return []string{
			"Q: If 2y - 4 = 10, what is y?\nA: Add 4 to both sides: 2y = 14. Divide by 2: y = 7.",
			"Q: A train travels 120 km in 2 hours. What is its speed?\nA: Speed is distance over time: 120 / 2 = 60 km/h.",
		}
	case domain.TaskTypeClassification:
		return []string{
			"Text: \"The delivery was late and the box was damaged.\"\nLabel: negative — two complaints, no positive signal.",
			"Text: \"Setup took a minute and it works perfectly.\"\nLabel: positive — fast setup and full satisfaction.",
		}
	case domain.TaskTypeTranslation:
		return []string{
			"English: \"The weather is nice today.\"\nFrench: \"Il fait beau aujourd'hui.\"",
		}
	default:
		return []string{
			"Q: What causes tides?\nA: The gravitational pull of the moon and sun on the oceans, combined with Earth's rotation.",
		}
	}
}
