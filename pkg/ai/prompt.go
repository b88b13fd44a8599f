package ai

import (
	"fmt"
	"strings"
)

// PromptVariant selects how much instruction the prompt carries.
type PromptVariant string

// Prompt variants.
const (
	PromptFull     PromptVariant = "full"
	PromptFallback PromptVariant = "fallback"
)

// Prompt is a system/user prompt pair.
type Prompt struct {
	Variant PromptVariant
	System  string
	User    string
}

// BuildPrompt renders the requested variant. Output is deterministic for identical input.
func BuildPrompt(input EvaluationInput, variant PromptVariant) Prompt {
	if variant == PromptFallback {
		return BuildFallbackPrompt(input)
	}
	return BuildFullPrompt(input)
}

// BuildFullPrompt embeds the rubric bounds, the JSON schema field by field and a
// self-verification checklist.
func BuildFullPrompt(input EvaluationInput) Prompt {
	rubric := input.Rubric

	system := strings.Builder{}
	system.WriteString("You are a strict technical interviewer grading a candidate's answer.\n")
	system.WriteString("You MUST respond with a single JSON object and nothing else: no markdown, no code fences, no prose.\n\n")
	system.WriteString("## Scoring rubric\n")
	for _, c := range Criteria {
		rule := rubric.Rule(c)
		fmt.Fprintf(&system, "- %s: integer from 0 to %d. %s\n", c, rule.MaxScore, rule.Weight)
	}
	fmt.Fprintf(&system, "- final_score: integer, the exact sum of the four criteria (0 to %d).\n\n", rubric.Total())

	system.WriteString("## Required JSON schema\n")
	system.WriteString("{\n")
	for _, c := range Criteria {
		fmt.Fprintf(&system, "  \"%s\": <integer 0-%d>,\n", c, rubric.Max(c))
	}
	fmt.Fprintf(&system, "  \"final_score\": <integer 0-%d>,\n", rubric.Total())
	system.WriteString("  \"overall_feedback\": \"<2-4 sentences on what the answer got right and wrong>\",\n")
	system.WriteString("  \"improvement_tips\": \"<concrete, actionable tips for a better answer>\"\n")
	system.WriteString("}\n\n")

	system.WriteString("## Before responding, verify\n")
	system.WriteString("1. Every score is a whole number, not a decimal or a string.\n")
	system.WriteString("2. No score exceeds its maximum or is below 0.\n")
	system.WriteString("3. final_score equals the sum of the four criteria.\n")
	system.WriteString("4. overall_feedback and improvement_tips are non-empty strings.\n")
	system.WriteString("5. The response is valid JSON with double-quoted keys and no trailing commas.\n")

	user := strings.Builder{}
	user.WriteString("# Question\n")
	user.WriteString(strings.TrimSpace(input.QuestionText))
	user.WriteString("\n\n# Reference answer\n")
	user.WriteString(strings.TrimSpace(input.IdealAnswer))
	user.WriteString("\n\n# Candidate answer\n")
	user.WriteString(strings.TrimSpace(input.UserAnswer))
	user.WriteString("\n\nGrade the candidate answer against the reference using the rubric. Return JSON only.")

	return Prompt{Variant: PromptFull, System: system.String(), User: user.String()}
}

// BuildFallbackPrompt keeps only the bounds and an inline example.
func BuildFallbackPrompt(input EvaluationInput) Prompt {
	rubric := input.Rubric

	bounds := make([]string, 0, len(Criteria))
	for _, c := range Criteria {
		bounds = append(bounds, fmt.Sprintf("%s 0-%d", c, rubric.Max(c)))
	}

	// example values are half marks, never the maximum
	var example CriterionScores
	for _, c := range Criteria {
		example.Set(c, rubric.Max(c)/2)
	}

	system := fmt.Sprintf("Grade the answer. Reply with JSON only. Integer scores: %s. final_score is their sum.\n"+
		"Example shape (values are placeholders): {\"concept_accuracy\":%d,\"example_usage\":%d,\"edge_cases\":%d,\"clarity\":%d,\"final_score\":%d,"+
		"\"overall_feedback\":\"...\",\"improvement_tips\":\"...\"}",
		strings.Join(bounds, ", "),
		example.ConceptAccuracy, example.ExampleUsage, example.EdgeCases, example.Clarity, example.Sum())

	user := fmt.Sprintf("Question: %s\nReference: %s\nAnswer: %s",
		strings.TrimSpace(input.QuestionText),
		strings.TrimSpace(input.IdealAnswer),
		strings.TrimSpace(input.UserAnswer))

	return Prompt{Variant: PromptFallback, System: system, User: user}
}
