package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Defaults substituted for missing free-text fields.
const (
	DefaultOverallFeedback = "No feedback was provided for this answer."
	DefaultImprovementTips = "Review the reference answer and cover the core concept, a concrete example and relevant edge cases."
	DefaultFeedbackLimit   = 1000
	DefaultTipsLimit       = 1000
)

const ellipsis = "..."

// TextLimits bounds the free-text fields of a result, in runes.
type TextLimits struct {
	MaxFeedbackLength int
	MaxTipsLength     int
}

func (l TextLimits) withDefaults() TextLimits {
	if l.MaxFeedbackLength <= 0 {
		l.MaxFeedbackLength = DefaultFeedbackLimit
	}
	if l.MaxTipsLength <= 0 {
		l.MaxTipsLength = DefaultTipsLimit
	}
	return l
}

// RepairKind names the category of a recorded warning.
type RepairKind string

// Repair kinds.
const (
	RepairRounded       RepairKind = "rounded"
	RepairClamped       RepairKind = "clamped"
	RepairFinalScore    RepairKind = "final_score_mismatch"
	RepairDefaultText   RepairKind = "default_text"
	RepairTruncatedText RepairKind = "truncated_text"
)

// ValidationIssue describes one error or warning raised while validating a field.
type ValidationIssue struct {
	Field   string     `json:"field"`
	Kind    RepairKind `json:"kind,omitempty"`
	Message string     `json:"message"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationOutcome is the result of validating and repairing a recovered object.
// Data is always populated with the repaired values, even when IsValid is false.
type ValidationOutcome struct {
	IsValid     bool
	Data        EvaluationResult
	Errors      []ValidationIssue
	Warnings    []ValidationIssue
	WasRepaired bool
}

// ValidateScores enforces rubric bounds on the raw object, recomputes final_score and
// bounds the free-text fields. It never mutates raw.
func ValidateScores(raw map[string]any, rubric Rubric, limits TextLimits) ValidationOutcome {
	limits = limits.withDefaults()
	outcome := ValidationOutcome{}

	var scores CriterionScores
	for _, c := range Criteria {
		value, issue, warnings := normalizeCriterion(string(c), raw[string(c)], rubric.Max(c))
		if issue != nil {
			outcome.Errors = append(outcome.Errors, *issue)
		}
		outcome.Warnings = append(outcome.Warnings, warnings...)
		scores.Set(c, value)
	}

	final := scores.Sum()
	if claimed, present := raw["final_score"]; present && claimed != nil {
		if claimedValue, ok := toFloat(claimed); !ok || claimedValue != float64(final) {
			outcome.Warnings = append(outcome.Warnings, ValidationIssue{
				Field:   "final_score",
				Kind:    RepairFinalScore,
				Message: fmt.Sprintf("claimed %v, recomputed %d", claimed, final),
			})
		}
	}

	feedback, feedbackWarning := normalizeText("overall_feedback", raw["overall_feedback"], DefaultOverallFeedback, limits.MaxFeedbackLength)
	if feedbackWarning != nil {
		outcome.Warnings = append(outcome.Warnings, *feedbackWarning)
	}
	tips, tipsWarning := normalizeText("improvement_tips", raw["improvement_tips"], DefaultImprovementTips, limits.MaxTipsLength)
	if tipsWarning != nil {
		outcome.Warnings = append(outcome.Warnings, *tipsWarning)
	}

	outcome.Data = EvaluationResult{
		CriterionScores: scores,
		FinalScore:      final,
		OverallFeedback: feedback,
		ImprovementTips: tips,
	}
	outcome.IsValid = len(outcome.Errors) == 0
	outcome.WasRepaired = len(outcome.Warnings) > 0
	return outcome
}

func normalizeCriterion(field string, value any, max int) (int, *ValidationIssue, []ValidationIssue) {
	if value == nil {
		return 0, &ValidationIssue{Field: field, Message: "missing required score"}, nil
	}

	number, ok := toFloat(value)
	if !ok {
		return 0, &ValidationIssue{Field: field, Message: fmt.Sprintf("score %v is not numeric", value)}, nil
	}

	var warnings []ValidationIssue
	rounded := math.Round(number)
	if rounded != number {
		warnings = append(warnings, ValidationIssue{
			Field:   field,
			Kind:    RepairRounded,
			Message: fmt.Sprintf("rounded %v to %v", number, rounded),
		})
	}

	clamped := math.Min(math.Max(rounded, 0), float64(max))
	if clamped != rounded {
		warnings = append(warnings, ValidationIssue{
			Field:   field,
			Kind:    RepairClamped,
			Message: fmt.Sprintf("clamped %v into [0, %d]", rounded, max),
		})
	}

	return int(clamped), nil, warnings
}

func normalizeText(field string, value any, fallback string, limit int) (string, *ValidationIssue) {
	text := ""
	switch v := value.(type) {
	case string:
		text = strings.TrimSpace(v)
	case nil:
	default:
		text = strings.TrimSpace(fmt.Sprint(v))
	}

	if text == "" {
		return fallback, &ValidationIssue{Field: field, Kind: RepairDefaultText, Message: "missing text replaced with default"}
	}

	if utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		cut := limit - utf8.RuneCountInString(ellipsis)
		if cut < 0 {
			cut = 0
		}
		return string(runes[:cut]) + ellipsis, &ValidationIssue{
			Field:   field,
			Kind:    RepairTruncatedText,
			Message: fmt.Sprintf("truncated to %d characters", limit),
		}
	}

	return text, nil
}

func toFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
