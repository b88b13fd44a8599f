package evalcase

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"

	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6B50FF"))
	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#12C78F"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF388B"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#858392"))
)

// Result pairs a case with the evaluation it produced.
type Result struct {
	Case       Case
	Evaluation ai.Evaluation
	Violations []string
}

// Passed reports whether every expectation of the case held.
func (r Result) Passed() bool {
	return len(r.Violations) == 0
}

// Check compares an evaluation with the case expectations.
func Check(c Case, evaluation ai.Evaluation) Result {
	result := Result{Case: c, Evaluation: evaluation}
	score := evaluation.Data.FinalScore

	if c.ExpectMinScore != nil && score < int(*c.ExpectMinScore) {
		result.Violations = append(result.Violations, fmt.Sprintf("score %d below expected minimum %d", score, *c.ExpectMinScore))
	}
	if c.ExpectMaxScore != nil && score > int(*c.ExpectMaxScore) {
		result.Violations = append(result.Violations, fmt.Sprintf("score %d above expected maximum %d", score, *c.ExpectMaxScore))
	}
	if c.ExpectSuccess != nil && evaluation.Success != *c.ExpectSuccess {
		result.Violations = append(result.Violations, fmt.Sprintf("success was %t, expected %t", evaluation.Success, *c.ExpectSuccess))
	}
	return result
}

// Failed counts results with at least one violated expectation.
func Failed(results []Result) int {
	failed := 0
	for _, r := range results {
		if !r.Passed() {
			failed++
		}
	}
	return failed
}

// Render builds the styled run report.
func Render(results []Result, verbose bool) string {
	var out strings.Builder

	out.WriteString(headingStyle.Render("# Evaluation Summary") + "\n\n")

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, resultRow(r))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(headingStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(headingStyle.GetForeground()).Padding(0, 2)
			}
			return lipgloss.NewStyle().Padding(0, 2)
		}).
		Headers("Case", "Status", "Score", "Expected", "Success", "Retries", "Time (ms)").
		Rows(rows...)

	out.WriteString(t.String() + "\n\n")

	failed := Failed(results)
	summary := fmt.Sprintf("%d case(s), %d passed, %d failed", len(results), len(results)-failed, failed)
	if failed > 0 {
		out.WriteString(failStyle.Render(summary) + "\n")
	} else {
		out.WriteString(passStyle.Render(summary) + "\n")
	}

	if verbose {
		out.WriteString("\n" + headingStyle.Render("## Details") + "\n\n")
		for _, r := range results {
			out.WriteString(headingStyle.Render("### "+r.Case.Name) + "\n")
			scores := r.Evaluation.Data.CriterionScores
			out.WriteString(fmt.Sprintf("concept %d, examples %d, edge cases %d, clarity %d\n",
				scores.ConceptAccuracy, scores.ExampleUsage, scores.EdgeCases, scores.Clarity))
			out.WriteString("feedback: " + r.Evaluation.Data.OverallFeedback + "\n")
			out.WriteString("tips: " + r.Evaluation.Data.ImprovementTips + "\n")
			if r.Evaluation.Error != "" {
				out.WriteString(failStyle.Render("error: "+r.Evaluation.Error) + "\n")
			}
			for _, w := range r.Evaluation.Metadata.Warnings {
				out.WriteString(mutedStyle.Render("warning: "+w) + "\n")
			}
			for _, v := range r.Violations {
				out.WriteString(failStyle.Render("violation: "+v) + "\n")
			}
			out.WriteString("\n")
		}
	}

	return out.String()
}

func resultRow(r Result) []string {
	name := r.Case.Name
	if len(name) > 28 {
		name = name[:25] + "..."
	}

	status := passStyle.Render("PASS")
	if !r.Passed() {
		status = failStyle.Render("FAIL")
	}

	return []string{
		name,
		status,
		fmt.Sprintf("%d/%d", r.Evaluation.Data.FinalScore, ai.RubricTotal),
		expectedRange(r.Case),
		fmt.Sprintf("%t", r.Evaluation.Success),
		fmt.Sprintf("%d", r.Evaluation.Metadata.RetryCount),
		fmt.Sprintf("%d", r.Evaluation.Metadata.ProcessingTimeMs),
	}
}

func expectedRange(c Case) string {
	switch {
	case c.ExpectMinScore != nil && c.ExpectMaxScore != nil:
		return fmt.Sprintf("%d-%d", *c.ExpectMinScore, *c.ExpectMaxScore)
	case c.ExpectMinScore != nil:
		return fmt.Sprintf(">=%d", *c.ExpectMinScore)
	case c.ExpectMaxScore != nil:
		return fmt.Sprintf("<=%d", *c.ExpectMaxScore)
	default:
		return mutedStyle.Render("-")
	}
}
