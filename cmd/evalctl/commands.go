package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-eval-api/internal/config"
	"github.com/noah-isme/interview-eval-api/internal/evalcase"
	"github.com/noah-isme/interview-eval-api/internal/service"
	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

var stdout io.Writer = os.Stdout

// Globals contains flags shared across all commands.
type Globals struct {
	Debug bool `help:"Log provider attempts to stderr"`
}

func (g *Globals) logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if g.Debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// RunCmd evaluates every case of a case file.
type RunCmd struct {
	Cases    string `help:"Path to the case file (YAML or JSON)" required:"" type:"path"`
	Provider string `help:"LLM provider" enum:"openai,anthropic" default:"openai" env:"INTERVIEW_AI_PROVIDER"`
	APIKey   string `help:"Provider API key (defaults to OPENAI_API_KEY or ANTHROPIC_API_KEY)"`
	BaseURL  string `help:"Override the provider base URL" env:"INTERVIEW_AI_BASE_URL"`
	Filter   string `help:"Only run cases whose name matches this regular expression"`
	Verbose  bool   `help:"Show per-case feedback and violations" short:"V"`
}

type caseEvaluator interface {
	Evaluate(ctx context.Context, input ai.EvaluationInput) ai.Evaluation
}

// Run executes the run command.
func (r *RunCmd) Run(globals *Globals) error {
	file, err := evalcase.Load(r.Cases)
	if err != nil {
		return fmt.Errorf("failed to load cases: %w", err)
	}

	cases, err := filterCases(file.Cases, r.Filter)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no cases match filter %q", r.Filter)
	}

	timeout, err := file.Timeout()
	if err != nil {
		return err
	}

	cfg := config.AIConfig{
		Provider:       r.Provider,
		Model:          file.Model,
		BaseURL:        r.BaseURL,
		Temperature:    float32(file.Temperature),
		MaxTokens:      file.MaxTokens,
		AttemptTimeout: timeout,
		MaxRetries:     file.RetryBudget(),
	}
	switch r.Provider {
	case "anthropic":
		cfg.AnthropicAPIKey = firstNonEmpty(r.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	default:
		cfg.OpenAIAPIKey = firstNonEmpty(r.APIKey, os.Getenv("OPENAI_API_KEY"))
	}

	evaluator, err := service.NewEvaluatorFromConfig(cfg, nil, globals.logger())
	if err != nil {
		return fmt.Errorf("failed to create evaluator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := runCases(ctx, evaluator, cases)
	fmt.Fprint(stdout, evalcase.Render(results, r.Verbose))

	if failed := evalcase.Failed(results); failed > 0 {
		return fmt.Errorf("%d case(s) did not meet expectations", failed)
	}
	return nil
}

func runCases(ctx context.Context, evaluator caseEvaluator, cases []evalcase.Case) []evalcase.Result {
	results := make([]evalcase.Result, 0, len(cases))
	for i, c := range cases {
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(stdout, "[%d/%d] %s\n", i+1, len(cases), c.Name)
		results = append(results, evalcase.Check(c, evaluator.Evaluate(ctx, c.Input())))
	}
	return results
}

func filterCases(cases []evalcase.Case, pattern string) ([]evalcase.Case, error) {
	if pattern == "" {
		return cases, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filter pattern: %w", err)
	}

	var filtered []evalcase.Case
	for _, c := range cases {
		if re.MatchString(c.Name) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ValidateCmd checks a case file against the schema.
type ValidateCmd struct {
	Cases string `help:"Path to the case file (YAML or JSON)" required:"" type:"path"`
}

// Run executes the validate command.
func (v *ValidateCmd) Run(globals *Globals) error {
	result, err := evalcase.ValidateFile(v.Cases)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if result.Valid {
		fmt.Fprintf(stdout, "case file is valid: %s\n", v.Cases)
		return nil
	}

	fmt.Fprintf(stdout, "case file has %d error(s):\n\n", len(result.Errors))
	for i, msg := range result.Errors {
		fmt.Fprintf(stdout, "%d. %s\n", i+1, msg)
	}
	return fmt.Errorf("validation failed")
}

// SchemaCmd prints the case file schema.
type SchemaCmd struct{}

// Run executes the schema command.
func (s *SchemaCmd) Run(globals *Globals) error {
	schema, err := evalcase.Schema()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Fprintln(stdout, schema)
	return nil
}
