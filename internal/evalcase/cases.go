// Package evalcase loads offline evaluation case files and checks evaluator results
// against their expected score bounds.
package evalcase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"

	"github.com/noah-isme/interview-eval-api/internal/dto"
	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

// Score is a 0-10 answer score.
type Score int

// Retries is the retry budget of the evaluator.
type Retries int

// File is the top-level structure of a case file.
type File struct {
	Model          string   `yaml:"model" json:"model" jsonschema:"Model ID used for grading"`
	Temperature    float64  `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"Sampling temperature"`
	MaxTokens      int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"Maximum completion tokens per attempt"`
	MaxRetries     *Retries `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"Retries after the first attempt"`
	AttemptTimeout string   `yaml:"attempt_timeout,omitempty" json:"attempt_timeout,omitempty" jsonschema:"Timeout for a single provider call (e.g. '30s')"`
	Cases          []Case   `yaml:"cases" json:"cases" jsonschema:"Answers to evaluate"`
}

// Case is one question/answer pair with optional expectations.
type Case struct {
	Name           string             `yaml:"name" json:"name" jsonschema:"Unique case name"`
	Question       string             `yaml:"question" json:"question" jsonschema:"Interview question text"`
	IdealAnswer    string             `yaml:"ideal_answer" json:"ideal_answer" jsonschema:"Reference answer"`
	Answer         string             `yaml:"answer" json:"answer" jsonschema:"Candidate answer to grade"`
	Rubric         *dto.RubricRequest `yaml:"rubric,omitempty" json:"rubric,omitempty" jsonschema:"Per-criterion max scores; must sum to 10 (defaults to 4/3/2/1)"`
	ExpectMinScore *Score             `yaml:"expect_min_score,omitempty" json:"expect_min_score,omitempty" jsonschema:"Fail the run when the score is lower"`
	ExpectMaxScore *Score             `yaml:"expect_max_score,omitempty" json:"expect_max_score,omitempty" jsonschema:"Fail the run when the score is higher"`
	ExpectSuccess  *bool              `yaml:"expect_success,omitempty" json:"expect_success,omitempty" jsonschema:"Fail the run when the evaluation success flag differs"`
}

// Input converts the case into an evaluator input.
func (c Case) Input() ai.EvaluationInput {
	rubric := ai.DefaultRubric()
	if c.Rubric != nil {
		rubric = c.Rubric.ToRubric()
	}
	return ai.EvaluationInput{
		QuestionText: c.Question,
		IdealAnswer:  c.IdealAnswer,
		Rubric:       rubric,
		UserAnswer:   c.Answer,
	}
}

// Timeout parses the attempt timeout, returning zero when unset.
func (f File) Timeout() (time.Duration, error) {
	if f.AttemptTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(f.AttemptTimeout)
}

// RetryBudget returns the configured retries, or -1 when the file leaves the evaluator
// default in place. An explicit 0 means a single attempt.
func (f File) RetryBudget() int {
	if f.MaxRetries == nil {
		return -1
	}
	return int(*f.MaxRetries)
}

// Load reads a YAML or JSON case file. ${VAR} and ${VAR:-default} references are
// expanded from the environment before parsing.
func Load(path string) (*File, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var file File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML case file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON case file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file extension: %s (expected .yaml, .yml, or .json)", ext)
	}

	if err := file.check(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f File) check() error {
	if f.Model == "" {
		return fmt.Errorf("model is required in case file")
	}
	if len(f.Cases) == 0 {
		return fmt.Errorf("at least one case is required")
	}
	if _, err := f.Timeout(); err != nil {
		return fmt.Errorf("invalid attempt_timeout: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Cases))
	for i, c := range f.Cases {
		if c.Name == "" {
			return fmt.Errorf("case[%d] has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("case %q is defined more than once", c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.Rubric != nil {
			if err := c.Rubric.ToRubric().Validate(); err != nil {
				return fmt.Errorf("case %q has invalid rubric: %w", c.Name, err)
			}
		}
		if c.ExpectMinScore != nil && c.ExpectMaxScore != nil && *c.ExpectMinScore > *c.ExpectMaxScore {
			return fmt.Errorf("case %q expects min score above max score", c.Name)
		}
	}
	return nil
}

func readExpanded(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	expanded, err := shell.Expand(string(data), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}
	return []byte(expanded), nil
}

func generateSchema() (*jsonschema.Schema, error) {
	customSchemas := map[reflect.Type]*jsonschema.Schema{
		reflect.TypeFor[Score]():   {Type: "integer", Minimum: jsonschema.Ptr(0.0), Maximum: jsonschema.Ptr(float64(ai.RubricTotal))},
		reflect.TypeFor[Retries](): {Type: "integer", Minimum: jsonschema.Ptr(0.0), Maximum: jsonschema.Ptr(10.0), Default: json.RawMessage("2")},
	}

	schema, err := jsonschema.For[File](&jsonschema.ForOptions{TypeSchemas: customSchemas})
	if err != nil {
		return nil, fmt.Errorf("failed to generate JSON schema: %w", err)
	}

	schema.Title = "Interview Evaluation Cases"
	schema.Description = "Offline cases for checking the answer evaluator against expected score bounds"
	schema.Schema = "https://json-schema.org/draft/2020-12/schema"
	return schema, nil
}

// Schema returns the case-file JSON Schema, indented.
func Schema() (string, error) {
	schema, err := generateSchema()
	if err != nil {
		return "", err
	}

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(out), nil
}

// ValidationResult reports whether a case file matches the schema.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateFile checks a case file against the JSON Schema. YAML files are converted to
// JSON before validation.
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var document any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		var yamlData any
		if err := yaml.Unmarshal(data, &yamlData); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		converted, err := json.Marshal(yamlData)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML to JSON: %w", err)
		}
		data = converted
	case ".json":
	default:
		return nil, fmt.Errorf("unsupported file extension: %s (expected .yaml, .yml, or .json)", ext)
	}

	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse case file as JSON: %w", err)
	}

	schema, err := generateSchema()
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}

	result := &ValidationResult{Valid: true}
	if err := resolved.Validate(document); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	return result, nil
}
