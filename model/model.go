// Package model defines test case and result types for the nao test
// harness, plus the pure comparison and extraction logic applied to
// agent output.
package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/getnao/nao-cli/logger"
	"github.com/getnao/nao-cli/templates"
	"gopkg.in/yaml.v3"
)

// Row is a single tabular record as returned by the SQL execution server.
type Row = map[string]any

// ============================================================================
// TEST CASE
// ============================================================================

// TestCase is a single declarative test loaded from a YAML file.
type TestCase struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
	// SQL is the ground-truth query. Empty means no answer is expected.
	SQL string `yaml:"sql"`
	// SchemaOutput lists expected output columns, used as the schema hint
	// when SQL is empty.
	SchemaOutput []string `yaml:"schema_output"`
	FilePath     string   `yaml:"-"`
}

// ExpectsNoAnswer reports whether this test asserts that the agent should
// decline to answer.
func (tc TestCase) ExpectsNoAnswer() bool {
	return strings.TrimSpace(tc.SQL) == ""
}

// ParseTestCase loads a test case from a single YAML file.
func ParseTestCase(path string) (TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TestCase{}, fmt.Errorf("failed to read file: %w", err)
	}

	var tc TestCase
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return TestCase{}, fmt.Errorf("failed to parse YAML test case: %w", err)
	}

	if tc.Name == "" {
		return TestCase{}, fmt.Errorf("test case is missing required field 'name'")
	}
	if tc.Prompt == "" {
		return TestCase{}, fmt.Errorf("test case %q is missing required field 'prompt'", tc.Name)
	}

	tc.FilePath = path
	return tc, nil
}

// LoadTestCases scans testsDir (non-recursively) for *.yml and *.yaml test
// definitions. Files that fail to parse are skipped with a warning so one
// malformed definition cannot block a run. Prompt and SQL templates are
// resolved against variables.
func LoadTestCases(testsDir string, variables map[string]string) ([]TestCase, error) {
	if _, err := os.Stat(testsDir); err != nil {
		return nil, fmt.Errorf("tests folder not found: %w", err)
	}

	var testCases []TestCase
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(testsDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan tests folder: %w", err)
		}
		for _, path := range matches {
			tc, err := ParseTestCase(path)
			if err != nil {
				logger.Logger.Warn("Skipping unparsable test file",
					"file", path,
					"error", err)
				continue
			}
			tc.Prompt = ResolveTemplate(tc.Prompt, variables)
			tc.SQL = ResolveTemplate(tc.SQL, variables)
			testCases = append(testCases, tc)
		}
	}

	return testCases, nil
}

// ResolveTemplate renders {{variable}} references and helper calls in s
// against vars. Unparsable templates and render failures leave s
// untouched.
func ResolveTemplate(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	templates.RegisterHelpers()
	t, err := raymond.Parse(s)
	if err != nil {
		return s
	}
	rendered, err := t.Exec(vars)
	if err != nil {
		return s
	}
	return rendered
}

// ============================================================================
// TEST RESULT
// ============================================================================

// TestResult captures the outcome and artifacts of running one test case.
type TestResult struct {
	Name        string  `json:"name"`
	TimeSeconds float64 `json:"timeSeconds"`
	TotalTokens int     `json:"totalTokens"`
	IsCorrect   bool    `json:"isCorrect"`
	// HasAnswer is nil when no answer was expected and none was given.
	HasAnswer     *bool  `json:"hasAnswer,omitempty"`
	Error         string `json:"error,omitempty"`
	AgentSQL      string `json:"agentSql,omitempty"`
	ExpectedData  []Row  `json:"expectedData,omitempty"`
	ActualData    []Row  `json:"actualData,omitempty"`
	FinalPrompt   string `json:"finalPrompt,omitempty"`
	AgentResponse string `json:"agentResponse,omitempty"`
	// BytesProcessed sums scanner bytes over every SQL execution performed
	// for this test. Zero means the backend did not report the metric.
	BytesProcessed int64 `json:"bytesProcessed,omitempty"`
}

// BoolPtr returns a pointer to b, for populating TestResult.HasAnswer.
func BoolPtr(b bool) *bool {
	return &b
}
