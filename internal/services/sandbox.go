package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"campusgrid/internal/logger"
	"campusgrid/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxTestCases   = 20
	maxOutputBytes = 100 * 1024
	maxErrorLength = 500

	hiddenSentinel = "Hidden"
)

type LanguageConfig struct {
	RunCommand     []string // {FILE} and {DIR} are substituted per case
	CompileCommand []string
	FileName       string
	Timeout        time.Duration
	NeedsCompile   bool
}

var languageConfigs = map[string]LanguageConfig{
	"javascript": {
		RunCommand: []string{"node", "{FILE}"},
		FileName:   "main.js",
		Timeout:    5 * time.Second,
	},
	"python": {
		RunCommand: []string{"python", "{FILE}"},
		FileName:   "main.py",
		Timeout:    5 * time.Second,
	},
	"java": {
		RunCommand:     []string{"java", "-cp", "{DIR}", "Main"},
		CompileCommand: []string{"javac", "{FILE}"},
		FileName:       "Main.java",
		Timeout:        10 * time.Second,
		NeedsCompile:   true,
	},
	"cpp": {
		RunCommand:     []string{"{DIR}/solution"},
		CompileCommand: []string{"g++", "{FILE}", "-o", "{DIR}/solution"},
		FileName:       "main.cpp",
		Timeout:        10 * time.Second,
		NeedsCompile:   true,
	},
}

func SupportedLanguages() []string {
	names := make([]string, 0, len(languageConfigs))
	for name := range languageConfigs {
		names = append(names, name)
	}
	return names
}

// ExecutionResult is the outcome of one test case. Hidden cases have
// their input/expected/actual replaced by a sentinel before this struct
// is built, so raw content never leaves the sandbox.
type ExecutionResult struct {
	Input           string `json:"input"`
	ExpectedOutput  string `json:"expected_output"`
	ActualOutput    string `json:"actual_output"`
	Passed          bool   `json:"passed"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// ExecutionReport aggregates one Execute call. Success is false only
// when the run could not be attempted at all; individual case failures
// are reflected per result.
type ExecutionReport struct {
	Success              bool              `json:"success"`
	Error                string            `json:"error,omitempty"`
	Results              []ExecutionResult `json:"results"`
	PassedCount          int               `json:"passed_count"`
	TotalCount           int               `json:"total_count"`
	Percentage           float64           `json:"percentage"`
	Language             string            `json:"language"`
	TotalExecutionTimeMs int64             `json:"total_execution_time_ms"`
	Timestamp            time.Time         `json:"timestamp"`
}

// Sandbox compiles and runs one candidate program per test case in an
// isolated scratch directory, enforcing per-run timeouts and an output
// ceiling. Calls are independent; total concurrent child processes are
// bounded by the semaphore.
type Sandbox struct {
	workDir string
	sem     chan struct{}
	runner  processRunner
}

func NewSandbox(workDir string, maxConcurrent int) (*Sandbox, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Sandbox{
		workDir: workDir,
		sem:     make(chan struct{}, maxConcurrent),
		runner:  defaultRunner{},
	}, nil
}

func (s *Sandbox) Execute(ctx context.Context, code string, testCases []models.TestCase, language string) (*ExecutionReport, error) {
	started := time.Now()
	language = strings.ToLower(language)

	report := &ExecutionReport{
		Language:   language,
		TotalCount: len(testCases),
		Timestamp:  started,
	}

	config, ok := languageConfigs[language]
	if !ok {
		report.Error = fmt.Sprintf("Language '%s' is not supported", language)
		return report, ErrUnsupportedLanguage
	}
	if len(testCases) == 0 {
		report.Error = "At least one test case is required"
		return report, ErrNoTestCases
	}
	if len(testCases) > maxTestCases {
		report.Error = fmt.Sprintf("Maximum %d test cases allowed", maxTestCases)
		return report, ErrTooManyTestCases
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		report.Error = "Execution cancelled"
		return report, ctx.Err()
	}
	defer func() { <-s.sem }()

	// Test cases run strictly sequentially; a failure in one never
	// stops the rest.
	for _, tc := range testCases {
		report.Results = append(report.Results, s.runTestCase(ctx, code, tc, language, config))
	}

	for _, r := range report.Results {
		if r.Passed {
			report.PassedCount++
		}
	}
	if report.TotalCount > 0 {
		report.Percentage = float64(report.PassedCount) / float64(report.TotalCount) * 100
	}
	report.Success = true
	report.TotalExecutionTimeMs = time.Since(started).Milliseconds()

	logger.Log.Info("Code execution finished",
		zap.String("language", language),
		zap.Int("tests", report.TotalCount),
		zap.Int("passed", report.PassedCount),
		zap.Int64("total_time_ms", report.TotalExecutionTimeMs))

	return report, nil
}

func (s *Sandbox) runTestCase(ctx context.Context, code string, tc models.TestCase, language string, config LanguageConfig) ExecutionResult {
	started := time.Now()

	result := ExecutionResult{
		Input:          tc.Input,
		ExpectedOutput: strings.TrimSpace(tc.ExpectedOutput),
	}

	sessionID := uuid.NewString()
	caseDir := filepath.Join(s.workDir, "case_"+sessionID)

	fail := func(err error) ExecutionResult {
		result.Passed = false
		result.ActualOutput = ""
		result.Error = sanitizeError(err.Error())
		result.ExecutionTimeMs = time.Since(started).Milliseconds()
		return redactIfHidden(result, tc)
	}

	if err := os.MkdirAll(caseDir, 0o755); err != nil {
		return fail(fmt.Errorf("failed to create scratch directory: %w", err))
	}
	defer os.RemoveAll(caseDir)

	filePath := filepath.Join(caseDir, config.FileName)
	finalCode := wrapCode(code, tc.Input, language)
	if err := os.WriteFile(filePath, []byte(finalCode), 0o644); err != nil {
		return fail(fmt.Errorf("failed to write source file: %w", err))
	}

	stdin, err := json.Marshal(tc.Input)
	if err != nil {
		return fail(err)
	}

	if config.NeedsCompile {
		compileCmd := substitute(config.CompileCommand, filePath, caseDir)
		if _, err := s.runner.run(ctx, runRequest{
			command: compileCmd[0],
			args:    compileCmd[1:],
			timeout: config.Timeout,
		}); err != nil {
			return fail(err)
		}
	}

	runCmd := substitute(config.RunCommand, filePath, caseDir)
	output, err := s.runner.run(ctx, runRequest{
		command: runCmd[0],
		args:    runCmd[1:],
		stdin:   string(stdin),
		timeout: config.Timeout,
	})
	if err != nil {
		return fail(err)
	}

	result.ActualOutput = strings.TrimSpace(output)
	result.Passed = result.ActualOutput == result.ExpectedOutput
	result.ExecutionTimeMs = time.Since(started).Milliseconds()
	return redactIfHidden(result, tc)
}

func substitute(template []string, filePath, dir string) []string {
	out := make([]string, len(template))
	for i, part := range template {
		part = strings.ReplaceAll(part, "{FILE}", filePath)
		part = strings.ReplaceAll(part, "{DIR}", dir)
		out[i] = part
	}
	return out
}

// wrapCode injects the test-case input ahead of the candidate body so it
// can read input without file or network access.
func wrapCode(code, input, language string) string {
	encoded, _ := json.Marshal(input)
	switch language {
	case "javascript":
		return fmt.Sprintf("const input = %s;\n%s\n", encoded, code)
	case "python":
		return fmt.Sprintf("input_data = %s\n%s\n", encoded, code)
	case "java":
		return fmt.Sprintf("public class Main {\n    public static void main(String[] args) {\n%s\n    }\n}\n", code)
	case "cpp":
		return fmt.Sprintf("#include <iostream>\n#include <string>\n#include <vector>\nusing namespace std;\n\n%s\n", code)
	default:
		return code
	}
}

func redactIfHidden(result ExecutionResult, tc models.TestCase) ExecutionResult {
	if !tc.Hidden {
		return result
	}
	result.Input = hiddenSentinel
	result.ExpectedOutput = hiddenSentinel
	result.ActualOutput = hiddenSentinel
	return result
}
