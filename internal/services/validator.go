package services

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationVerdict is the result of the static pre-execution screen.
// SecurityViolation marks matches against the deny-list as opposed to
// ordinary shape/size failures.
type ValidationVerdict struct {
	Valid             bool   `json:"valid"`
	Error             string `json:"error,omitempty"`
	SecurityViolation bool   `json:"security_violation,omitempty"`
}

type denyRule struct {
	pattern *regexp.Regexp
	message string
}

var denyRules = map[string][]denyRule{
	"javascript": {
		{regexp.MustCompile(`(?i)require\s*\(`), "require() is not allowed"},
		{regexp.MustCompile(`(?i)import\s+`), "import statements are not allowed"},
		{regexp.MustCompile(`(?i)eval\s*\(`), "eval() is forbidden"},
		{regexp.MustCompile(`(?i)Function\s*\(`), "Function constructor is forbidden"},
		{regexp.MustCompile(`(?i)process\.`), "process object access is forbidden"},
		{regexp.MustCompile(`(?i)child_process`), "child_process is forbidden"},
		{regexp.MustCompile(`(?i)fs\.`), "file system access is forbidden"},
		{regexp.MustCompile(`(?i)\.exec\(`), "exec() is forbidden"},
		{regexp.MustCompile(`(?i)__dirname`), "__dirname is not available"},
		{regexp.MustCompile(`(?i)__filename`), "__filename is not available"},
		{regexp.MustCompile(`(?i)global\.`), "global object access is forbidden"},
		{regexp.MustCompile(`(?i)this\.constructor`), "constructor access is forbidden"},
	},
	"python": {
		{regexp.MustCompile(`(?i)import\s+os`), "os module is forbidden"},
		{regexp.MustCompile(`(?i)import\s+sys`), "sys module is forbidden"},
		{regexp.MustCompile(`(?i)import\s+subprocess`), "subprocess module is forbidden"},
		{regexp.MustCompile(`(?i)__import__`), "__import__ is forbidden"},
		{regexp.MustCompile(`(?i)eval\s*\(`), "eval() is forbidden"},
		{regexp.MustCompile(`(?i)exec\s*\(`), "exec() is forbidden"},
		{regexp.MustCompile(`(?i)compile\s*\(`), "compile() is forbidden"},
		{regexp.MustCompile(`(?i)open\s*\(`), "file operations are forbidden"},
	},
	"java": {
		{regexp.MustCompile(`(?i)Runtime\.getRuntime`), "Runtime access is forbidden"},
		{regexp.MustCompile(`(?i)ProcessBuilder`), "ProcessBuilder is forbidden"},
		{regexp.MustCompile(`(?i)System\.exit`), "System.exit is forbidden"},
		{regexp.MustCompile(`(?i)java\.io\.File`), "file operations are forbidden"},
		{regexp.MustCompile(`(?i)java\.net`), "network operations are forbidden"},
		{regexp.MustCompile(`(?i)java\.lang\.reflect`), "reflection is forbidden"},
	},
	"cpp": {
		{regexp.MustCompile(`(?i)system\s*\(`), "system() is forbidden"},
		{regexp.MustCompile(`(?i)exec[lv][pe]?\s*\(`), "exec family functions are forbidden"},
		{regexp.MustCompile(`(?i)popen\s*\(`), "popen() is forbidden"},
		{regexp.MustCompile(`(?i)#include\s*<fstream>`), "file operations are forbidden"},
		{regexp.MustCompile(`(?i)#include\s*<filesystem>`), "filesystem access is forbidden"},
	},
}

var (
	loopRegex     = regexp.MustCompile(`\b(for|while|do)\b`)
	functionRegex = regexp.MustCompile(`function\s+\w+|def\s+\w+`)
)

const (
	maxLoopCount     = 10
	maxFunctionCount = 20
)

// CodeValidator screens submissions before any process is spawned.
// Pure: no I/O, no side effects, every failure is a verdict, never a panic.
type CodeValidator struct {
	maxCodeLength int
}

func NewCodeValidator(maxCodeLength int) *CodeValidator {
	if maxCodeLength <= 0 {
		maxCodeLength = 10000
	}
	return &CodeValidator{maxCodeLength: maxCodeLength}
}

func (v *CodeValidator) Validate(code, language string) ValidationVerdict {
	if strings.TrimSpace(code) == "" {
		return ValidationVerdict{Valid: false, Error: "Code cannot be empty"}
	}
	if len(code) > v.maxCodeLength {
		return ValidationVerdict{
			Valid: false,
			Error: fmt.Sprintf("Code exceeds maximum length of %d characters (current: %d)", v.maxCodeLength, len(code)),
		}
	}

	language = strings.ToLower(language)

	if verdict := validateShape(code, language); !verdict.Valid {
		return verdict
	}

	rules, ok := denyRules[language]
	if !ok {
		rules = denyRules["javascript"]
	}
	for _, rule := range rules {
		if rule.pattern.MatchString(code) {
			return ValidationVerdict{
				Valid:             false,
				Error:             "Security violation: " + rule.message,
				SecurityViolation: true,
			}
		}
	}

	if n := len(loopRegex.FindAllString(code, -1)); n > maxLoopCount {
		return ValidationVerdict{
			Valid: false,
			Error: fmt.Sprintf("Code contains too many loops (max %d)", maxLoopCount),
		}
	}
	if n := len(functionRegex.FindAllString(code, -1)); n > maxFunctionCount {
		return ValidationVerdict{
			Valid: false,
			Error: fmt.Sprintf("Code contains too many functions (max %d)", maxFunctionCount),
		}
	}

	return ValidationVerdict{Valid: true}
}

// validateShape is a cheap per-language sanity heuristic, not a parser.
func validateShape(code, language string) ValidationVerdict {
	switch language {
	case "javascript":
		if strings.Contains(code, "<?") || strings.Contains(code, "?>") {
			return ValidationVerdict{Valid: false, Error: "Invalid JavaScript syntax detected"}
		}
	case "python":
		if strings.Contains(code, "{") && strings.Contains(code, "}") && !strings.Contains(code, "def") {
			return ValidationVerdict{Valid: false, Error: "Invalid Python syntax detected"}
		}
	case "java":
		if !strings.Contains(code, "class") && !strings.Contains(code, "public static") {
			return ValidationVerdict{Valid: false, Error: "Java code must contain a class or main method"}
		}
	case "cpp":
		if !strings.Contains(code, "int main") && !strings.Contains(code, "void main") {
			return ValidationVerdict{Valid: false, Error: "C++ code should contain a main function"}
		}
	}
	return ValidationVerdict{Valid: true}
}
