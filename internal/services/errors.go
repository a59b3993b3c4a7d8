package services

import "errors"

// Sandbox hard failures: the whole Execute call is rejected, as opposed
// to per-case failures which land in the report.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrNoTestCases         = errors.New("at least one test case is required")
	ErrTooManyTestCases    = errors.New("maximum 20 test cases allowed")
)

// Attempt state machine failures.
var (
	ErrConflict        = errors.New("a non-terminal attempt already exists")
	ErrNotFound        = errors.New("not found")
	ErrAttemptClosed   = errors.New("attempt is not in progress")
	ErrStartInProgress = errors.New("exam start already in progress")
)

// ValidationError carries a rejected submission's verdict through the
// attempt service without touching the sandbox.
type ValidationError struct {
	Message           string
	SecurityViolation bool
}

func (e *ValidationError) Error() string {
	return e.Message
}
