package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

type runRequest struct {
	command string
	args    []string
	stdin   string
	timeout time.Duration
}

// processRunner is the seam between the sandbox and the OS so tests can
// substitute a fake.
type processRunner interface {
	run(ctx context.Context, req runRequest) (string, error)
}

var (
	errTimeout        = errors.New("Execution timeout exceeded")
	errOutputExceeded = errors.New("Output size limit exceeded")
)

type defaultRunner struct{}

// run spawns the child process and kills it on timeout or when stdout
// passes the output ceiling.
func (defaultRunner) run(ctx context.Context, req runRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, req.command, req.args...)

	stdout := &cappedBuffer{limit: maxOutputBytes, kill: cancel}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if req.stdin != "" {
		cmd.Stdin = strings.NewReader(req.stdin)
	}

	err := cmd.Run()

	if stdout.exceeded {
		return "", errOutputExceeded
	}
	if ctx.Err() == context.DeadlineExceeded {
		return "", errTimeout
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("process exited with error: %v", err)
		}
		return "", errors.New(msg)
	}

	return stdout.String(), nil
}

// cappedBuffer kills the owning process as soon as the limit is hit
// instead of letting it fill the pipe until the timeout fires.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int
	exceeded bool
	kill     context.CancelFunc
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.limit {
		b.exceeded = true
		if b.kill != nil {
			b.kill()
		}
		return 0, errOutputExceeded
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}

var (
	pathRegex = regexp.MustCompile(`/[^\s]+`)
	lineRegex = regexp.MustCompile(`at line \d+`)
)

// sanitizeError redacts host paths and line hints and caps the length so
// error text handed back to students leaks nothing about the host.
func sanitizeError(msg string) string {
	msg = pathRegex.ReplaceAllString(msg, "[path]")
	msg = lineRegex.ReplaceAllString(msg, "at line [redacted]")
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength] + "..."
	}
	return msg
}
