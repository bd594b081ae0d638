package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// stderrTailBytes bounds how much interpreter stderr travels back in an
// error message.
const stderrTailBytes = 2048

// evaluator turns cell source text into a result value.
type evaluator interface {
	Evaluate(ctx context.Context, source string) (string, error)
}

// interpreterEvaluator shells out to an interpreter, passing the source
// as the final argument ("python3 -c <source>"). Each job gets a fresh
// temp working directory; captured stdout becomes the result value and
// a non-zero exit becomes an error carrying the stderr tail.
type interpreterEvaluator struct {
	command []string
}

func (e *interpreterEvaluator) Evaluate(ctx context.Context, source string) (string, error) {
	dir, err := os.MkdirTemp("", "ainb-job-*")
	if err != nil {
		return "", fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := append(append([]string{}, e.command[1:]...), source)
	cmd := exec.CommandContext(ctx, e.command[0], args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return "", errors.New("evaluation timed out")
	case ctx.Err() != nil:
		return "", errors.New("evaluation cancelled")
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return "", fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), tail(stderr.String(), stderrTailBytes))
		}
		return "", fmt.Errorf("starting interpreter: %w", runErr)
	}
	return strings.TrimSuffix(stdout.String(), "\n"), nil
}

// tail returns at most n trailing bytes of s, whitespace-trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
