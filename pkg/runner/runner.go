// Package runner executes external commands with a wall-clock timeout and
// bounded output capture. It has no knowledge of OCR semantics; callers
// interpret the captured streams themselves.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/peterchen97/pdf-ocr-service/internal/models"
	"github.com/peterchen97/pdf-ocr-service/pkg/logger"
)

const (
	// MaxCapturedBytes caps each captured stream to keep memory bounded
	// even when the child is pathologically chatty.
	MaxCapturedBytes = 10 * 1024 * 1024

	// versionTimeout bounds the short probes used for --version checks.
	versionTimeout = 5 * time.Second

	// waitDelay is how long after a kill the runner waits for the child's
	// pipes before abandoning them. The timeout is the backstop against
	// processes that never close their streams.
	waitDelay = 5 * time.Second

	truncationMarker = "\n... [output truncated]"
)

// Runner abstracts process execution so the orchestration layer can be
// tested against scripted results.
type Runner interface {
	// Run executes the command under the given wall-clock budget. A
	// non-zero exit is reported through the result, not the error; the
	// error is non-nil only when the process could not be started at all.
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*models.ProcessResult, error)

	// Version invokes a binary with version-style arguments under a short
	// budget and returns its combined output.
	Version(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands through os/exec. The argument vector is passed
// to the kernel directly; no shell is involved and no quoting happens.
type ExecRunner struct {
	logger   logger.Logger
	maxBytes int
}

func NewExecRunner(log logger.Logger) *ExecRunner {
	return &ExecRunner{
		logger:   log,
		maxBytes: MaxCapturedBytes,
	}
}

func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*models.ProcessResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	stdout := newCappedBuffer(r.maxBytes)
	stderr := newCappedBuffer(r.maxBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	waitErr := cmd.Wait()
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	result := &models.ProcessResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: timedOut,
		Duration: time.Since(start),
	}

	switch {
	case waitErr == nil && !timedOut:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		// A timed-out run is a failure even if the exit status raced
		// to zero around the kill.
		if timedOut && result.ExitCode == 0 {
			result.ExitCode = -1
		}
	}

	if timedOut {
		r.logger.Warn("process killed after timeout",
			logger.String("command", name),
			logger.Duration("timeout", timeout),
		)
	}

	r.logger.Debug("process finished",
		logger.String("command", name),
		logger.Int("exitCode", result.ExitCode),
		logger.Duration("duration", result.Duration),
	)

	return result, nil
}

func (r *ExecRunner) Version(ctx context.Context, name string, args ...string) (string, error) {
	res, err := r.Run(ctx, versionTimeout, name, args...)
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		out = strings.TrimSpace(res.Stderr)
	}
	if !res.Success() {
		return out, fmt.Errorf("%s exited with code %d: %s", name, res.ExitCode, out)
	}
	return out, nil
}

// cappedBuffer accepts writes up to a fixed limit and silently drops the
// rest, remembering that truncation happened.
type cappedBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       strings.Builder
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return b.buf.String() + truncationMarker
	}
	return b.buf.String()
}
