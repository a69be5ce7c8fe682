package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/breeze-rmm/driver-manager/internal/logging"
)

var log = logging.L("executor")

// MaxOutputSize is the maximum size of stdout/stderr to capture
const MaxOutputSize = 1024 * 1024 // 1MB

// Result is the outcome of a command that ran to completion.
// A non-zero ExitCode is a normal Result, not an error.
type Result struct {
	Name     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner launches external commands on the calling goroutine.
type Runner struct {
	maxOutput int
}

// New creates a Runner capturing up to MaxOutputSize bytes per stream.
func New() *Runner {
	return &Runner{maxOutput: MaxOutputSize}
}

// Run starts name with args, waits for it to exit and captures its output.
// The error is non-nil only when the process could not be started or was
// killed because ctx ended.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: r.limit()}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: r.limit()}

	setProcessGroup(cmd, false)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = time.Second

	log.Debug("running command", "name", name, "args", strings.Join(args, " "))
	err := cmd.Run()

	result := &Result{
		Name:     name,
		Args:     args,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.ExitCode = -1
			return result, fmt.Errorf("%s interrupted: %w", name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			log.Debug("command exited", "name", name, "exitCode", result.ExitCode, logging.KeyDurationMs, result.Duration.Milliseconds())
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("failed to start %s: %w", name, err)
	}

	log.Debug("command completed", "name", name, logging.KeyDurationMs, result.Duration.Milliseconds())
	return result, nil
}

// Start launches name with args without waiting for it. The child runs in
// its own process group so it outlives this process; its exit status is
// only logged.
func (r *Runner) Start(ctx context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	setProcessGroup(cmd, true)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	log.Debug("command launched", "name", name, "pid", cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn("detached command exited with error", "name", name, logging.KeyError, err)
			return
		}
		log.Debug("detached command completed", "name", name)
	}()
	return nil
}

func (r *Runner) limit() int {
	if r == nil || r.maxOutput <= 0 {
		return MaxOutputSize
	}
	return r.maxOutput
}

// limitedWriter wraps a buffer and stops writing after limit bytes
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	// Report the full length so os/exec does not fail with ErrShortWrite.
	n := len(p)
	if w.written >= w.limit {
		return n, nil
	}

	if remaining := w.limit - w.written; len(p) > remaining {
		p = p[:remaining]
	}
	written, err := w.buf.Write(p)
	w.written += written
	return n, err
}
