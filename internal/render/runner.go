package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// processWaitDelay bounds how long Run waits for output pipes to close after
// the program has been killed or has exited.
const processWaitDelay = 3 * time.Second

// Runner executes an external program.
// Implementations must honor ctx: when it is done the program is killed.
type Runner interface {
	// Run executes name with args and waits for it to exit.
	// A non-zero exit status is returned as an error.
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the program, discarding stdout and keeping stderr for the
// error message. On cancellation the whole process group is killed where the
// platform supports it, so helpers forked by the program do not outlive it.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	if name == "" {
		return ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	cmd.WaitDelay = processWaitDelay
	setProcessGroup(cmd)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	if msg := trimStderr(stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}
