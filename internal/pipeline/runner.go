package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// ErrStageTimeout is returned when a stage exceeds its time bound.
var ErrStageTimeout = errors.New("stage timed out")

// Command is one expanded stage invocation.
type Command struct {
	Stage   StageName
	Line    string
	Dir     string
	Output  io.Writer
	Timeout time.Duration
}

// Runner executes stage commands. ExecRunner is the production
// implementation; tests substitute a spy.
type Runner interface {
	Run(ctx context.Context, c Command) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, c Command) error

func (f RunnerFunc) Run(ctx context.Context, c Command) error { return f(ctx, c) }

// ExecRunner runs commands through a POSIX shell. On timeout or cancellation
// the whole process group of the stage is killed.
type ExecRunner struct {
	// Shell defaults to "sh".
	Shell string
	// WaitDelay bounds how long Run waits for output pipes after the process
	// is killed. Defaults to two seconds.
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, c Command) error {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	stageCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// #nosec G204 -- stage commands are operator-configured templates
	cmd := exec.CommandContext(stageCtx, shell, "-c", c.Line)
	cmd.Dir = c.Dir
	out := c.Output
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 2 * time.Second
	}
	configureProcessGroup(cmd)

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", c.Stage, ctx.Err())
	}
	if stageCtx.Err() != nil {
		return fmt.Errorf("%w after %s", ErrStageTimeout, c.Timeout)
	}
	return err
}

// exitCode extracts the process exit status from a runner error, or -1.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
