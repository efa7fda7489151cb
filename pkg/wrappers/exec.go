package wrappers

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/cisaudit/pkg/engine"
)

// DefaultTimeout bounds a subprocess when the caller gives no timeout.
const DefaultTimeout = 30 * time.Second

// CommandResult is the captured output of a finished subprocess.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes an argv without a shell.
type Runner interface {
	Run(ctx context.Context, argv []string, timeout time.Duration) (CommandResult, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts argv[0] with the remaining arguments and waits at most timeout.
// A non-zero exit is a result, not an error. Exceeding timeout returns
// engine.ErrTimeout and a failed start returns *engine.LaunchError.
func (ExecRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (CommandResult, error) {
	if len(argv) == 0 || argv[0] == "" {
		return CommandResult{}, &engine.LaunchError{Argv: argv, Err: errors.New("empty command")}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	zerolog.Ctx(ctx).Debug().Strs("argv", argv).Dur("timeout", timeout).Msg("running command")
	err := cmd.Run()

	// Parent cancellation takes precedence over our own deadline.
	if ctx.Err() != nil {
		return CommandResult{}, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return CommandResult{}, engine.ErrTimeout
	}

	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return CommandResult{}, &engine.LaunchError{Argv: argv, Err: err}
	}
	return res, nil
}
