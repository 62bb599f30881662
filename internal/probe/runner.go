package probe

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CommandStatus classifies how an external command ended
type CommandStatus int

const (
	// CommandOK means the command exited with status 0
	CommandOK CommandStatus = iota

	// CommandNotFound means the executable is not on PATH
	CommandNotFound

	// CommandFailed means the command could not start or exited non-zero
	CommandFailed

	// CommandTimedOut means the command was killed after the runner timeout
	CommandTimedOut
)

func (s CommandStatus) String() string {
	switch s {
	case CommandOK:
		return "ok"
	case CommandNotFound:
		return "not_found"
	case CommandFailed:
		return "failed"
	case CommandTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// CommandResult is the outcome of one command execution. Output is stdout
// trimmed of surrounding whitespace and is kept even when the command fails.
type CommandResult struct {
	Output   string
	Status   CommandStatus
	ExitCode int
	Err      error
}

// OK reports whether the command exited successfully
func (r CommandResult) OK() bool {
	return r.Status == CommandOK
}

// Runner executes external commands. Implementations never panic and never
// return a Go error: failure is encoded in the result.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) CommandResult
}

// ExecRunner runs commands as subprocesses with a per-call timeout
type ExecRunner struct {
	logger  *zap.Logger
	timeout time.Duration
}

// NewExecRunner creates a runner that kills any command still running after timeout
func NewExecRunner(logger *zap.Logger, timeout time.Duration) *ExecRunner {
	return &ExecRunner{
		logger:  logger,
		timeout: timeout,
	}
}

// Run executes name with args and captures stdout
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) CommandResult {
	command := strings.TrimSpace(name + " " + strings.Join(args, " "))

	path, err := exec.LookPath(name)
	if err != nil {
		r.logger.Debug("Command not found", zap.String("command", command))
		return CommandResult{Status: CommandNotFound, ExitCode: -1, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	configureProcess(cmd)

	err = cmd.Run()
	result := CommandResult{
		Output: strings.TrimSpace(stdout.String()),
		Err:    err,
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Status = CommandTimedOut
		result.ExitCode = -1
		r.logger.Debug("Command timed out",
			zap.String("command", command),
			zap.Duration("timeout", r.timeout))

	case err == nil:
		result.Status = CommandOK

	default:
		result.Status = CommandFailed
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		r.logger.Debug("Command failed",
			zap.String("command", command),
			zap.Int("exit_code", result.ExitCode),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err))
	}

	return result
}
