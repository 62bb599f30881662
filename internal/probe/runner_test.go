//go:build unix

package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestExecRunner(t *testing.T) {
	runner := NewExecRunner(zap.NewNop(), 5*time.Second)

	tests := []struct {
		name     string
		command  string
		args     []string
		status   CommandStatus
		output   string
		exitCode int
	}{
		{
			name:    "success trims output",
			command: "sh",
			args:    []string{"-c", "printf '  Docker version 24.0.7  \\n\\n'"},
			status:  CommandOK,
			output:  "Docker version 24.0.7",
		},
		{
			name:     "non-zero exit keeps stdout",
			command:  "sh",
			args:     []string{"-c", "echo inactive; exit 3"},
			status:   CommandFailed,
			output:   "inactive",
			exitCode: 3,
		},
		{
			name:     "missing executable",
			command:  "definitely-not-an-installed-tool",
			status:   CommandNotFound,
			exitCode: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runner.Run(context.Background(), tt.command, tt.args...)

			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.output, res.Output)
			assert.Equal(t, tt.exitCode, res.ExitCode)
			assert.Equal(t, tt.status == CommandOK, res.OK())
		})
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	runner := NewExecRunner(zap.NewNop(), 200*time.Millisecond)

	start := time.Now()
	// The child sleep must die with its parent shell
	res := runner.Run(context.Background(), "sh", "-c", "sleep 10 & sleep 10")

	assert.Equal(t, CommandTimedOut, res.Status)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandStatusString(t *testing.T) {
	assert.Equal(t, "ok", CommandOK.String())
	assert.Equal(t, "not_found", CommandNotFound.String())
	assert.Equal(t, "failed", CommandFailed.String())
	assert.Equal(t, "timed_out", CommandTimedOut.String())
}
