package probe

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner answers commands from a table keyed by "name args..."
// Unknown commands are reported as not found.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]CommandResult
	panics  map[string]bool
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]CommandResult),
		panics:  make(map[string]bool),
	}
}

func (f *fakeRunner) set(command string, res CommandResult) *fakeRunner {
	f.results[command] = res
	return f
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) CommandResult {
	command := strings.TrimSpace(name + " " + strings.Join(args, " "))

	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()

	if f.panics[command] {
		panic("unexpected fault in " + command)
	}
	if res, ok := f.results[command]; ok {
		return res
	}
	return CommandResult{Status: CommandNotFound, ExitCode: -1}
}

func ok(output string) CommandResult {
	return CommandResult{Status: CommandOK, Output: output}
}

// fakeServices answers service states from a map; unknown names are inactive
type fakeServices map[string]ServiceState

func (f fakeServices) State(ctx context.Context, name string) ServiceState {
	if s, found := f[name]; found {
		return s
	}
	return ServiceInactive
}
