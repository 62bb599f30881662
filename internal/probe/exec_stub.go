//go:build !unix

package probe

import "os/exec"

// configureProcess keeps the exec.CommandContext default of killing the
// process itself on timeout
func configureProcess(cmd *exec.Cmd) {}
