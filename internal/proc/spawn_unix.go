//go:build !windows

package proc

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it outlives the parent and
// does not receive the parent's terminal signals.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func elevationRequired(error) bool {
	return false
}
