//go:build windows

package proc

import (
	"errors"
	"os/exec"
	"syscall"
)

const (
	detachedProcess       = 0x00000008
	createNewProcessGroup = 0x00000200

	// ERROR_ELEVATION_REQUIRED
	errElevationRequired syscall.Errno = 740
)

func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: detachedProcess | createNewProcessGroup,
		HideWindow:    true,
	}
}

func elevationRequired(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == errElevationRequired
}
