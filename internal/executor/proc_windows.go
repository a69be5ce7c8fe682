//go:build windows

package executor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// setProcessGroup hides the console window of the child. Detached children
// get their own process group so a Ctrl-C in our console does not reach them.
func setProcessGroup(cmd *exec.Cmd, detached bool) {
	flags := uint32(windows.CREATE_NO_WINDOW)
	if detached {
		flags |= windows.CREATE_NEW_PROCESS_GROUP
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: flags,
	}
}

// killProcessGroup kills the process directly on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
