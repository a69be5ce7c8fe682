//go:build !windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the command in its own process group so a timeout
// can take down its children and a detached command survives our exit.
func setProcessGroup(cmd *exec.Cmd, detached bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// killProcessGroup kills the entire process group of the command.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}
