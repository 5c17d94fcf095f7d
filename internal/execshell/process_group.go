package execshell

import (
	"errors"
	"os/exec"
	"syscall"
)

// startInOwnProcessGroup makes the shell lead a new process group so cancellation reaches every pipeline stage.
func startInOwnProcessGroup(executable *exec.Cmd) {
	if executable.SysProcAttr == nil {
		executable.SysProcAttr = &syscall.SysProcAttr{}
	}
	executable.SysProcAttr.Setpgid = true
	executable.Cancel = func() error {
		return killProcessGroup(executable)
	}
}

// killProcessGroup sends SIGKILL to the process group led by the started shell.
// The shell must lead its group, either through Setpgid or through Setsid as pty.Start arranges.
func killProcessGroup(executable *exec.Cmd) error {
	if executable.Process == nil {
		return nil
	}
	groupError := syscall.Kill(-executable.Process.Pid, syscall.SIGKILL)
	if groupError == nil || errors.Is(groupError, syscall.ESRCH) {
		return nil
	}
	return executable.Process.Kill()
}
