//go:build unix

package procrun

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// startProcessGroup puts the child in its own process group so that a kill
// also reaches anything it forked.
func startProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func killProcessGroup(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return p.Kill()
}
