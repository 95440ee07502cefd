//go:build !unix

package procrun

import (
	"os"
	"os/exec"
)

func startProcessGroup(*exec.Cmd) {}

func killProcessGroup(p *os.Process) error {
	return p.Kill()
}
