//go:build windows

package panectl

import (
	"os/exec"
	"syscall"
)

// hideWindow keeps multiplexer invocations from flashing a console window.
func hideWindow(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}
