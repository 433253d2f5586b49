//go:build !windows

package panectl

import "os/exec"

func hideWindow(*exec.Cmd) {}
