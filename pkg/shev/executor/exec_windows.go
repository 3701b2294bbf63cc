//go:build windows

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup hides the console window; CommandContext's default
// kill is sufficient on Windows.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: 0x08000000} // CREATE_NO_WINDOW
}
