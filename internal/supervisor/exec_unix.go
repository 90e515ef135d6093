//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// startCommand builds the exec.Cmd for one workload invocation. The child
// gets its own process group so termination reaches npm/npx wrappers and
// the real engine process beneath them.
func startCommand(command, dir string) *exec.Cmd {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

// terminate sends SIGTERM to the whole process group.
func terminate(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// kill sends SIGKILL to the whole process group.
func kill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
