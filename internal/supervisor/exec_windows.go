//go:build windows

package supervisor

import (
	"os/exec"
	"strconv"
)

func startCommand(command, dir string) *exec.Cmd {
	cmd := exec.Command("cmd", "/C", command)
	cmd.Dir = dir
	return cmd
}

// terminate asks the process tree to exit. taskkill /T walks child
// processes, which covers npm shims spawning the real engine.
func terminate(pid int) error {
	return exec.Command("taskkill", "/T", "/PID", strconv.Itoa(pid)).Run()
}

func kill(pid int) error {
	return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}
