//go:build unix || linux || darwin

package utils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// SetNewPG puts the child in its own process group so it survives the
// parent's exit. Unix implementation.
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// IsProcessRunning checks whether a process exists by sending signal 0.
func IsProcessRunning(pid int) (bool, error) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("failed to find process with PID %d: %v", pid, err)
	}

	if err := process.Signal(syscall.Signal(0)); err != nil {
		if err == syscall.EPERM {
			// Exists but owned by someone else.
			return true, nil
		}
		return false, nil
	}
	return true, nil
}

// GetProcessName returns the executable name for a pid. Reads
// /proc/<pid>/cmdline on Linux and falls back to ps elsewhere.
func GetProcessName(pid int) (string, error) {
	if runtime.GOOS == "linux" {
		cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
		if err == nil && len(cmdline) > 0 {
			args := strings.Split(string(cmdline), "\x00")
			if len(args) > 0 && args[0] != "" {
				return filepath.Base(args[0]), nil
			}
		}
	}

	out, err := exec.Command("ps", "-p", fmt.Sprintf("%d", pid), "-o", "comm=").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get name for PID %d: %v", pid, err)
	}
	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", fmt.Errorf("no process found for PID %d", pid)
	}
	return filepath.Base(name), nil
}

/**
 * Kill a process gracefully: SIGTERM first, SIGKILL if it lingers
 * @param {int} pid - Process id to kill
 * @param {string} procName - Process name, for logging only
 * @description
 * - Waits up to one second for SIGTERM to take effect
 * - Escalates to SIGKILL afterwards
 */
func KillProcessGracefully(pid int, procName string) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %s (PID: %d): %v", procName, pid, err)
	}

	err = process.Signal(syscall.SIGTERM)
	if err == nil {
		for i := 0; i < 10; i++ {
			if err := process.Signal(syscall.Signal(0)); err != nil {
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
	}

	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process %s (PID: %d): %v", procName, pid, err)
	}
	return nil
}
