package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Path2ProcessName reduces a command path to the bare executable name.
func Path2ProcessName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, ".exe")
}

/**
 * Find a process by pid and verify its name matches
 * @param {string} processName - Expected executable name
 * @param {int} pid - Process id to look up
 * @returns {*os.Process} The process handle when name and pid agree
 * @description
 * - processName+pid together identify a process; a recycled pid with a
 *   different name is rejected, which prevents killing a stranger
 */
func FindProcess(processName string, pid int) (*os.Process, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}

	name, err := GetProcessName(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to get process name for PID %d: %v", pid, err)
	}

	if strings.EqualFold(Path2ProcessName(name), Path2ProcessName(processName)) {
		return proc, nil
	}
	return nil, fmt.Errorf("process name mismatch: expected '%s', got '%s'", processName, name)
}

// KillProcess kills a process identified by name and pid.
func KillProcess(processName string, pid int) error {
	proc, err := FindProcess(processName, pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
