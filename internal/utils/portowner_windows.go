//go:build windows

package utils

import (
	"fmt"
	"os/exec"
)

// PortOwner looks up which process owns a listening TCP port via
// netstat -ano, resolving the name from the pid afterwards.
func PortOwner(port int) (*PortOwnerInfo, error) {
	out, err := exec.Command("netstat", "-ano", "-p", "TCP").Output()
	if err != nil {
		if CheckPortConnectable(port) {
			return nil, fmt.Errorf("port owner lookup failed for port %d: %v", port, err)
		}
		return nil, nil
	}
	pid := ParseNetstatOutput(string(out), port)
	if pid == 0 {
		return nil, nil
	}
	name, err := GetProcessName(pid)
	if err != nil {
		name = ""
	}
	return &PortOwnerInfo{Pid: pid, Name: name}, nil
}
