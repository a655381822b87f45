package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// PortOwnerInfo identifies the process holding a listening TCP port.
type PortOwnerInfo struct {
	Pid  int
	Name string
}

/**
 * Parse lsof machine-readable (-F pc) output
 * @param {string} output - Raw lsof output, one field per line ("p1234", "cccs-proxy")
 * @returns {*PortOwnerInfo} Owner of the first listed descriptor, nil if none
 * @description
 * - lsof -F emits a 'p' line per process followed by field lines
 * - Only pid and command name are consumed here
 */
func ParseLsofOutput(output string) *PortOwnerInfo {
	var info PortOwnerInfo
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 {
			continue
		}
		switch line[0] {
		case 'p':
			if pid, err := strconv.Atoi(line[1:]); err == nil && info.Pid == 0 {
				info.Pid = pid
			}
		case 'c':
			if info.Name == "" {
				info.Name = line[1:]
			}
		}
		if info.Pid != 0 && info.Name != "" {
			break
		}
	}
	if info.Pid == 0 {
		return nil
	}
	return &info
}

/**
 * Parse netstat -ano output for the pid listening on a port
 * @param {string} output - Raw netstat output
 * @param {int} port - Port to look for in the local address column
 * @returns {int} Listening pid, 0 when not found
 */
func ParseNetstatOutput(output string, port int) int {
	suffix := fmt.Sprintf(":%d", port)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		if !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		if pid, err := strconv.Atoi(fields[4]); err == nil {
			return pid
		}
	}
	return 0
}
