//go:build unix || linux || darwin

package utils

import (
	"fmt"
	"os/exec"
)

/**
 * Look up which process owns a listening TCP port
 * @param {int} port - Port to inspect
 * @returns {*PortOwnerInfo} Owner pid and name, nil when the port is free
 * @description
 * - Shells out to lsof; an lsof failure with an occupied port means the
 *   lookup itself failed (typically OS permissions), surfaced as error
 */
func PortOwner(port int) (*PortOwnerInfo, error) {
	out, err := exec.Command("lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-Fpc").Output()
	if err != nil {
		// lsof exits non-zero when nothing matches; only treat it as a
		// lookup failure when the port is demonstrably occupied.
		if CheckPortConnectable(port) {
			return nil, fmt.Errorf("port owner lookup failed for port %d: %v", port, err)
		}
		return nil, nil
	}
	return ParseLsofOutput(string(out)), nil
}
