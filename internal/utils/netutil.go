package utils

import (
	"fmt"
	"net"
	"time"
)

// CheckPortConnectable reports whether something accepts TCP connections
// on the given localhost port.
func CheckPortConnectable(port int) bool {
	timeout := time.Second
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return false
	}
	if conn != nil {
		conn.Close()
		return true
	}
	return false
}
