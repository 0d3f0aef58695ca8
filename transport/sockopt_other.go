//go:build !unix

package transport

import "net"

// setLowDelayTOS is a no-op where the low-delay type of service cannot be
// set portably.
func setLowDelayTOS(conn *net.TCPConn) {}
