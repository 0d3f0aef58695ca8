//go:build unix

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// iptosLowDelay is IPTOS_LOWDELAY, not exported by x/sys on every platform
const iptosLowDelay = 0x10

// setLowDelayTOS marks the socket with the low-delay type of service.
// Best effort: some platforms accept the option and ignore it, others
// reject it.
func setLowDelayTOS(conn *net.TCPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, iptosLowDelay)
	})
}
