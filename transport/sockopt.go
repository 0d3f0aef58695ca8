package transport

import (
	"net"

	"github.com/ValentinKolb/gombus/common"
)

// TuneConn configures a freshly established connection for low-latency,
// non-blocking operation. Disabling Nagle's algorithm is mandatory - a
// failure there fails the connection attempt; everything else (keep-alive,
// buffer sizes, low-delay type of service) is best effort and non-fatal
// where the platform does not support it.
func TuneConn(conn net.Conn, sc common.SocketConf) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tc.SetNoDelay(sc.NoDelay); err != nil {
		return common.MapNetError(err)
	}

	if sc.WriteBufferSize > 0 {
		_ = tc.SetWriteBuffer(sc.WriteBufferSize)
	}
	if sc.ReadBufferSize > 0 {
		_ = tc.SetReadBuffer(sc.ReadBufferSize)
	}

	if sc.KeepAlivePeriod > 0 {
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(sc.KeepAlivePeriod)
	}

	setLowDelayTOS(tc)
	return nil
}
