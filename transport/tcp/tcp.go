package tcp

import (
	"fmt"
	"net"
	"strconv"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/tcp")

// maxIPLength bounds the stored dotted-quad string ("255.255.255.255")
const maxIPLength = 15

// backend implements transport.Backend for a single numeric IPv4 endpoint.
type backend struct {
	transport.MBAPCore
	ip   string
	port int
}

// NewContext creates a transport context for a numeric IPv4 address and
// port. A nil cfg selects the defaults.
func NewContext(ip string, port int, cfg *common.Config) (*transport.Context, error) {
	b, err := newBackend(ip, port)
	if err != nil {
		return nil, err
	}
	return transport.NewContext(b, cfg)
}

func newBackend(ip string, port int) (*backend, error) {
	if ip == "" {
		return nil, fmt.Errorf("%w: the IP string is empty", common.ErrInvalidArgument)
	}
	if len(ip) > maxIPLength {
		return nil, fmt.Errorf("%w: the IP string %q is too long", common.ErrInvalidArgument, ip)
	}
	if parsed := net.ParseIP(ip); parsed == nil || parsed.To4() == nil {
		return nil, fmt.Errorf("%w: %q is not a numeric IPv4 address", common.ErrInvalidArgument, ip)
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", common.ErrInvalidArgument, port)
	}

	return &backend{ip: ip, port: port}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Backend)
// --------------------------------------------------------------------------

func (b *backend) Name() string {
	return "tcp"
}

func (b *backend) Connect(cfg common.Config) (net.Conn, error) {
	addr := net.JoinHostPort(b.ip, strconv.Itoa(b.port))
	Logger.Debugf("connecting to %s", addr)

	// The dialer performs the non-blocking connect plus bounded
	// writability wait internally
	d := net.Dialer{Timeout: cfg.ResponseTimeout}
	conn, err := d.Dial("tcp4", addr)
	if err != nil {
		return nil, common.MapNetError(err)
	}

	if err := transport.TuneConn(conn, cfg.Socket); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (b *backend) Listen(cfg common.Config) (net.Listener, error) {
	// Wildcard bind: requests may arrive on any local interface
	l, err := net.Listen("tcp4", fmt.Sprintf(":%d", b.port))
	if err != nil {
		return nil, common.MapNetError(err)
	}
	Logger.Infof("listening on %s", l.Addr())
	return l, nil
}

func (b *backend) Clone() transport.Backend {
	dup := *b
	return &dup
}
