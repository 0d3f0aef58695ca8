package tcppi

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/mbap"
	"github.com/ValentinKolb/gombus/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/tcppi")

const (
	// maxNodeLength bounds the stored node name (longest valid hostname)
	maxNodeLength = 1024
	// maxServiceLength bounds the stored service name
	maxServiceLength = 32
)

// backend implements transport.Backend with family-agnostic name/service
// resolution. An empty node means "any" (wildcard in listen mode, loopback
// in connect mode); an empty service selects the standard Modbus port.
type backend struct {
	transport.MBAPCore
	node    string
	service string
}

// NewContext creates a transport context for a node name (hostname, IP
// literal of any family, or empty for any) and a service name (symbolic or
// numeric port, or empty for the default Modbus port). A nil cfg selects
// the defaults.
func NewContext(node, service string, cfg *common.Config) (*transport.Context, error) {
	b, err := newBackend(node, service)
	if err != nil {
		return nil, err
	}
	return transport.NewContext(b, cfg)
}

func newBackend(node, service string) (*backend, error) {
	if len(node) > maxNodeLength {
		return nil, fmt.Errorf("%w: the node string is too long (%d > %d)",
			common.ErrInvalidArgument, len(node), maxNodeLength)
	}
	if len(service) > maxServiceLength {
		return nil, fmt.Errorf("%w: the service string is too long (%d > %d)",
			common.ErrInvalidArgument, len(service), maxServiceLength)
	}
	return &backend{node: node, service: service}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Backend)
// --------------------------------------------------------------------------

func (b *backend) Name() string {
	return "tcp-pi"
}

func (b *backend) Connect(cfg common.Config) (net.Conn, error) {
	port, err := b.lookupPort(cfg)
	if err != nil {
		return nil, err
	}

	node := b.node
	if node == "" {
		node = "localhost"
	}

	addrs, err := b.resolve(cfg, node)
	if err != nil {
		return nil, err
	}

	// Try every candidate in resolver order and keep the first socket that
	// connects; failures of one candidate only disqualify that candidate.
	d := net.Dialer{Timeout: cfg.ResponseTimeout}
	var lastErr error
	for _, addr := range addrs {
		endpoint := net.JoinHostPort(addr.IP.String(), strconv.Itoa(port))
		Logger.Debugf("connecting to [%s]:%s", b.node, b.service)

		conn, err := d.Dial("tcp", endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		if err := transport.TuneConn(conn, cfg.Socket); err != nil {
			_ = conn.Close()
			lastErr = err
			continue
		}
		return conn, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no usable address for %q", common.ErrConnectionRefused, node)
	}
	return nil, common.MapNetError(lastErr)
}

func (b *backend) Listen(cfg common.Config) (net.Listener, error) {
	port, err := b.lookupPort(cfg)
	if err != nil {
		return nil, err
	}

	// Wildcard node: bind any address of any family
	if b.node == "" {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return nil, common.MapNetError(err)
		}
		Logger.Infof("listening on %s", l.Addr())
		return l, nil
	}

	addrs, err := b.resolve(cfg, b.node)
	if err != nil {
		return nil, err
	}

	// Same fallback logic as the active open: first successful
	// bind-and-listen wins, the remaining candidates are abandoned
	var lastErr error
	for _, addr := range addrs {
		l, err := net.Listen("tcp", net.JoinHostPort(addr.IP.String(), strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}
		Logger.Infof("listening on %s", l.Addr())
		return l, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no usable address for %q", common.ErrConnectionRefused, b.node)
	}
	return nil, common.MapNetError(lastErr)
}

func (b *backend) Clone() transport.Backend {
	dup := *b
	return &dup
}

// --------------------------------------------------------------------------
// Resolution helpers
// --------------------------------------------------------------------------

// lookupPort resolves the service name to a port number, defaulting to the
// standard Modbus port for an empty service.
func (b *backend) lookupPort(cfg common.Config) (int, error) {
	service := b.service
	if service == "" {
		service = strconv.Itoa(mbap.DefaultPort)
	}

	port, err := net.LookupPort("tcp", service)
	if err != nil {
		// An unresolvable address is indistinguishable from a refused
		// connection for the caller
		return 0, fmt.Errorf("%w: service %q: %v", common.ErrConnectionRefused, service, err)
	}
	return port, nil
}

// resolve performs family-agnostic name resolution bounded by the response
// timeout, yielding an ordered sequence of candidate addresses.
func (b *backend) resolve(cfg common.Config, node string) ([]net.IPAddr, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ResponseTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, node)
	if err != nil {
		Logger.Errorf("resolving %q failed: %v", node, err)
		return nil, fmt.Errorf("%w: node %q: %v", common.ErrConnectionRefused, node, err)
	}
	return addrs, nil
}
