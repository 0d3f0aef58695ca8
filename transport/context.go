package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/mbap"
)

// --------------------------------------------------------------------------
// Context
// --------------------------------------------------------------------------

// Context is one live transport endpoint. It owns at most one socket at a
// time; a nil conn is the explicit "closed" sentinel. A Context is not
// safe for concurrent use - callers serialize access or use one context
// per connection (see Clone).
type Context struct {
	backend Backend
	conn    net.Conn
	unitID  int
	cfg     common.Config
	trace   TraceFunc
}

// NewContext creates a context for the given backend. A nil cfg selects
// DefaultConfig. The context starts unconnected with the restore-default
// unit id.
func NewContext(backend Backend, cfg *common.Config) (*Context, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", common.ErrInvalidArgument)
	}

	c := common.DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &Context{
		backend: backend,
		unitID:  mbap.UnitIDDefault,
		cfg:     c,
	}, nil
}

// Backend returns the capability table the context was created with.
func (c *Context) Backend() Backend { return c.backend }

// Config returns a copy of the context configuration.
func (c *Context) Config() common.Config { return c.cfg }

// Connected reports whether the context currently owns an open socket.
func (c *Context) Connected() bool { return c.conn != nil }

// --------------------------------------------------------------------------
// Configuration surface
// --------------------------------------------------------------------------

// SetUnitID sets the unit/slave address (0-247, or mbap.UnitIDDefault to
// restore the TCP default).
func (c *Context) SetUnitID(id int) error {
	if err := c.backend.ValidateUnitID(id); err != nil {
		return err
	}
	c.unitID = id
	return nil
}

// UnitID returns the configured unit/slave address.
func (c *Context) UnitID() int { return c.unitID }

// SetResponseTimeout bounds the wait for a confirmation and for connect
// completion.
func (c *Context) SetResponseTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: response timeout must be positive", common.ErrInvalidArgument)
	}
	c.cfg.ResponseTimeout = d
	return nil
}

// SetByteTimeout bounds the wait between two consecutive chunks of the
// same message. A negative value disables the inter-byte watchdog.
func (c *Context) SetByteTimeout(d time.Duration) {
	c.cfg.ByteTimeout = d
}

// SetRecovery selects the link error-recovery policy.
func (c *Context) SetRecovery(mode common.RecoveryMode) {
	c.cfg.Recovery = mode
}

// SetTrace registers a diagnostics callback mirroring every received chunk
// and every send. Pass nil to disable.
func (c *Context) SetTrace(fn TraceFunc) {
	c.trace = fn
}

// --------------------------------------------------------------------------
// Connection lifecycle
// --------------------------------------------------------------------------

// Connect establishes the connection via the backend. An already open
// socket is closed first so the context never holds a stale descriptor.
func (c *Context) Connect() error {
	if c.conn != nil {
		c.Close()
	}

	conn, err := c.backend.Connect(c.cfg)
	if err != nil {
		return err
	}

	c.conn = conn
	metricConnects.Inc()
	Logger.Infof("%s: connected to %s", c.backend.Name(), conn.RemoteAddr())
	return nil
}

// Close shuts the connection down and marks the context closed. Closing an
// unconnected context is a no-op.
func (c *Context) Close() {
	if c.conn == nil {
		return
	}
	if tc, ok := c.conn.(*net.TCPConn); ok {
		// Mirror a full shutdown so the peer observes EOF promptly
		_ = tc.CloseWrite()
	}
	_ = c.conn.Close()
	c.conn = nil
}

// Flush discards any bytes already buffered on the socket without waiting
// for more, and returns how many were thrown away. Used by link recovery
// to get rid of garbage left over from a failed exchange.
func (c *Context) Flush() (int, error) {
	if c.conn == nil {
		return 0, common.ErrBadDescriptor
	}

	buf := make([]byte, c.backend.MaxADULength())
	total := 0
	for {
		// A short positive deadline is required here: an already-expired
		// deadline makes the poller fail the read before it ever looks at
		// the receive buffer, so nothing would be drained
		if err := c.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return total, common.MapNetError(err)
		}
		n, err := c.conn.Read(buf)
		total += n
		if err != nil {
			// An elapsed deadline means the buffer ran dry
			_ = c.conn.SetReadDeadline(time.Time{})
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return total, nil
			}
			return total, common.MapNetError(err)
		}
	}
}

// Clone duplicates the transport-endpoint configuration into a fresh,
// unconnected context. The clone owns its own copy of the variant state
// (including the transaction counter) and must connect independently; it
// never shares the original's socket.
func (c *Context) Clone() *Context {
	return &Context{
		backend: c.backend.Clone(),
		unitID:  c.unitID,
		cfg:     c.cfg,
		trace:   c.trace,
	}
}

// --------------------------------------------------------------------------
// Passive open
// --------------------------------------------------------------------------

// Listen binds and listens on the backend's endpoint. The caller owns the
// returned listener.
func (c *Context) Listen() (net.Listener, error) {
	return c.backend.Listen(c.cfg)
}

// Accept waits for one inbound connection on l and assigns it into the
// context. On accept failure the listener is closed to signal that the
// context is no longer listening.
func (c *Context) Accept(l net.Listener) error {
	conn, err := l.Accept()
	if err != nil {
		_ = l.Close()
		return common.MapNetError(err)
	}

	if c.conn != nil {
		c.Close()
	}
	c.conn = conn
	Logger.Infof("%s: accepted connection from %s", c.backend.Name(), conn.RemoteAddr())
	return nil
}

// --------------------------------------------------------------------------
// Header building
// --------------------------------------------------------------------------

// BuildRequest stamps a request header with the context's unit id into buf
// and returns the offset where the PDU payload begins.
func (c *Context) BuildRequest(buf []byte, function byte, addr, quantity uint16) int {
	return c.backend.BuildRequestHeader(buf, byte(c.unitID), function, addr, quantity)
}

// BuildResponse stamps a response header answering the given inbound
// request descriptor into buf and returns the offset where the PDU payload
// begins.
func (c *Context) BuildResponse(buf []byte, sft mbap.SFT) int {
	return c.backend.BuildResponseHeader(buf, sft)
}

// --------------------------------------------------------------------------
// Send
// --------------------------------------------------------------------------

// Send patches the message length and transmits the full message. Returns
// the number of bytes written.
func (c *Context) Send(adu []byte) (int, error) {
	if c.conn == nil {
		return 0, common.ErrBadDescriptor
	}
	if len(adu) > c.backend.MaxADULength() {
		return 0, fmt.Errorf("%w: %d bytes exceed %d",
			common.ErrOversizedMessage, len(adu), c.backend.MaxADULength())
	}

	c.backend.PrepareSend(adu)

	n, err := c.conn.Write(adu)
	if err != nil {
		return n, common.MapNetError(err)
	}

	metricTxBytes.Add(n)
	if c.trace != nil {
		c.trace(adu[:n], TX)
	}
	if c.cfg.Debug {
		Logger.Debugf("%s: sent % X", c.backend.Name(), adu[:n])
	}
	return n, nil
}
