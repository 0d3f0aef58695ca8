package server

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("server")

// Handler processes one received indication and returns the raw response
// message to send back, or nil for no reply. The request slice is only
// valid for the duration of the call. PDU semantics stay entirely with the
// handler; the server moves opaque messages.
type Handler func(ctx *transport.Context, req []byte) (rsp []byte)

// Server drives the passive-open path of a transport context: it listens
// on the parent context's endpoint, and serves every accepted connection
// with an independent cloned context so the single-threaded framing core
// is never shared between connections.
type Server struct {
	parent  *transport.Context
	handler Handler

	listener net.Listener
	conns    *xsync.MapOf[uint64, *transport.Context]
	nextID   uint64
	closing  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a server around an unconnected parent context.
func New(parent *transport.Context, handler Handler) *Server {
	return &Server{
		parent:  parent,
		handler: handler,
		conns:   xsync.NewMapOf[uint64, *transport.Context](),
	}
}

// Listen binds the parent context's endpoint. Calling it before Serve is
// optional; it exists so callers can learn the bound address (e.g. for an
// ephemeral port) before the accept loop starts.
func (s *Server) Listen() error {
	l, err := s.parent.Listen()
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts until Close is called or the listener fails. The
// configured backlog bounds how many connections are served
// simultaneously.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	l := s.listener

	backlog := s.parent.Config().Backlog
	Logger.Infof("serving %s on %s with backlog %d", s.parent.Backend().Name(), l.Addr(), backlog)

	// Counting semaphore bounding simultaneously served connections
	slots := make(chan struct{}, backlog)

	for {
		slots <- struct{}{}

		// Each connection gets its own cloned context; Accept assigns the
		// accepted socket into it
		child := s.parent.Clone()
		if err := child.Accept(l); err != nil {
			<-slots
			if s.closing.Load() || errors.Is(err, common.ErrBadDescriptor) {
				break
			}
			Logger.Errorf("accept failed: %v", err)
			return err
		}

		id := atomic.AddUint64(&s.nextID, 1)
		s.conns.Store(id, child)

		s.wg.Add(1)
		go func() {
			defer func() {
				child.Close()
				s.conns.Delete(id)
				<-slots
				s.wg.Done()
			}()
			s.serveConn(child)
		}()
	}

	s.wg.Wait()
	return nil
}

// serveConn answers indications on one connection until the peer goes
// away.
func (s *Server) serveConn(ctx *transport.Context) {
	buf := make([]byte, ctx.Backend().MaxADULength())

	for {
		n, err := ctx.ReceiveIndication(buf)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrConnectionReset),
				errors.Is(err, common.ErrBadDescriptor):
				Logger.Infof("connection closed by peer")
			default:
				Logger.Errorf("receive failed: %v", err)
			}
			return
		}

		rsp := s.handler(ctx, buf[:n])
		if len(rsp) == 0 {
			continue
		}
		if _, err := ctx.Send(rsp); err != nil {
			Logger.Errorf("send failed: %v", err)
			return
		}
	}
}

// Close stops accepting and tears down every live connection.
func (s *Server) Close() {
	s.closing.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.conns.Range(func(_ uint64, ctx *transport.Context) bool {
		ctx.Close()
		return true
	})
}
