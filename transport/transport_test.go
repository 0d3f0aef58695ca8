package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/mbap"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// testBackend is an MBAP backend over a plain loopback socket. It skips
// the socket tuning of the real variants so tests only exercise the
// framing machine and the connection lifecycle.
type testBackend struct {
	MBAPCore
	addr string
}

func (b *testBackend) Name() string { return "test" }

func (b *testBackend) Connect(cfg common.Config) (net.Conn, error) {
	d := net.Dialer{Timeout: cfg.ResponseTimeout}
	conn, err := d.Dial("tcp", b.addr)
	if err != nil {
		return nil, common.MapNetError(err)
	}
	return conn, nil
}

func (b *testBackend) Listen(cfg common.Config) (net.Listener, error) {
	l, err := net.Listen("tcp", b.addr)
	if err != nil {
		return nil, common.MapNetError(err)
	}
	return l, nil
}

func (b *testBackend) Clone() Backend {
	dup := *b
	return &dup
}

// connPair returns both ends of an established loopback TCP connection.
func connPair(t *testing.T) (client, server net.Conn) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer l.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		conn, err := l.Accept()
		accepted <- result{conn, err}
	}()

	client, err = net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	r := <-accepted
	if r.err != nil {
		client.Close()
		t.Fatalf("accept failed: %v", r.err)
	}

	t.Cleanup(func() {
		client.Close()
		r.conn.Close()
	})
	return client, r.conn
}

// newTestContext wraps an already established socket in a context.
func newTestContext(t *testing.T, conn net.Conn, cfg *common.Config) *Context {
	t.Helper()

	ctx, err := NewContext(&testBackend{}, cfg)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	ctx.conn = conn
	return ctx
}

// buildMsg assembles a complete message with a patched length field.
func buildMsg(tid uint16, unitID, function byte, payload ...byte) []byte {
	m := make([]byte, 0, mbap.HeaderLength+1+len(payload))
	m = append(m, byte(tid>>8), byte(tid), 0, 0, 0, 0, unitID, function)
	m = append(m, payload...)
	mbap.PatchLength(m)
	return m
}

// --------------------------------------------------------------------------
// Context lifecycle
// --------------------------------------------------------------------------

func TestNewContextValidation(t *testing.T) {
	if _, err := NewContext(nil, nil); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("nil backend: err = %v, want ErrInvalidArgument", err)
	}

	bad := common.DefaultConfig()
	bad.ResponseTimeout = 0
	if _, err := NewContext(&testBackend{}, &bad); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("zero response timeout: err = %v, want ErrInvalidArgument", err)
	}

	bad = common.DefaultConfig()
	bad.Backlog = 0
	if _, err := NewContext(&testBackend{}, &bad); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("zero backlog: err = %v, want ErrInvalidArgument", err)
	}
}

func TestSetUnitID(t *testing.T) {
	ctx, err := NewContext(&testBackend{}, nil)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}

	if got := ctx.UnitID(); got != mbap.UnitIDDefault {
		t.Fatalf("initial unit id = %d, want %d", got, mbap.UnitIDDefault)
	}

	for _, id := range []int{0, 1, mbap.UnitIDMax, mbap.UnitIDDefault} {
		if err := ctx.SetUnitID(id); err != nil {
			t.Errorf("SetUnitID(%d) failed: %v", id, err)
		}
	}
	for _, id := range []int{-1, mbap.UnitIDMax + 1, 254, 256} {
		if err := ctx.SetUnitID(id); !errors.Is(err, common.ErrInvalidArgument) {
			t.Errorf("SetUnitID(%d): err = %v, want ErrInvalidArgument", id, err)
		}
	}
}

// TestBuildRequestSequencing verifies that every built request advances the
// per-context transaction counter by exactly one.
func TestBuildRequestSequencing(t *testing.T) {
	ctx, err := NewContext(&testBackend{}, nil)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	if err := ctx.SetUnitID(0x11); err != nil {
		t.Fatalf("SetUnitID failed: %v", err)
	}

	req := make([]byte, mbap.MaxADULength)
	for want := uint16(1); want <= 3; want++ {
		n := ctx.BuildRequest(req, mbap.FcReadHoldingRegisters, 0x0000, 0x0001)
		if n != mbap.PresetReqLength {
			t.Fatalf("BuildRequest returned %d, want %d", n, mbap.PresetReqLength)
		}
		if got := mbap.TransactionID(req); got != want {
			t.Errorf("transaction id = %d, want %d", got, want)
		}
		if got := mbap.UnitID(req); got != 0x11 {
			t.Errorf("unit id = %#x, want 0x11", got)
		}
	}
}

func TestSendNotConnected(t *testing.T) {
	ctx, err := NewContext(&testBackend{}, nil)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}

	if _, err := ctx.Send(buildMsg(1, 0xFF, mbap.FcReadCoils)); !errors.Is(err, common.ErrBadDescriptor) {
		t.Errorf("Send on closed context: err = %v, want ErrBadDescriptor", err)
	}
}

func TestSendPatchesLength(t *testing.T) {
	client, server := connPair(t)
	ctx := newTestContext(t, client, nil)

	adu := buildMsg(7, 0x0A, mbap.FcReadHoldingRegisters, 0x00, 0x6B, 0x00, 0x03)
	// Corrupt the length field to prove Send recomputes it
	adu[4], adu[5] = 0xEE, 0xEE

	n, err := ctx.Send(adu)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if n != len(adu) {
		t.Fatalf("Send wrote %d bytes, want %d", n, len(adu))
	}

	got := make([]byte, len(adu))
	if _, err := server.Read(got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if want := uint16(len(adu) - 6); mbap.Length(got) != want {
		t.Errorf("on-wire length field = %d, want %d", mbap.Length(got), want)
	}
}

func TestConnectReplacesSocket(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	ctx, err := NewContext(&testBackend{addr: l.Addr().String()}, nil)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}

	if ctx.Connected() {
		t.Fatal("fresh context reports connected")
	}
	if err := ctx.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !ctx.Connected() {
		t.Fatal("context not connected after Connect")
	}

	first := ctx.conn
	if err := ctx.Connect(); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if ctx.conn == first {
		t.Error("second Connect kept the stale socket")
	}

	ctx.Close()
	if ctx.Connected() {
		t.Error("context still connected after Close")
	}
	// Closing twice must be harmless
	ctx.Close()
}

func TestConnectRefused(t *testing.T) {
	// Bind a port and close it again so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, err := NewContext(&testBackend{addr: addr}, nil)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	if err := ctx.Connect(); !errors.Is(err, common.ErrConnectionRefused) {
		t.Errorf("Connect to dead port: err = %v, want ErrConnectionRefused", err)
	}
}

// --------------------------------------------------------------------------
// Flush
// --------------------------------------------------------------------------

func TestFlush(t *testing.T) {
	client, server := connPair(t)
	ctx := newTestContext(t, client, nil)

	// Two separate bursts so the garbage does not sit in a single segment
	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	if _, err := server.Write(garbage[:3]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := server.Write(garbage[3:]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// Give the bytes time to cross the loopback
	time.Sleep(20 * time.Millisecond)

	n, err := ctx.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n != len(garbage) {
		t.Errorf("Flush discarded %d bytes, want %d", n, len(garbage))
	}

	// An empty socket flushes to zero without blocking
	n, err = ctx.Flush()
	if err != nil || n != 0 {
		t.Errorf("Flush on empty socket = (%d, %v), want (0, nil)", n, err)
	}

	// The connection must still carry a regular exchange afterwards
	want := buildMsg(3, 0xFF, mbap.FcReadCoils, 0x00, 0x00, 0x00, 0x01)
	go server.Write(want)

	buf := make([]byte, mbap.MaxADULength)
	got, err := ctx.ReceiveIndication(buf)
	if err != nil {
		t.Fatalf("receive after flush failed: %v", err)
	}
	if got != len(want) {
		t.Errorf("received %d bytes after flush, want %d", got, len(want))
	}
}

func TestFlushNotConnected(t *testing.T) {
	ctx, err := NewContext(&testBackend{}, nil)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	if _, err := ctx.Flush(); !errors.Is(err, common.ErrBadDescriptor) {
		t.Errorf("Flush on closed context: err = %v, want ErrBadDescriptor", err)
	}
}

// --------------------------------------------------------------------------
// Clone
// --------------------------------------------------------------------------

func TestClone(t *testing.T) {
	client, _ := connPair(t)

	cfg := common.DefaultConfig()
	cfg.ResponseTimeout = 123 * time.Millisecond
	cfg.Recovery = common.RecoveryLink

	ctx := newTestContext(t, client, &cfg)
	if err := ctx.SetUnitID(42); err != nil {
		t.Fatalf("SetUnitID failed: %v", err)
	}

	// Advance the original's transaction counter before cloning
	req := make([]byte, mbap.MaxADULength)
	ctx.BuildRequest(req, mbap.FcReadHoldingRegisters, 0, 1)
	ctx.BuildRequest(req, mbap.FcReadHoldingRegisters, 0, 1)

	clone := ctx.Clone()

	if clone.Connected() {
		t.Error("clone starts connected, want unconnected")
	}
	if got := clone.Config(); got != ctx.Config() {
		t.Errorf("clone config = %+v, want %+v", got, ctx.Config())
	}
	if clone.UnitID() != 42 {
		t.Errorf("clone unit id = %d, want 42", clone.UnitID())
	}

	// The clone carries a copy of the counter and advances independently
	clone.BuildRequest(req, mbap.FcReadHoldingRegisters, 0, 1)
	if got := mbap.TransactionID(req); got != 3 {
		t.Errorf("clone transaction id = %d, want 3", got)
	}
	ctx.BuildRequest(req, mbap.FcReadHoldingRegisters, 0, 1)
	if got := mbap.TransactionID(req); got != 3 {
		t.Errorf("original transaction id = %d, want 3", got)
	}

	// Closing the original must not touch the clone and vice versa
	ctx.Close()
	if clone.Connected() {
		t.Error("closing the original closed the clone")
	}
}
