package tcp

import (
	"encoding/binary"
	"errors"
	"net"
	"testing"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/mbap"
	"github.com/ValentinKolb/gombus/transport"
)

func TestNewBackendValidation(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		port    int
		wantErr bool
	}{
		{name: "valid loopback", ip: "127.0.0.1", port: 502},
		{name: "valid high port", ip: "192.168.0.5", port: 65535},
		{name: "valid port zero", ip: "127.0.0.1", port: 0},
		{name: "empty ip", ip: "", port: 502, wantErr: true},
		{name: "overlong ip", ip: "255.255.255.255.0", port: 502, wantErr: true},
		{name: "hostname", ip: "localhost", port: 502, wantErr: true},
		{name: "ipv6 literal", ip: "::1", port: 502, wantErr: true},
		{name: "negative port", ip: "127.0.0.1", port: -1, wantErr: true},
		{name: "port too large", ip: "127.0.0.1", port: 65536, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newBackend(tt.ip, tt.port)
			if tt.wantErr {
				if !errors.Is(err, common.ErrInvalidArgument) {
					t.Errorf("newBackend(%q, %d): err = %v, want ErrInvalidArgument", tt.ip, tt.port, err)
				}
				return
			}
			if err != nil {
				t.Errorf("newBackend(%q, %d) failed: %v", tt.ip, tt.port, err)
			}
		})
	}
}

// serveOnce accepts one connection on the server context and answers every
// indication by echoing its descriptor with a fixed register payload. A
// transaction id passed in force overrides the copied one so tests can
// provoke a mismatch.
func serveOnce(t *testing.T, srv *transport.Context, l net.Listener, force int) {
	t.Helper()
	go func() {
		if err := srv.Accept(l); err != nil {
			return
		}
		defer srv.Close()

		buf := make([]byte, srv.Backend().MaxADULength())
		rsp := make([]byte, srv.Backend().MaxADULength())
		for {
			n, err := srv.ReceiveIndication(buf)
			if err != nil {
				return
			}

			off := srv.BuildResponse(rsp, mbap.SFTFromADU(buf[:n]))
			rsp[off] = 0x02
			binary.BigEndian.PutUint16(rsp[off+1:off+3], 0xBEEF)
			out := rsp[:off+3]
			if force >= 0 {
				binary.BigEndian.PutUint16(out[0:2], uint16(force))
			}
			if _, err := srv.Send(out); err != nil {
				return
			}
		}
	}()
}

// listenPair starts a listening server context on an ephemeral port and
// returns it together with a client context pointed at it.
func listenPair(t *testing.T) (client, server *transport.Context, l net.Listener) {
	t.Helper()

	server, err := NewContext("127.0.0.1", 0, nil)
	if err != nil {
		t.Fatalf("NewContext (server) failed: %v", err)
	}
	l, err = server.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	port := l.Addr().(*net.TCPAddr).Port
	client, err = NewContext("127.0.0.1", port, nil)
	if err != nil {
		t.Fatalf("NewContext (client) failed: %v", err)
	}
	return client, server, l
}

// TestExchange runs a full read-holding-registers round trip over a real
// loopback socket: connect, request with transaction id 1, matching
// confirmation accepted.
func TestExchange(t *testing.T) {
	client, server, l := listenPair(t)
	serveOnce(t, server, l, -1)

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	req := make([]byte, client.Backend().MaxADULength())
	n := client.BuildRequest(req, mbap.FcReadHoldingRegisters, 0x0000, 0x0001)
	if _, err := client.Send(req[:n]); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := mbap.TransactionID(req); got != 1 {
		t.Fatalf("first request carries transaction id %d, want 1", got)
	}

	rsp := make([]byte, client.Backend().MaxADULength())
	got, err := client.ReceiveConfirmation(req[:n], rsp)
	if err != nil {
		t.Fatalf("ReceiveConfirmation failed: %v", err)
	}

	if mbap.TransactionID(rsp[:got]) != 1 {
		t.Errorf("response transaction id = %d, want 1", mbap.TransactionID(rsp[:got]))
	}
	if fn := mbap.FunctionCode(rsp[:got]); fn != mbap.FcReadHoldingRegisters {
		t.Errorf("response function = %#x, want %#x", fn, mbap.FcReadHoldingRegisters)
	}
	if value := binary.BigEndian.Uint16(rsp[got-2 : got]); value != 0xBEEF {
		t.Errorf("register value = %#x, want 0xBEEF", value)
	}
}

// TestExchangeMismatch has the responder stamp a foreign transaction id;
// the confirmation must be rejected as a protocol mismatch without
// dropping the connection.
func TestExchangeMismatch(t *testing.T) {
	client, server, l := listenPair(t)
	serveOnce(t, server, l, 0x0063)

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	req := make([]byte, client.Backend().MaxADULength())
	n := client.BuildRequest(req, mbap.FcReadHoldingRegisters, 0x0000, 0x0001)
	if _, err := client.Send(req[:n]); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	rsp := make([]byte, client.Backend().MaxADULength())
	if _, err := client.ReceiveConfirmation(req[:n], rsp); !errors.Is(err, common.ErrProtocolMismatch) {
		t.Fatalf("err = %v, want ErrProtocolMismatch", err)
	}
	if !client.Connected() {
		t.Error("connection dropped after protocol mismatch")
	}
}

// TestCloneConnectsIndependently mirrors the scale-out pattern: a cloned
// context dials its own socket while the original keeps its connection.
func TestCloneConnectsIndependently(t *testing.T) {
	server, err := NewContext("127.0.0.1", 0, nil)
	if err != nil {
		t.Fatalf("NewContext (server) failed: %v", err)
	}
	l, err := server.Listen()
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer l.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	port := l.Addr().(*net.TCPAddr).Port
	client, err := NewContext("127.0.0.1", port, nil)
	if err != nil {
		t.Fatalf("NewContext (client) failed: %v", err)
	}
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	clone := client.Clone()
	if clone.Connected() {
		t.Fatal("clone starts connected, want unconnected")
	}
	if err := clone.Connect(); err != nil {
		t.Fatalf("clone Connect failed: %v", err)
	}
	defer clone.Close()

	for i := 0; i < 2; i++ {
		conn := <-accepted
		conn.Close()
	}
	if !client.Connected() || !clone.Connected() {
		t.Error("original and clone must each own a connection")
	}
}
