package transport

import (
	"net"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/mbap"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// --------------------------------------------------------------------------
// Backend capability table
// --------------------------------------------------------------------------

// Backend is the capability table of one transport variant. It is selected
// once at context-creation time and invoked uniformly thereafter: the
// framing state machine, header building and error recovery in Context are
// parameterized by it and never branch on the variant. New transports are
// added by supplying a new Backend, not by changing the framing machine.
//
// A Backend instance belongs to exactly one Context (it carries the
// per-context transaction counter); Clone duplicates it for a new context.
type Backend interface {
	// Name returns the name of the transport variant (e.g. "tcp", "tcp-pi")
	Name() string

	// HeaderLength is the size of the fixed addressing prefix
	HeaderLength() int

	// ChecksumLength is the size of the trailing frame checksum (0 when
	// the stream provides integrity)
	ChecksumLength() int

	// MaxADULength is the maximum allowed on-wire message size
	MaxADULength() int

	// ValidateUnitID checks a unit/slave id for this variant
	ValidateUnitID(id int) error

	// BuildRequestHeader advances the transaction counter and stamps a
	// request prefix into buf, returning the preset header length
	BuildRequestHeader(buf []byte, unitID, function byte, addr, quantity uint16) int

	// BuildResponseHeader stamps a response prefix from the inbound
	// request descriptor, returning the preset header length
	BuildResponseHeader(buf []byte, sft mbap.SFT) int

	// TransactionID extracts the transaction id of a message
	TransactionID(adu []byte) uint16

	// PrepareSend patches the on-wire length field immediately before
	// transmission
	PrepareSend(adu []byte)

	// MetaLength and DataLength drive the 3-phase length discovery of the
	// framing state machine (see the mbap package)
	MetaLength(function byte, msgType mbap.MsgType) int
	DataLength(adu []byte, msgType mbap.MsgType) int

	// CheckIntegrity validates a fully received message and returns its
	// length
	CheckIntegrity(adu []byte) (int, error)

	// PreCheckConfirmation verifies that a confirmation answers the given
	// request before any payload interpretation happens
	PreCheckConfirmation(req, rsp []byte) error

	// Connect establishes a connection to the configured endpoint with a
	// bounded wait
	Connect(cfg common.Config) (net.Conn, error)

	// Listen binds and listens on the configured endpoint (server role)
	Listen(cfg common.Config) (net.Listener, error)

	// Clone duplicates the backend including its variant state. The copy
	// owns an independent transaction counter.
	Clone() Backend
}

// --------------------------------------------------------------------------
// Trace callback
// --------------------------------------------------------------------------

// Direction flags which way traced bytes travelled.
type Direction uint8

const (
	RX Direction = iota
	TX
)

func (d Direction) String() string {
	if d == RX {
		return "rx"
	}
	return "tx"
}

// TraceFunc is invoked with the accumulated message bytes and a direction
// flag on every successfully received chunk and on every send. It serves
// diagnostics only and must not be used for control flow. Callers needing
// opaque state capture it in the closure.
type TraceFunc func(p []byte, dir Direction)
