package mbap

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/gombus/common"
)

// --------------------------------------------------------------------------
// Protocol constants
// --------------------------------------------------------------------------

const (
	// HeaderLength is the size of the MBAP prefix: transaction id (2),
	// protocol id (2), length (2), unit id (1)
	HeaderLength = 7

	// ChecksumLength is 0 for TCP: integrity comes from the stream, not a
	// frame checksum
	ChecksumLength = 0

	// MaxADULength is the maximum on-wire message size (header + PDU)
	MaxADULength = 260

	// PresetReqLength is the number of bytes stamped by BuildRequestHeader
	PresetReqLength = 12

	// PresetRspLength is the number of bytes stamped by BuildResponseHeader
	PresetRspLength = 8

	// DefaultPort is the registered Modbus TCP service port
	DefaultPort = 502

	// ProtocolID is always 0 for Modbus
	ProtocolID = 0

	// UnitIDMax is the highest addressable unit/slave id
	UnitIDMax = 247

	// UnitIDDefault is the sentinel unit id that restores the TCP default
	// (the unit id is ignored by most TCP servers)
	UnitIDDefault = 0xFF

	// ExceptionFlag is set in the function code of an exception response
	ExceptionFlag = 0x80
)

// Function codes the length-discovery tables need to know about.
const (
	FcReadCoils              = 0x01
	FcReadDiscreteInputs     = 0x02
	FcReadHoldingRegisters   = 0x03
	FcReadInputRegisters     = 0x04
	FcWriteSingleCoil        = 0x05
	FcWriteSingleRegister    = 0x06
	FcReadExceptionStatus    = 0x07
	FcWriteMultipleCoils     = 0x0F
	FcWriteMultipleRegisters = 0x10
	FcReportSlaveID          = 0x11
	FcMaskWriteRegister      = 0x16
	FcWriteAndReadRegisters  = 0x17
)

// --------------------------------------------------------------------------
// Message direction
// --------------------------------------------------------------------------

// MsgType tells the length-discovery tables which side of an exchange a
// message belongs to: a request received by a server (indication) or a
// response received by a client (confirmation).
type MsgType uint8

const (
	Indication MsgType = iota
	Confirmation
)

func (t MsgType) String() string {
	if t == Indication {
		return "indication"
	}
	return "confirmation"
}

// --------------------------------------------------------------------------
// Transaction sequencing
// --------------------------------------------------------------------------

// Sequence is the per-context 16-bit transaction counter. It increases by
// exactly one per request and wraps from 65535 to 0 without skipping. The
// zero value is ready to use; the first call to Next returns 1.
type Sequence struct {
	tid uint16
}

// Next advances the counter and returns the transaction id to use for the
// next request.
func (s *Sequence) Next() uint16 {
	if s.tid < 0xFFFF {
		s.tid++
	} else {
		s.tid = 0
	}
	return s.tid
}

// Current returns the transaction id of the most recent request.
func (s *Sequence) Current() uint16 {
	return s.tid
}

// --------------------------------------------------------------------------
// Header building
// --------------------------------------------------------------------------

// SFT is the ephemeral {transaction id, unit id, function code} triple a
// response header is built from. It is constructed per exchange from the
// inbound request and never persisted.
type SFT struct {
	TransactionID uint16
	UnitID        byte
	Function      byte
}

// SFTFromADU extracts the response descriptor from a received indication.
func SFTFromADU(adu []byte) SFT {
	return SFT{
		TransactionID: TransactionID(adu),
		UnitID:        adu[6],
		Function:      adu[HeaderLength],
	}
}

// BuildRequestHeader stamps a request prefix into buf: transaction id,
// protocol id, unit id, function code and the 16-bit address/quantity
// fields. The length bytes at [4:6] stay zero until PatchLength runs.
// Returns PresetReqLength so the caller knows where the payload begins.
func BuildRequestHeader(buf []byte, tid uint16, unitID, function byte, addr, quantity uint16) int {
	binary.BigEndian.PutUint16(buf[0:2], tid)
	binary.BigEndian.PutUint16(buf[2:4], ProtocolID)

	// Length is written by PatchLength once the payload is assembled

	buf[6] = unitID
	buf[7] = function
	binary.BigEndian.PutUint16(buf[8:10], addr)
	binary.BigEndian.PutUint16(buf[10:12], quantity)

	return PresetReqLength
}

// BuildResponseHeader stamps a response prefix into buf. The transaction
// id, unit id and function code are copied from the inbound request
// descriptor; a response never invents a new transaction id. Returns
// PresetRspLength.
func BuildResponseHeader(buf []byte, sft SFT) int {
	binary.BigEndian.PutUint16(buf[0:2], sft.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], ProtocolID)

	// Length is written by PatchLength once the payload is assembled

	buf[6] = sft.UnitID
	buf[7] = sft.Function

	return PresetRspLength
}

// PatchLength recomputes the MBAP length field as the total message length
// minus the 6-byte prefix and writes it big-endian. Must run after the
// payload is fully assembled.
func PatchLength(adu []byte) {
	binary.BigEndian.PutUint16(adu[4:6], uint16(len(adu)-6))
}

// TransactionID reads the transaction id off a message. The field is at a
// fixed position so no further interpretation is needed.
func TransactionID(adu []byte) uint16 {
	return binary.BigEndian.Uint16(adu[0:2])
}

// Length reads the declared MBAP length field (byte count following it).
func Length(adu []byte) uint16 {
	return binary.BigEndian.Uint16(adu[4:6])
}

// UnitID reads the unit/slave id off a message.
func UnitID(adu []byte) byte {
	return adu[6]
}

// FunctionCode reads the function code off a message, with the exception
// flag still included.
func FunctionCode(adu []byte) byte {
	return adu[HeaderLength]
}

// IsException reports whether a function code carries the exception flag.
func IsException(function byte) bool {
	return function&ExceptionFlag != 0
}

// ValidateUnitID checks that id is an addressable unit id (0 is the
// broadcast address) or the restore-default sentinel.
func ValidateUnitID(id int) error {
	if (id >= 0 && id <= UnitIDMax) || id == UnitIDDefault {
		return nil
	}
	return fmt.Errorf("%w: unit id %d out of range [0,%d]", common.ErrInvalidArgument, id, UnitIDMax)
}

// --------------------------------------------------------------------------
// 3-phase length discovery
// --------------------------------------------------------------------------

// MetaLength returns how many bytes beyond the function code must be read
// before the total payload length becomes determinable. A zero result
// means the message length is already fully known.
func MetaLength(function byte, msgType MsgType) int {
	if msgType == Indication {
		switch {
		case function <= FcWriteSingleRegister:
			// Fixed address + quantity/value fields
			return 4
		case function == FcWriteMultipleCoils || function == FcWriteMultipleRegisters:
			// Address + quantity + byte count
			return 5
		case function == FcMaskWriteRegister:
			return 6
		case function == FcWriteAndReadRegisters:
			return 9
		default:
			// FcReadExceptionStatus, FcReportSlaveID carry no meta
			return 0
		}
	}

	// Confirmation
	switch function {
	case FcWriteSingleCoil, FcWriteSingleRegister,
		FcWriteMultipleCoils, FcWriteMultipleRegisters:
		return 4
	case FcMaskWriteRegister:
		return 6
	default:
		// Byte-count field for read responses, exception code for
		// exception responses
		return 1
	}
}

// DataLength returns the exact number of bytes still missing once the meta
// bytes of a message are in hand. adu must hold at least
// HeaderLength+1+MetaLength bytes.
func DataLength(adu []byte, msgType MsgType) int {
	function := adu[HeaderLength]
	var length int

	if msgType == Indication {
		switch function {
		case FcWriteMultipleCoils, FcWriteMultipleRegisters:
			length = int(adu[HeaderLength+5])
		case FcWriteAndReadRegisters:
			length = int(adu[HeaderLength+9])
		default:
			length = 0
		}
	} else {
		// Confirmation: read responses declare their payload in the
		// byte-count field right after the function code
		if function <= FcReadInputRegisters ||
			function == FcReportSlaveID ||
			function == FcWriteAndReadRegisters {
			length = int(adu[HeaderLength+1])
		} else {
			length = 0
		}
	}

	return length + ChecksumLength
}
