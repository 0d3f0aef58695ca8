package transport

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/gombus/common"
	"github.com/ValentinKolb/gombus/mbap"
)

// --------------------------------------------------------------------------
// Receive state machine
// --------------------------------------------------------------------------

// step is the phase of the incremental length-discovery protocol. The
// message is analysed step by step: first up to the function code (present
// in every message), then the meta bytes that make the total length
// determinable, then the remaining data. No step is skipped even when a
// phase needs zero additional bytes.
type step uint8

const (
	stepFunction step = iota
	stepMeta
	stepData
)

// noTimeout disables the read deadline for the unbounded first wait of an
// indication.
const noTimeout time.Duration = -1

// ReceiveIndication reads one inbound request (server role) into msg and
// returns its length. The wait for the first byte is unbounded - a server
// does not know when the next request arrives; subsequent chunks of the
// same message are guarded by the byte timeout.
func (c *Context) ReceiveIndication(msg []byte) (int, error) {
	return c.receiveMsg(msg, mbap.Indication)
}

// ReceiveConfirmation reads the response paired with req (client role)
// into rsp and returns its length. The wait for the first byte is bounded
// by the response timeout. A confirmation whose transaction id does not
// match req fails with ErrProtocolMismatch; the connection stays open.
func (c *Context) ReceiveConfirmation(req, rsp []byte) (int, error) {
	n, err := c.receiveMsg(rsp, mbap.Confirmation)
	if err != nil {
		return n, err
	}

	if err := c.backend.PreCheckConfirmation(req, rsp[:n]); err != nil {
		metricTIDMismatches.Inc()
		Logger.Warningf("%s: %v", c.backend.Name(), err)
		return n, err
	}
	return n, nil
}

// receiveMsg incrementally reads one message of a-priori-unknown total
// length off the stream. Each iteration waits for readability under the
// currently applicable timeout, accepts however many bytes a single read
// yields, and re-computes the remaining byte count at phase boundaries.
func (c *Context) receiveMsg(msg []byte, msgType mbap.MsgType) (int, error) {
	if c.conn == nil {
		return 0, common.ErrBadDescriptor
	}
	if len(msg) < c.backend.MaxADULength() {
		return 0, fmt.Errorf("%w: receive buffer smaller than %d bytes",
			common.ErrInvalidArgument, c.backend.MaxADULength())
	}

	if c.cfg.Debug {
		Logger.Debugf("%s: waiting for a %s...", c.backend.Name(), msgType)
	}

	// Every message carries a function code right after the fixed header,
	// so that much is unconditionally readable.
	st := stepFunction
	lengthToRead := c.backend.HeaderLength() + 1
	msgLength := 0

	// An indication may arrive at any time; a confirmation must arrive
	// within the response timeout.
	timeout := noTimeout
	if msgType == mbap.Confirmation {
		timeout = c.cfg.ResponseTimeout
	}

	for lengthToRead > 0 {
		if timeout >= 0 {
			if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return msgLength, common.MapNetError(err)
			}
		} else {
			if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
				return msgLength, common.MapNetError(err)
			}
		}

		n, err := c.conn.Read(msg[msgLength : msgLength+lengthToRead])
		if n > 0 {
			msgLength += n
			lengthToRead -= n
			metricRxBytes.Add(n)

			if c.cfg.Debug {
				Logger.Debugf("%s: received % X", c.backend.Name(), msg[msgLength-n:msgLength])
			}
			if c.trace != nil {
				c.trace(msg[:msgLength], RX)
			}
		}
		if err != nil && lengthToRead > 0 {
			mapped := common.MapNetError(err)
			Logger.Errorf("%s: read failed after %d bytes: %v", c.backend.Name(), msgLength, mapped)
			return msgLength, c.recoverLink(mapped)
		}

		if lengthToRead == 0 {
			switch st {
			case stepFunction:
				// Function code is in hand: find out how many more bytes
				// make the total length determinable
				lengthToRead = c.backend.MetaLength(msg[c.backend.HeaderLength()], msgType)
				if lengthToRead != 0 {
					st = stepMeta
					break
				}
				fallthrough
			case stepMeta:
				lengthToRead = c.backend.DataLength(msg[:msgLength], msgType)
				if msgLength+lengthToRead > c.backend.MaxADULength() {
					metricOversized.Inc()
					return msgLength, fmt.Errorf("%w: %d bytes exceed %d",
						common.ErrOversizedMessage, msgLength+lengthToRead, c.backend.MaxADULength())
				}
				st = stepData
			}
		}

		// Once the first chunk is in, a stalled peer mid-message is caught
		// by the inter-byte watchdog
		if lengthToRead > 0 && c.cfg.ByteTimeout >= 0 {
			timeout = c.cfg.ByteTimeout
		}
	}

	_ = c.conn.SetReadDeadline(time.Time{})
	return c.backend.CheckIntegrity(msg[:msgLength])
}
