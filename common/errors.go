package common

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// --------------------------------------------------------------------------
// Error kinds
// --------------------------------------------------------------------------

// The transport layer reports every failure as one of the following kinds.
// Callers match with errors.Is; additional context (e.g. the conflicting
// transaction ids) is carried by wrapping error types below.
var (
	// ErrInvalidArgument is returned for malformed addresses, unit ids or
	// operations on a nil/unconfigured context
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConnectionRefused is returned when the peer (or the resolver)
	// rejects a connection attempt
	ErrConnectionRefused = errors.New("connection refused")

	// ErrConnectionReset is returned when the peer closes or resets an
	// established connection
	ErrConnectionReset = errors.New("connection reset by peer")

	// ErrTimedOut is returned when no data (or no connect completion)
	// arrived within the configured bound
	ErrTimedOut = errors.New("timed out")

	// ErrBadDescriptor is returned when operating on a closed socket
	ErrBadDescriptor = errors.New("bad socket descriptor")

	// ErrOversizedMessage is returned when the projected message length
	// exceeds the transport's maximum ADU length
	ErrOversizedMessage = errors.New("message length exceeds maximum ADU length")

	// ErrProtocolMismatch is returned when a confirmation does not belong
	// to the outstanding request (transaction id mismatch)
	ErrProtocolMismatch = errors.New("protocol mismatch")

	// ErrIO is returned for unrecoverable generic transport errors
	ErrIO = errors.New("i/o error")
)

// --------------------------------------------------------------------------
// Structured errors
// --------------------------------------------------------------------------

// TIDMismatchError reports a confirmation whose transaction id does not
// match the outstanding request. It matches ErrProtocolMismatch.
type TIDMismatchError struct {
	Got  uint16
	Want uint16
}

func (e *TIDMismatchError) Error() string {
	return fmt.Sprintf("invalid transaction id received 0x%X (not 0x%X)", e.Got, e.Want)
}

func (e *TIDMismatchError) Is(target error) bool {
	return target == ErrProtocolMismatch
}

// --------------------------------------------------------------------------
// Error mapping
// --------------------------------------------------------------------------

// MapNetError translates an error returned by the net package into one of
// the kinds above, preserving the original error via wrapping. A nil error
// maps to nil.
func MapNetError(err error) error {
	if err == nil {
		return nil
	}

	// Already one of ours
	for _, kind := range []error{
		ErrInvalidArgument, ErrConnectionRefused, ErrConnectionReset,
		ErrTimedOut, ErrBadDescriptor, ErrOversizedMessage,
		ErrProtocolMismatch, ErrIO,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}

	// A deadline elapsed before any data arrived
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimedOut, err)
	}

	switch {
	// A zero-byte read or peer reset means the connection is gone
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return fmt.Errorf("%w: %v", ErrConnectionReset, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
	case errors.Is(err, net.ErrClosed), errors.Is(err, syscall.EBADF):
		return fmt.Errorf("%w: %v", ErrBadDescriptor, err)
	default:
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
}
