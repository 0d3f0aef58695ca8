package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Recovery mode
// --------------------------------------------------------------------------

// RecoveryMode selects how the transport reacts to link failures.
type RecoveryMode uint8

const (
	// RecoveryNone propagates every transport failure directly to the caller
	RecoveryNone RecoveryMode = 0
	// RecoveryLink flushes or reconnects the socket after link failures so
	// the next exchange starts from a clean connection. The original error
	// of the failed call is still returned.
	RecoveryLink RecoveryMode = 1 << 1
)

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds the socket tuning parameters applied to every new
// connection. All options are best effort unless noted otherwise.
type SocketConf struct {
	// NoDelay disables Nagle's algorithm. Failure to apply it is fatal for
	// the connection attempt.
	NoDelay bool
	// KeepAlivePeriod enables TCP keep-alive probes when > 0
	KeepAlivePeriod time.Duration
	// ReadBufferSize sets the socket read buffer when > 0
	ReadBufferSize int
	// WriteBufferSize sets the socket write buffer when > 0
	WriteBufferSize int
}

// Config holds all configuration parameters for a transport context.
type Config struct {
	// ResponseTimeout bounds the wait for a confirmation and for connect
	// completion
	ResponseTimeout time.Duration

	// ByteTimeout bounds the wait between two consecutive chunks of the
	// same message. A negative value disables the inter-byte watchdog so
	// only ResponseTimeout applies.
	ByteTimeout time.Duration

	// Recovery selects the link error-recovery policy
	Recovery RecoveryMode

	// Debug enables hex tracing of every received chunk on the logger
	Debug bool

	// Backlog is the maximum number of simultaneously served connections
	// in listen mode
	Backlog int

	// LogLevel is the level at which logs will be output (debug, info,
	// warn, error)
	LogLevel string

	// Socket holds per-connection socket tuning
	Socket SocketConf
}

// DefaultConfig returns the configuration a freshly created context starts
// with. The timeout values follow the established Modbus defaults.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout: 500 * time.Millisecond,
		ByteTimeout:     500 * time.Millisecond,
		Recovery:        RecoveryNone,
		Backlog:         1,
		LogLevel:        "info",
		Socket: SocketConf{
			NoDelay: true,
		},
	}
}

// Validate checks the configuration for values the transport cannot work
// with.
func (c *Config) Validate() error {
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("%w: response timeout must be positive", ErrInvalidArgument)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("%w: backlog must be at least 1", ErrInvalidArgument)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Timeouts")
	addField("Response Timeout", c.ResponseTimeout.String())
	if c.ByteTimeout < 0 {
		addField("Byte Timeout", "disabled")
	} else {
		addField("Byte Timeout", c.ByteTimeout.String())
	}

	addSection("Recovery")
	if c.Recovery&RecoveryLink != 0 {
		addField("Mode", "link")
	} else {
		addField("Mode", "none")
	}

	addSection("Listen")
	addField("Backlog", fmt.Sprintf("%d", c.Backlog))

	addSection("Socket")
	addField("No Delay", fmt.Sprintf("%t", c.Socket.NoDelay))
	if c.Socket.KeepAlivePeriod > 0 {
		addField("Keep Alive", c.Socket.KeepAlivePeriod.String())
	}
	if c.Socket.ReadBufferSize > 0 {
		addField("Read Buffer", fmt.Sprintf("%d bytes", c.Socket.ReadBufferSize))
	}
	if c.Socket.WriteBufferSize > 0 {
		addField("Write Buffer", fmt.Sprintf("%d bytes", c.Socket.WriteBufferSize))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Debug", fmt.Sprintf("%t", c.Debug))

	return sb.String()
}
