// Package cmd implements the command-line interface for gombus. It
// provides a hierarchical command structure for exercising the transport
// as a client or a minimal slave.
//
// The package is organized into several subpackages:
//
//   - read: Issue a read-holding-registers request against a server
//   - serve: Run a minimal Modbus slave for link testing
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See gombus -help for a list of all commands.
package cmd
