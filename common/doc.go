// Package common provides the configuration structures, error kinds and
// logging utilities shared across the gombus transport layer.
//
// The package focuses on:
//   - Configuration structures for transport contexts and socket tuning
//   - An enumerated error model matched with errors.Is, replacing the
//     errno-style signaling of classic Modbus stacks
//   - Custom logging implementation integrated with the dragonboat logger
//
// Key Components:
//
//   - Config: Per-context configuration covering the response and
//     inter-byte timeouts, the link error-recovery mode, listen backlog
//     and socket tuning parameters. Provides defaults and validation.
//
//   - Error kinds: Sentinel errors (ErrTimedOut, ErrConnectionReset, ...)
//     plus structured errors such as TIDMismatchError that carry enough
//     context for the caller to decide on recovery. MapNetError folds the
//     net package's error zoo into these kinds.
//
//   - Logger: Custom logging implementation providing consistent
//     formatting across all gombus packages.
package common
