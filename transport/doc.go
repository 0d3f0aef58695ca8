// Package transport implements the Modbus TCP transport core: the framing
// state machine that reads messages of unknown total length off a stream
// socket, the backend capability table that makes the same logic serve
// multiple socket address families, and the link-level error-recovery
// policy.
//
// The package focuses on:
//   - Incremental 3-phase message receipt (function code, meta bytes,
//     data) with per-message and inter-byte timeouts
//   - A closed Backend interface as the polymorphism seam between the
//     shared framing logic and the variant-specific address resolution,
//     connect and listen paths (see the tcp and tcppi subpackages)
//   - Link recovery that flushes or reconnects after transport failures
//     while always surfacing the original error
//
// Key Components:
//
//   - Context: one live transport endpoint owning exactly one socket.
//     Contexts are single-threaded by design; use one context per
//     connection and Clone for independent endpoints.
//
//   - Backend: the immutable capability table of one transport variant.
//     MBAPCore implements the shared MBAP capabilities for embedding.
//
//   - TuneConn: best-effort low-latency socket configuration shared by
//     the variant connect paths.
//
// Concurrency:
//
//	Everything blocks synchronously with deadlines; there are no internal
//	goroutines and no cancellation beyond the configured timeouts. A
//	caller wanting to abort a wait early closes the socket from outside.
package transport
