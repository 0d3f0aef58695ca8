// Package mbap implements the Modbus Application Protocol framing codec:
// header construction, transaction-id sequencing and the length-discovery
// tables the receive state machine is driven by.
//
// Everything in this package is pure computation over byte slices - no
// sockets, no timeouts. This keeps the length-determination logic testable
// with synthetic function codes and byte counts, independently of the I/O
// loop in the transport package.
//
// Key Components:
//
//   - BuildRequestHeader / BuildResponseHeader: stamp the 7-byte MBAP
//     prefix. The 2-byte length field is deliberately left for PatchLength
//     since the payload length is only known once it is fully assembled.
//
//   - Sequence: the per-context 16-bit transaction counter with wraparound.
//
//   - MetaLength / DataLength: given a function code and the message
//     direction, compute how many bytes must still be read before the total
//     message length is known, and the exact remaining data length after
//     the meta bytes arrived.
package mbap
