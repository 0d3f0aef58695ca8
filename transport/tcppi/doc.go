// Package tcppi implements the protocol-independent (PI) transport
// backend: endpoints are given as node and service names and resolved with
// family-agnostic name resolution, so the same context works over IPv4 and
// IPv6. Resolution yields an ordered candidate list and both the active
// and the passive open keep the first candidate that succeeds.
//
// Key Components:
//
//   - NewContext: creates a transport.Context bound to a node/service
//     pair. An empty node means "any" (wildcard listen, loopback connect);
//     an empty service selects the standard Modbus port 502.
package tcppi
