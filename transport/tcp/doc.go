// Package tcp implements the IPv4-only transport backend. It provides the
// variant-specific connect and listen paths for numeric dotted-quad
// addresses; framing, header building and error recovery are inherited
// from the transport package's shared MBAP core.
//
// Key Components:
//
//   - NewContext: creates a transport.Context bound to an ip/port pair.
//     The address string is validated at construction, not at connect
//     time, so a malformed endpoint fails fast.
package tcp
