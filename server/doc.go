// Package server drives the passive-open side of a transport context: it
// accepts inbound connections on the context's endpoint and serves each
// one with an independent clone, so the single-threaded framing core never
// sees concurrent use. What a request means is left entirely to the
// supplied handler; the server only moves complete messages.
package server
