// Package mcptransport defines the bidirectional message-channel contract
// (spec.md §4.B) shared by the stdio and SSE transports. Concrete
// transports live in the stdio and sse subpackages.
package mcptransport

import "context"

// Transport is one bidirectional, line-framed connection to an MCP server.
//
// Receive is non-blocking within a short bound: it returns ok=false with a
// nil error when no message is currently available (a timeout, not a
// failure). A non-nil error always means the transport is no longer usable.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(ctx context.Context, line []byte) error
	Receive(ctx context.Context) (line []byte, ok bool, err error)
	IsConnected() bool
}
