package client

import (
	"context"
	"errors"

	"github.com/hpetrik/chatproto/internal/protocol"
)

var (
	// ErrConnectionClosed is the connection-fault sentinel for a transport
	// whose peer or socket went away mid-session.
	ErrConnectionClosed = errors.New("client: connection closed")
	// ErrIllegalState is returned when a user command is rejected locally
	// because the session state does not permit it.
	ErrIllegalState = errors.New("client: operation not permitted in current state")
)

// ProtocolTransport is the uniform contract both transports expose upward.
// Implementations own their socket exclusively. Receive is driven from a
// single goroutine; Send may be called concurrently with Receive.
type ProtocolTransport interface {
	// Send frames and transmits one command. For the datagram transport this
	// blocks until the frame is confirmed, the retry budget is exhausted, or
	// ctx is canceled. Field validation errors surface before any bytes move.
	Send(ctx context.Context, cmd protocol.Command) error

	// Receive blocks until the next inbound application frame normalizes, the
	// transport faults, or ctx is canceled. Malformed inbound data is returned
	// as an error wrapping protocol.ErrMalformed (or its siblings) so the
	// session layer can report it to the peer before terminating.
	Receive(ctx context.Context) (protocol.NormalizedMessage, error)

	// Flush waits, bounded by ctx, until no outbound frame is awaiting
	// acknowledgment. A no-op for the stream transport.
	Flush(ctx context.Context) error

	// Close releases the socket. Safe to call more than once.
	Close() error
}

// isProtocolFault reports whether err is malformed wire data rather than a
// transport-level failure.
func isProtocolFault(err error) bool {
	return errors.Is(err, protocol.ErrMalformed) ||
		errors.Is(err, protocol.ErrTruncated) ||
		errors.Is(err, protocol.ErrUnknownKeyword) ||
		errors.Is(err, protocol.ErrUnexpectedFrame)
}
