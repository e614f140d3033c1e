// Package transport defines the duplex message port the session engine runs
// on and provides its WebSocket implementation.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the port has been closed.
var ErrClosed = errors.New("transport closed")

// Port is a message oriented duplex connection.
//
// Receive blocks until the next inbound frame arrives. It returns io.EOF when
// the remote end closed the stream gracefully and any other error on I/O
// failure. Implementations must allow one Send caller and one Receive caller
// to run concurrently.
type Port interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
