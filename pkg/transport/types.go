package transport

import "context"

// Addr identifies a principal on the bus: a node or the test client.
type Addr string

// Endpoint is the minimal surface a node needs: receive with sender
// identity, best-effort send, close.
type Endpoint interface {
	Addr() Addr
	RecvFrom(ctx context.Context) (Addr, []byte, bool)
	Send(to Addr, frame []byte) error
	Close()
}
