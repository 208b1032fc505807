// Package transport provides the in-memory message bus the cluster runs
// on: a switch with per-address inboxes, plus a chaos wrapper that
// drops, duplicates, delays and reorders frames to fuzz the protocol.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

type envelope struct {
	from Addr
	data []byte
}

// Switch delivers frames between listened addresses. Every endpoint
// sends through it concurrently, hence the lock-free address table.
type Switch struct {
	inbox *xsync.MapOf[Addr, chan envelope]
}

func NewSwitch() *Switch {
	return &Switch{inbox: xsync.NewMapOf[Addr, chan envelope]()}
}

// memEndpoint is the handle a principal uses to send and receive.
type memEndpoint struct {
	sw     *Switch
	addr   Addr
	in     chan envelope
	closed chan struct{}
}

func (s *Switch) Listen(addr Addr) (Endpoint, error) {
	ch := make(chan envelope, 256)
	if _, loaded := s.inbox.LoadOrStore(addr, ch); loaded {
		return nil, fmt.Errorf("address already in use: %s", addr)
	}
	return &memEndpoint{sw: s, addr: addr, in: ch, closed: make(chan struct{})}, nil
}

func (e *memEndpoint) Addr() Addr { return e.addr }

func (e *memEndpoint) Close() {
	select {
	case <-e.closed:
	default:
		close(e.closed)
		e.sw.inbox.Delete(e.addr)
	}
}

// RecvFrom blocks until a frame arrives or ctx/endpoint is closed.
func (e *memEndpoint) RecvFrom(ctx context.Context) (Addr, []byte, bool) {
	select {
	case <-e.closed:
		return "", nil, false
	case <-ctx.Done():
		return "", nil, false
	case env := <-e.in:
		return env.from, env.data, true
	}
}

// Send delivers a frame to the destination inbox. Best effort: a full
// inbox drops the frame rather than blocking the sender.
func (e *memEndpoint) Send(to Addr, frame []byte) error {
	dst, ok := e.sw.inbox.Load(to)
	if !ok {
		return errors.New("unknown destination")
	}
	select {
	case <-e.closed:
		return errors.New("endpoint closed")
	default:
	}
	select {
	case dst <- envelope{from: e.addr, data: frame}:
		return nil
	default:
		return errors.New("destination inbox full")
	}
}
