// Package testutil buffers node events for deterministic assertions in
// integration tests.
package testutil

import (
	"sync"
	"time"

	"github.com/YinWang3026/dynago/pkg/node"
)

// EventCollector drains a node's event stream into a buffer so tests can
// poll for conditions without racing on channel close.
type EventCollector struct {
	ch     chan node.Event
	notify chan struct{}
	done   chan struct{}

	mu  sync.Mutex
	buf []node.Event
}

func NewEventCollector(buffer int) *EventCollector {
	ec := &EventCollector{
		ch:     make(chan node.Event, buffer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go ec.loop()
	return ec
}

// Chan is the channel to hand to node.WithEvents.
func (ec *EventCollector) Chan() chan node.Event { return ec.ch }

func (ec *EventCollector) Close() { close(ec.done) }

func (ec *EventCollector) loop() {
	for {
		select {
		case <-ec.done:
			return
		case e := <-ec.ch:
			ec.mu.Lock()
			ec.buf = append(ec.buf, e)
			select {
			case ec.notify <- struct{}{}:
			default:
			}
			ec.mu.Unlock()
		}
	}
}

// Snapshot returns a copy of buffered events.
func (ec *EventCollector) Snapshot() []node.Event {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	out := make([]node.Event, len(ec.buf))
	copy(out, ec.buf)
	return out
}

// WaitFor waits up to timeout for pred to be satisfied by the buffer.
func (ec *EventCollector) WaitFor(timeout time.Duration, pred func([]node.Event) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		ec.mu.Lock()
		ok := pred(ec.buf)
		ec.mu.Unlock()
		if ok {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-ec.notify:
		case <-time.After(remaining):
			return false
		}
	}
}
