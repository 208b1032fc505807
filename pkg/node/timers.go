package node

import "github.com/YinWang3026/dynago/pkg/model"

// Timer payloads. Each is a tagged message to self; the run loop guards
// every firing against trackers that have already resolved.

const (
	kindGet byte = iota
	kindPut
)

type clientTimeout struct {
	kind  byte
	nonce uint64
}

type coordRequestTimeout struct {
	kind  byte
	nonce uint64
	peer  model.NodeID
}

type redirectTimeout struct {
	nonce uint64
	coord model.NodeID
}

type handoffTimeout struct {
	nonce uint64
	peer  model.NodeID
}

type healthCheckTick struct{}

type merkleSyncTick struct{}
