package node

import (
	"fmt"

	"github.com/YinWang3026/dynago/pkg/wire"
)

// handle is the single entry point for every message and timer. State
// mutation happens here and nowhere else.
func (n *Node) handle(it item) error {
	if n.crashed {
		if _, ok := it.msg.(wire.Recover); ok {
			n.onRecover()
		}
		return nil
	}

	if it.tm != nil {
		if it.epoch != n.epoch {
			return nil
		}
		return n.handleTimer(it.tm)
	}

	countMessage(n.id, "in", it.msg.Kind())

	// any traffic from a dead-marked peer revives it
	if n.isPeer(it.from) {
		n.markAlive(it.from)
	}

	switch msg := it.msg.(type) {
	case wire.ClientGetRequest:
		n.onClientGet(it.from, msg)
	case wire.ClientPutRequest:
		n.onClientPut(it.from, msg)
	case wire.RedirectedClientRequest:
		return n.onRedirectedRequest(it.from, msg)
	case wire.RedirectAcknowledgement:
		delete(n.redirects, msg.Nonce)
	case wire.CoordinatorGetRequest:
		n.onCoordGetRequest(it.from, msg)
	case wire.CoordinatorGetResponse:
		n.onCoordGetResponse(it.from, msg)
	case wire.CoordinatorPutRequest:
		n.onCoordPutRequest(it.from, msg)
	case wire.CoordinatorPutResponse:
		n.onCoordPutResponse(it.from, msg)
	case wire.HandoffRequest:
		n.onHandoffRequest(it.from, msg)
	case wire.HandoffResponse:
		n.onHandoffResponse(it.from, msg)
	case wire.AliveCheckRequest:
		n.send(it.from, wire.AliveCheckResponse{})
	case wire.AliveCheckResponse:
		// revival happened above
	case wire.MerkleSyncRequest:
		n.onMerkleSyncRequest(it.from, msg)
	case wire.MerkleSyncResponse:
		n.onMerkleSyncResponse(it.from, msg)
	case wire.GetStateRequest:
		n.send(it.from, wire.GetStateResponse{Nonce: msg.Nonce, State: n.snapshot()})
	case wire.Crash:
		n.onCrash()
	case wire.Recover:
		// already running
	default:
		return fmt.Errorf("unhandled message 0x%02x from %s", it.msg.Kind(), it.from)
	}
	return nil
}

func (n *Node) handleTimer(tm any) error {
	switch t := tm.(type) {
	case clientTimeout:
		n.onClientTimeout(t)
	case coordRequestTimeout:
		n.onCoordRequestTimeout(t)
	case redirectTimeout:
		n.onRedirectTimeout(t)
	case handoffTimeout:
		n.onHandoffTimeout(t)
	case healthCheckTick:
		n.onHealthCheck()
	case merkleSyncTick:
		n.onMerkleSync()
	default:
		return fmt.Errorf("unhandled timer %T", tm)
	}
	return nil
}

func (n *Node) onCrash() {
	n.crashed = true
	n.epoch++
	n.reset()
	n.emit(EventCrash, nil)
}

func (n *Node) onRecover() {
	n.crashed = false
	n.epoch++
	n.reset()
	n.armPeriodic()
	n.emit(EventRecover, nil)
}
