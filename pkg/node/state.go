package node

import (
	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/wire"
)

// snapshot captures the full observable state for GetStateRequest.
func (n *Node) snapshot() wire.StateSnapshot {
	alive := make(map[model.NodeID]bool, len(n.alive))
	for id, up := range n.alive {
		alive[id] = up
	}
	return wire.StateSnapshot{
		ID:    n.id,
		N:     n.cfg.N,
		R:     n.cfg.R,
		W:     n.cfg.W,
		Store: n.st.Snapshot(),
		Alive: alive,
	}
}
