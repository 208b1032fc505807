package node

import "github.com/YinWang3026/dynago/pkg/wire"

// onHealthCheck probes every peer currently believed dead. Their
// response, like any other traffic from them, revives them.
func (n *Node) onHealthCheck() {
	for _, peer := range n.peers {
		if !n.alive[peer] {
			n.send(peer, wire.AliveCheckRequest{})
		}
	}
	n.armTimer(n.cfg.Timers.HealthCheck, healthCheckTick{})
}
