package node

import "github.com/YinWang3026/dynago/pkg/model"

// preference is the natural owner list for key: the top-n ring nodes.
func (n *Node) preference(key string) []model.NodeID {
	return n.ring.Pref(key, n.cfg.N)
}

func (n *Node) isCoordinator(key string) bool {
	for _, id := range n.preference(key) {
		if id == n.id {
			return true
		}
	}
	return false
}

// firstAliveCoordinator picks the first natural owner that is self or
// believed alive. NoNode when every owner is dead.
func (n *Node) firstAliveCoordinator(key string) model.NodeID {
	for _, id := range n.preference(key) {
		if id == n.id || n.alive[id] {
			return id
		}
	}
	return model.NoNode
}

// candidates is the full ring walk for key: the natural owners followed
// by every possible substitute, in ring order.
func (n *Node) candidates(key string) []model.NodeID {
	return n.ring.Walk(key, len(n.peers)+1)
}

// alivePreference walks the ring past dead nodes until n live replicas
// (self counts) are found, or the ring is exhausted.
func (n *Node) alivePreference(key string) []model.NodeID {
	out := make([]model.NodeID, 0, n.cfg.N)
	for _, id := range n.candidates(key) {
		if id == n.id || n.alive[id] {
			out = append(out, id)
			if len(out) == n.cfg.N {
				break
			}
		}
	}
	return out
}

// replicaTarget pairs a write target with the dead natural owner it
// stands in for, NoNode when the target is a natural owner itself.
type replicaTarget struct {
	node     model.NodeID
	intended model.NodeID
}

// alivePreferenceWithHints assigns each substitute the dead owner it
// replaces, zipping the two sequences in order of appearance.
func (n *Node) alivePreferenceWithHints(key string) []replicaTarget {
	naturals := n.preference(key)
	naturalSet := make(map[model.NodeID]bool, len(naturals))
	var dead []model.NodeID
	for _, id := range naturals {
		naturalSet[id] = true
		if id != n.id && !n.alive[id] {
			dead = append(dead, id)
		}
	}

	targets := make([]replicaTarget, 0, n.cfg.N)
	sub := 0
	for _, id := range n.alivePreference(key) {
		t := replicaTarget{node: id, intended: model.NoNode}
		if !naturalSet[id] && sub < len(dead) {
			t.intended = dead[sub]
			sub++
		}
		targets = append(targets, t)
	}
	return targets
}

func (n *Node) markAlive(id model.NodeID) {
	if !n.isPeer(id) || n.alive[id] {
		return
	}
	n.alive[id] = true
	n.emit(EventMarkAlive, map[string]any{"peer": string(id)})
	n.startHandoff(id)
}

func (n *Node) markDead(id model.NodeID) {
	if !n.isPeer(id) || !n.alive[id] {
		return
	}
	n.alive[id] = false
	n.emit(EventMarkDead, map[string]any{"peer": string(id)})
}
