package node

import (
	"github.com/YinWang3026/dynago/pkg/merkle"
	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/wire"
)

// onMerkleSync opens one anti-entropy round: snapshot the keyspace into
// a tree and offer it to a random live peer. Rounds run in both
// directions over time, so a one-way pull per round converges.
func (n *Node) onMerkleSync() {
	defer n.armTimer(n.cfg.Timers.MerkleSync, merkleSyncTick{})

	peer := n.randomAlivePeer()
	if peer == model.NoNode {
		return
	}
	tree := n.st.BuildTree()
	n.send(peer, wire.MerkleSyncRequest{Nonce: n.newNonce(), Levels: tree.Levels()})
	n.emit(EventSyncSent, map[string]any{"peer": string(peer), "leaves": tree.LeafCount()})
}

func (n *Node) randomAlivePeer() model.NodeID {
	var live []model.NodeID
	for _, p := range n.peers {
		if n.alive[p] {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return model.NoNode
	}
	return live[n.rng.Intn(len(live))]
}

// onMerkleSyncRequest runs the divergence comparison against the offered
// tree and ships back every local leaf from the divergence point on.
// Leaves are keyed in canonical sorted order on both sides, so a leaf
// index maps straight to a key range.
func (n *Node) onMerkleSyncRequest(from model.NodeID, msg wire.MerkleSyncRequest) {
	outcome, idx := merkle.Compare(merkle.FromLevels(msg.Levels), n.st.BuildTree())
	if outcome != merkle.SendFrom {
		return
	}
	keys := n.st.SortedKeys()
	if idx >= len(keys) {
		return
	}
	entries := make([]wire.SyncEntry, 0, len(keys)-idx)
	for _, key := range keys[idx:] {
		v, ok := n.st.Get(key)
		if !ok {
			continue
		}
		entries = append(entries, wire.SyncEntry{
			Key:     key,
			Values:  v.Clone().Values,
			Context: v.Ctx.WithoutHint(),
		})
	}
	n.send(from, wire.MerkleSyncResponse{Nonce: msg.Nonce, Entries: entries})
}

// onMerkleSyncResponse merges the shipped versions; Put's reconciliation
// makes replays and overlaps harmless.
func (n *Node) onMerkleSyncResponse(from model.NodeID, msg wire.MerkleSyncResponse) {
	for _, e := range msg.Entries {
		n.st.Put(e.Key, model.NewVersioned(e.Values, e.Context))
	}
	if len(msg.Entries) > 0 {
		n.emit(EventSyncApplied, map[string]any{"peer": string(from), "keys": len(msg.Entries)})
	}
}
