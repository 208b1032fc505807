package node

import (
	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/wire"
)

// onCoordGetRequest serves a replica read. The hint is stripped from the
// returned context: whoever asked is the coordinator the hint would have
// pointed at anyway.
func (n *Node) onCoordGetRequest(from model.NodeID, msg wire.CoordinatorGetRequest) {
	values, ctx := n.localRead(msg.Key)
	n.send(from, wire.CoordinatorGetResponse{Nonce: msg.Nonce, Values: values, Context: ctx})
}

// onCoordPutRequest applies a replica write, reconciling with any local
// siblings. A hinted write for an owner we believe alive kicks off the
// handoff straight away.
func (n *Node) onCoordPutRequest(from model.NodeID, msg wire.CoordinatorPutRequest) {
	n.st.Put(msg.Key, model.NewVersioned([][]byte{msg.Value}, msg.Context))
	n.send(from, wire.CoordinatorPutResponse{Nonce: msg.Nonce})
	if h := msg.Context.Hint; h != model.NoNode && n.alive[h] {
		n.startHandoff(h)
	}
}
