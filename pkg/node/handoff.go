package node

import (
	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/vclock"
	"github.com/YinWang3026/dynago/pkg/wire"
)

// startHandoff batches every key still hinted for target and ships it
// over, skipping keys whose in-flight version already covers the stored
// one. Called on every liveness transition toward target and on hinted
// writes that arrive while target is believed alive.
func (n *Node) startHandoff(target model.NodeID) {
	keys := n.st.KeysHintedFor(target)
	if len(keys) == 0 {
		return
	}

	data := make(map[string]model.Versioned, len(keys))
	sent := make(map[string]model.Context, len(keys))
	for _, key := range keys {
		v, ok := n.st.Get(key)
		if !ok || n.inFlight(target, key, v.Ctx) {
			continue
		}
		data[key] = model.Versioned{Values: v.Clone().Values, Ctx: v.Ctx.WithoutHint()}
		sent[key] = v.Ctx.Clone()
	}
	if len(data) == 0 {
		return
	}

	nonce := n.newNonce()
	if n.handoffs[target] == nil {
		n.handoffs[target] = make(map[uint64]map[string]model.Context)
	}
	n.handoffs[target][nonce] = sent
	n.send(target, wire.HandoffRequest{Nonce: nonce, Data: data})
	n.armTimer(n.cfg.Timers.Request, handoffTimeout{nonce: nonce, peer: target})
	n.emit(EventHandoffSent, map[string]any{"peer": string(target), "keys": len(data)})
}

// inFlight reports whether an already-shipped version of key covers ctx;
// re-sending those would be pure retransmission.
func (n *Node) inFlight(target model.NodeID, key string, ctx model.Context) bool {
	for _, pending := range n.handoffs[target] {
		if sentCtx, ok := pending[key]; ok {
			if model.Compare(ctx, sentCtx) != vclock.After {
				return true
			}
		}
	}
	return false
}

// onHandoffRequest is the recovered owner's side: merge everything in.
func (n *Node) onHandoffRequest(from model.NodeID, msg wire.HandoffRequest) {
	for key, v := range msg.Data {
		n.st.Put(key, v)
	}
	n.send(from, wire.HandoffResponse{Nonce: msg.Nonce})
}

// onHandoffResponse clears the hints that were delivered, but only where
// the stored version has not advanced past what was sent.
func (n *Node) onHandoffResponse(from model.NodeID, msg wire.HandoffResponse) {
	pending, ok := n.handoffs[from][msg.Nonce]
	if !ok {
		return
	}
	delete(n.handoffs[from], msg.Nonce)
	for key, sentCtx := range pending {
		v, ok := n.st.Get(key)
		if !ok || v.Ctx.Hint != from {
			continue
		}
		if model.Compare(v.Ctx, sentCtx) != vclock.After {
			n.st.ClearHint(key)
		}
	}
	n.emit(EventHandoffAck, map[string]any{"peer": string(from), "keys": len(pending)})
}

// onHandoffTimeout assumes the target died again. The store keeps its
// hints untouched; the next liveness transition retries.
func (n *Node) onHandoffTimeout(t handoffTimeout) {
	if _, ok := n.handoffs[t.peer][t.nonce]; !ok {
		return
	}
	delete(n.handoffs[t.peer], t.nonce)
	n.markDead(t.peer)
	n.emit(EventHandoffAbort, map[string]any{"peer": string(t.peer)})
}
