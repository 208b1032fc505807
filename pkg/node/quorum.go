package node

import (
	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/wire"
)

type readResult struct {
	values [][]byte
	ctx    model.Context
}

// getTracker is the pending state of one coordinated read: which
// replicas were asked, who answered what, and how far down the ring the
// retries have walked.
type getTracker struct {
	client     model.NodeID
	key        string
	responses  map[model.NodeID]readResult
	requested  map[model.NodeID]bool
	candidates []model.NodeID
	lastIdx    int
}

func (gt *getTracker) bumpIndex(peer model.NodeID) {
	for i, id := range gt.candidates {
		if id == peer && i > gt.lastIdx {
			gt.lastIdx = i
		}
	}
}

// putTracker mirrors getTracker for writes; requested remembers the hint
// each target carries so retries can forward it.
type putTracker struct {
	client     model.NodeID
	key        string
	value      []byte
	ctx        model.Context
	responses  map[model.NodeID]bool
	requested  map[model.NodeID]model.NodeID
	candidates []model.NodeID
	lastIdx    int
}

func (pt *putTracker) bumpIndex(peer model.NodeID) {
	for i, id := range pt.candidates {
		if id == peer && i > pt.lastIdx {
			pt.lastIdx = i
		}
	}
}

type redirectTracker struct {
	client model.NodeID
	key    string
	kind   byte
	frame  []byte
}

// onCoordGetResponse folds a replica's read into the tracker and answers
// the client once R distinct responses are in. Late responses miss the
// nonce and fall through.
func (n *Node) onCoordGetResponse(from model.NodeID, msg wire.CoordinatorGetResponse) {
	gt, ok := n.gets[msg.Nonce]
	if !ok {
		return
	}
	gt.responses[from] = readResult{values: msg.Values, ctx: msg.Context}
	if len(gt.responses) < n.cfg.R {
		return
	}

	merged := model.Versioned{Ctx: model.NewContext()}
	first := true
	for _, r := range gt.responses {
		v := model.NewVersioned(r.values, r.ctx)
		if first {
			merged, first = v, false
			continue
		}
		merged = model.Merge(merged, v)
	}
	delete(n.gets, msg.Nonce)
	n.send(gt.client, wire.ClientGetResponse{
		Nonce:   msg.Nonce,
		Success: true,
		Values:  merged.Values,
		Context: merged.Ctx,
	})
	n.emit(EventQuorumGet, map[string]any{"key": gt.key, "replies": len(gt.responses)})
}

// onCoordPutResponse counts one acknowledgement; W-1 peer acks on top of
// the local write release the client response.
func (n *Node) onCoordPutResponse(from model.NodeID, msg wire.CoordinatorPutResponse) {
	pt, ok := n.puts[msg.Nonce]
	if !ok {
		return
	}
	pt.responses[from] = true
	if len(pt.responses) < n.cfg.W-1 {
		return
	}
	delete(n.puts, msg.Nonce)
	n.send(pt.client, wire.ClientPutResponse{
		Nonce:   msg.Nonce,
		Success: true,
		Value:   pt.value,
		Context: pt.ctx,
	})
	n.emit(EventQuorumPut, map[string]any{"key": pt.key, "acks": len(pt.responses)})
}

// onCoordRequestTimeout: a fanned-out request went unanswered. Mark the
// peer dead and re-issue the same nonce to the next candidate down the
// ring that has not been asked yet. With no candidate left the attempt
// is abandoned; the client timer owns the final verdict.
func (n *Node) onCoordRequestTimeout(t coordRequestTimeout) {
	if t.kind == kindGet {
		n.retryGet(t)
		return
	}
	n.retryPut(t)
}

func (n *Node) retryGet(t coordRequestTimeout) {
	gt, ok := n.gets[t.nonce]
	if !ok {
		return
	}
	if _, answered := gt.responses[t.peer]; answered {
		return
	}
	n.markDead(t.peer)
	next, idx := n.nextCandidate(gt.candidates, gt.lastIdx, gt.requested)
	if next == model.NoNode {
		return
	}
	gt.requested[next] = true
	gt.lastIdx = idx
	n.emit(EventRetry, map[string]any{"key": gt.key, "peer": string(next), "kind": "get"})
	if next == n.id {
		values, ctx := n.localRead(gt.key)
		n.onCoordGetResponse(n.id, wire.CoordinatorGetResponse{Nonce: t.nonce, Values: values, Context: ctx})
		return
	}
	n.send(next, wire.CoordinatorGetRequest{Nonce: t.nonce, Key: gt.key})
	n.armTimer(n.cfg.Timers.Request, coordRequestTimeout{kind: kindGet, nonce: t.nonce, peer: next})
}

func (n *Node) retryPut(t coordRequestTimeout) {
	pt, ok := n.puts[t.nonce]
	if !ok {
		return
	}
	if pt.responses[t.peer] {
		return
	}
	n.markDead(t.peer)
	requested := make(map[model.NodeID]bool, len(pt.requested)+1)
	requested[n.id] = true
	for id := range pt.requested {
		requested[id] = true
	}
	next, idx := n.nextCandidate(pt.candidates, pt.lastIdx, requested)
	if next == model.NoNode {
		return
	}
	// the failed peer's hint moves on: an unhinted peer was a natural
	// owner, so the substitute now carries it as the intended node
	hint := pt.requested[t.peer]
	if hint == model.NoNode {
		hint = t.peer
	}
	pt.requested[next] = hint
	pt.lastIdx = idx
	out := pt.ctx
	out.Hint = hint
	n.emit(EventRetry, map[string]any{"key": pt.key, "peer": string(next), "kind": "put"})
	n.send(next, wire.CoordinatorPutRequest{Nonce: t.nonce, Key: pt.key, Value: pt.value, Context: out})
	n.armTimer(n.cfg.Timers.Request, coordRequestTimeout{kind: kindPut, nonce: t.nonce, peer: next})
}

// nextCandidate scans past lastIdx for a node not yet asked that is
// alive or self.
func (n *Node) nextCandidate(candidates []model.NodeID, lastIdx int, requested map[model.NodeID]bool) (model.NodeID, int) {
	for i := lastIdx + 1; i < len(candidates); i++ {
		id := candidates[i]
		if requested[id] {
			continue
		}
		if id == n.id || n.alive[id] {
			return id, i
		}
	}
	return model.NoNode, lastIdx
}
