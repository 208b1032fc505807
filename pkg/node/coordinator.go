package node

import (
	"fmt"
	"log/slog"

	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/wire"
)

// onClientGet handles a get arriving straight from the client: this node
// either coordinates or redirects to a live natural owner.
func (n *Node) onClientGet(client model.NodeID, req wire.ClientGetRequest) {
	n.emit(EventClientGet, map[string]any{"key": req.Key, "nonce": req.Nonce})
	n.armTimer(n.cfg.Timers.Client, clientTimeout{kind: kindGet, nonce: req.Nonce})
	if n.isCoordinator(req.Key) {
		n.coordinateGet(client, req)
		return
	}
	n.redirect(client, req.Nonce, req.Key, kindGet, req)
}

func (n *Node) onClientPut(client model.NodeID, req wire.ClientPutRequest) {
	n.emit(EventClientPut, map[string]any{"key": req.Key, "nonce": req.Nonce})
	n.armTimer(n.cfg.Timers.Client, clientTimeout{kind: kindPut, nonce: req.Nonce})
	if n.isCoordinator(req.Key) {
		n.coordinatePut(client, req)
		return
	}
	n.redirect(client, req.Nonce, req.Key, kindPut, req)
}

// redirect hands the request to the first live natural owner, or fails
// the client immediately when none is left.
func (n *Node) redirect(client model.NodeID, nonce uint64, key string, kind byte, req wire.Message) {
	coord := n.firstAliveCoordinator(key)
	if coord == model.NoNode {
		n.failClient(client, kind, nonce)
		return
	}
	frame, err := wire.Encode(req)
	if err != nil {
		slog.Warn("encode_err", "node", n.id, "err", err)
		n.failClient(client, kind, nonce)
		return
	}
	n.redirects[nonce] = &redirectTracker{client: client, key: key, kind: kind, frame: frame}
	n.send(coord, wire.RedirectedClientRequest{Client: client, Request: frame})
	n.armTimer(n.cfg.Timers.Redirect, redirectTimeout{nonce: nonce, coord: coord})
	n.emit(EventRedirect, map[string]any{"key": key, "coord": string(coord)})
}

// onRedirectTimeout: the chosen coordinator never acknowledged. Mark it
// dead and try the next one; when all owners are dead this converges on
// an immediate client failure.
func (n *Node) onRedirectTimeout(t redirectTimeout) {
	rt, ok := n.redirects[t.nonce]
	if !ok {
		return
	}
	n.markDead(t.coord)
	coord := n.firstAliveCoordinator(rt.key)
	if coord == model.NoNode {
		delete(n.redirects, t.nonce)
		n.failClient(rt.client, rt.kind, t.nonce)
		n.emit(EventRedirectFail, map[string]any{"key": rt.key})
		return
	}
	n.send(coord, wire.RedirectedClientRequest{Client: rt.client, Request: rt.frame})
	n.armTimer(n.cfg.Timers.Redirect, redirectTimeout{nonce: t.nonce, coord: coord})
	n.emit(EventRedirect, map[string]any{"key": rt.key, "coord": string(coord), "retry": true})
}

// onRedirectedRequest processes a forwarded client request as its own.
// The acknowledgement is what releases the forwarder's pending entry.
func (n *Node) onRedirectedRequest(from model.NodeID, msg wire.RedirectedClientRequest) error {
	inner, err := wire.Decode(msg.Request)
	if err != nil {
		return fmt.Errorf("redirected request from %s: %w", from, err)
	}
	switch req := inner.(type) {
	case wire.ClientGetRequest:
		if !n.isCoordinator(req.Key) {
			return fmt.Errorf("redirected get for %q but not a coordinator", req.Key)
		}
		n.send(from, wire.RedirectAcknowledgement{Nonce: req.Nonce})
		n.armTimer(n.cfg.Timers.Client, clientTimeout{kind: kindGet, nonce: req.Nonce})
		n.coordinateGet(msg.Client, req)
	case wire.ClientPutRequest:
		if !n.isCoordinator(req.Key) {
			return fmt.Errorf("redirected put for %q but not a coordinator", req.Key)
		}
		n.send(from, wire.RedirectAcknowledgement{Nonce: req.Nonce})
		n.armTimer(n.cfg.Timers.Client, clientTimeout{kind: kindPut, nonce: req.Nonce})
		n.coordinatePut(msg.Client, req)
	default:
		return fmt.Errorf("redirected request of kind 0x%02x", inner.Kind())
	}
	return nil
}

// coordinateGet fans the read to every live replica, counting its own
// local read through the same response path.
func (n *Node) coordinateGet(client model.NodeID, req wire.ClientGetRequest) {
	targets := n.alivePreference(req.Key)
	gt := &getTracker{
		client:     client,
		key:        req.Key,
		responses:  make(map[model.NodeID]readResult, len(targets)),
		requested:  make(map[model.NodeID]bool, len(targets)),
		candidates: n.candidates(req.Key),
	}
	selfTargeted := false
	for _, peer := range targets {
		gt.requested[peer] = true
		gt.bumpIndex(peer)
		if peer == n.id {
			selfTargeted = true
			continue
		}
		n.send(peer, wire.CoordinatorGetRequest{Nonce: req.Nonce, Key: req.Key})
		n.armTimer(n.cfg.Timers.Request, coordRequestTimeout{kind: kindGet, nonce: req.Nonce, peer: peer})
	}
	n.gets[req.Nonce] = gt
	if selfTargeted {
		// fast in-process path: same semantics, no network hop
		values, ctx := n.localRead(req.Key)
		n.onCoordGetResponse(n.id, wire.CoordinatorGetResponse{Nonce: req.Nonce, Values: values, Context: ctx})
	}
}

// coordinatePut applies the write locally first (that is the +1 self
// acknowledgement), then fans it to the remaining live replicas with
// hints for any dead natural owner.
func (n *Node) coordinatePut(client model.NodeID, req wire.ClientPutRequest) {
	ctx := model.Context{Clock: req.Context.Clock.Clone()}
	ctx.Clock.Tick(string(n.id))
	n.st.Put(req.Key, model.NewVersioned([][]byte{req.Value}, ctx))

	targets := n.alivePreferenceWithHints(req.Key)
	pt := &putTracker{
		client:     client,
		key:        req.Key,
		value:      req.Value,
		ctx:        ctx,
		responses:  make(map[model.NodeID]bool, len(targets)),
		requested:  make(map[model.NodeID]model.NodeID, len(targets)),
		candidates: n.candidates(req.Key),
	}
	for _, t := range targets {
		if t.node == n.id {
			continue
		}
		pt.requested[t.node] = t.intended
		pt.bumpIndex(t.node)
		out := ctx
		out.Hint = t.intended
		n.send(t.node, wire.CoordinatorPutRequest{Nonce: req.Nonce, Key: req.Key, Value: req.Value, Context: out})
		n.armTimer(n.cfg.Timers.Request, coordRequestTimeout{kind: kindPut, nonce: req.Nonce, peer: t.node})
	}

	if n.cfg.W <= 1 {
		n.send(client, wire.ClientPutResponse{Nonce: req.Nonce, Success: true, Value: req.Value, Context: ctx})
		n.emit(EventQuorumPut, map[string]any{"key": req.Key, "acks": 0})
		return
	}
	n.puts[req.Nonce] = pt
}

// localRead is the participant read applied to ourselves; hints never
// leave the node that stored them.
func (n *Node) localRead(key string) ([][]byte, model.Context) {
	if v, ok := n.st.Get(key); ok {
		return v.Clone().Values, v.Ctx.WithoutHint()
	}
	return nil, model.NewContext()
}

func (n *Node) failClient(client model.NodeID, kind byte, nonce uint64) {
	n.emit(EventClientFail, map[string]any{"nonce": nonce})
	countClientFailure(n.id, kind)
	if kind == kindGet {
		n.send(client, wire.ClientGetResponse{Nonce: nonce, Success: false})
		return
	}
	n.send(client, wire.ClientPutResponse{Nonce: nonce, Success: false})
}

// onClientTimeout is the authoritative deadline: purge whatever is still
// pending for the nonce and fail the client once. A resolved request
// leaves nothing behind and the firing is a no-op.
func (n *Node) onClientTimeout(t clientTimeout) {
	var client model.NodeID
	found := false
	if rt, ok := n.redirects[t.nonce]; ok {
		client, found = rt.client, true
		delete(n.redirects, t.nonce)
	}
	if gt, ok := n.gets[t.nonce]; ok {
		client, found = gt.client, true
		delete(n.gets, t.nonce)
	}
	if pt, ok := n.puts[t.nonce]; ok {
		client, found = pt.client, true
		delete(n.puts, t.nonce)
	}
	if found {
		n.failClient(client, t.kind, t.nonce)
	}
}
