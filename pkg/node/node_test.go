package node_test

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/node"
	"github.com/YinWang3026/dynago/pkg/node/testutil"
	"github.com/YinWang3026/dynago/pkg/ring"
	"github.com/YinWang3026/dynago/pkg/transport"
	"github.com/YinWang3026/dynago/pkg/wire"
)

func fastTimers() node.Timers {
	return node.Timers{
		Client:      2 * time.Second,
		Redirect:    60 * time.Millisecond,
		Request:     60 * time.Millisecond,
		HealthCheck: 80 * time.Millisecond,
		MerkleSync:  100 * time.Millisecond,
	}
}

type cluster struct {
	t      *testing.T
	sw     *transport.Switch
	nodes  map[model.NodeID]*node.Node
	events map[model.NodeID]*testutil.EventCollector
	client transport.Endpoint
	nonce  atomic.Uint64
}

func newCluster(t *testing.T, ids []model.NodeID, cfg node.Config, seed map[string][]byte) *cluster {
	t.Helper()
	c := &cluster{
		t:      t,
		sw:     transport.NewSwitch(),
		nodes:  make(map[model.NodeID]*node.Node),
		events: make(map[model.NodeID]*testutil.EventCollector),
	}
	for i, id := range ids {
		ep, err := c.sw.Listen(transport.Addr(id))
		if err != nil {
			t.Fatal(err)
		}
		ec := testutil.NewEventCollector(256)
		c.events[id] = ec
		n := node.New(id, ep, ids, cfg,
			node.WithSeed(int64(i)+1),
			node.WithInitialData(seed),
			node.WithEvents(ec.Chan()))
		c.nodes[id] = n
		n.Start()
	}
	ep, err := c.sw.Listen("test-client")
	if err != nil {
		t.Fatal(err)
	}
	c.client = ep
	t.Cleanup(func() {
		for _, n := range c.nodes {
			n.Stop()
		}
		for _, ec := range c.events {
			ec.Close()
		}
		c.client.Close()
	})
	return c
}

// waitEvent polls id's collected event stream for pred.
func (c *cluster) waitEvent(id model.NodeID, timeout time.Duration, pred func([]node.Event) bool) bool {
	return c.events[id].WaitFor(timeout, pred)
}

// sawPeerEvent matches an event of type t whose "peer" field names peer.
func sawPeerEvent(t node.EventType, peer model.NodeID) func([]node.Event) bool {
	return func(evs []node.Event) bool {
		for _, e := range evs {
			if e.Type == t && e.Fields["peer"] == string(peer) {
				return true
			}
		}
		return false
	}
}

func (c *cluster) send(to model.NodeID, msg wire.Message) {
	c.t.Helper()
	frame, err := wire.Encode(msg)
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	if err := c.client.Send(transport.Addr(to), frame); err != nil {
		c.t.Fatalf("send to %s: %v", to, err)
	}
}

// await drains the client inbox until a response with the wanted nonce
// shows up; unrelated or late frames are discarded like a real client
// would.
func (c *cluster) await(nonce uint64, timeout time.Duration) wire.Message {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		_, frame, ok := c.client.RecvFrom(ctx)
		if !ok {
			c.t.Fatalf("no response for nonce %d within %s", nonce, timeout)
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			c.t.Fatalf("decode: %v", err)
		}
		switch m := msg.(type) {
		case wire.ClientGetResponse:
			if m.Nonce == nonce {
				return m
			}
		case wire.ClientPutResponse:
			if m.Nonce == nonce {
				return m
			}
		case wire.GetStateResponse:
			if m.Nonce == nonce {
				return m
			}
		}
	}
}

func (c *cluster) get(to model.NodeID, key string) wire.ClientGetResponse {
	c.t.Helper()
	nonce := c.nonce.Add(1)
	c.send(to, wire.ClientGetRequest{Nonce: nonce, Key: key})
	return c.await(nonce, 5*time.Second).(wire.ClientGetResponse)
}

func (c *cluster) put(to model.NodeID, key string, value []byte, ctx model.Context) wire.ClientPutResponse {
	c.t.Helper()
	nonce := c.nonce.Add(1)
	if ctx.Clock == nil {
		ctx = model.NewContext()
	}
	c.send(to, wire.ClientPutRequest{Nonce: nonce, Key: key, Value: value, Context: ctx})
	return c.await(nonce, 5*time.Second).(wire.ClientPutResponse)
}

func (c *cluster) state(to model.NodeID) wire.StateSnapshot {
	c.t.Helper()
	nonce := c.nonce.Add(1)
	c.send(to, wire.GetStateRequest{Nonce: nonce})
	return c.await(nonce, 5*time.Second).(wire.GetStateResponse).State
}

// crash lets the signal land before the test proceeds; a request racing
// ahead of it would still be served.
func (c *cluster) crash(id model.NodeID) {
	c.send(id, wire.Crash{})
	time.Sleep(100 * time.Millisecond)
}

func (c *cluster) recover(id model.NodeID) { c.send(id, wire.Recover{}) }

// waitState polls a node snapshot until pred holds.
func (c *cluster) waitState(id model.NodeID, timeout time.Duration, pred func(wire.StateSnapshot) bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pred(c.state(id)) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func prefOf(ids []model.NodeID, key string) []model.NodeID {
	return ring.New(ids).Walk(key, len(ids))
}

func hasValue(values [][]byte, want string) bool {
	for _, v := range values {
		if bytes.Equal(v, []byte(want)) {
			return true
		}
	}
	return false
}

func TestGetSeededKey(t *testing.T) {
	ids := []model.NodeID{"a", "b", "c"}
	c := newCluster(t, ids, node.Config{N: 3, R: 2, W: 2, Timers: fastTimers()}, map[string][]byte{"foo": []byte("42")})

	for _, id := range ids {
		resp := c.get(id, "foo")
		if !resp.Success {
			t.Fatalf("get via %s failed", id)
		}
		if len(resp.Values) != 1 || !hasValue(resp.Values, "42") {
			t.Fatalf("get via %s: values %q", id, resp.Values)
		}
	}
}

func TestPutThenGetAcrossCoordinators(t *testing.T) {
	ids := []model.NodeID{"a", "b", "c"}
	c := newCluster(t, ids, node.Config{N: 3, R: 2, W: 2, Timers: fastTimers()}, nil)

	putResp := c.put("a", "foo", []byte("49"), model.Context{})
	if !putResp.Success {
		t.Fatal("put failed")
	}

	for _, id := range ids {
		resp := c.get(id, "foo")
		if !resp.Success || len(resp.Values) != 1 || !hasValue(resp.Values, "49") {
			t.Fatalf("get via %s: success=%v values=%q", id, resp.Success, resp.Values)
		}
	}
}

func TestReadModifyWriteSupersedes(t *testing.T) {
	ids := []model.NodeID{"a", "b", "c"}
	c := newCluster(t, ids, node.Config{N: 3, R: 2, W: 2, Timers: fastTimers()}, nil)

	if !c.put("a", "k", []byte("v1"), model.Context{}).Success {
		t.Fatal("first put failed")
	}
	got := c.get("b", "k")
	if !got.Success {
		t.Fatal("get failed")
	}

	// writing through the read context makes the new version descend
	if !c.put("b", "k", []byte("v2"), got.Context).Success {
		t.Fatal("second put failed")
	}
	final := c.get("c", "k")
	if len(final.Values) != 1 || !hasValue(final.Values, "v2") {
		t.Fatalf("expected single v2, got %q", final.Values)
	}
}

func TestConcurrentWritesBecomeSiblings(t *testing.T) {
	ids := []model.NodeID{"a", "b", "c"}
	c := newCluster(t, ids, node.Config{N: 3, R: 2, W: 3, Timers: fastTimers()}, nil)

	// two independent writes with fresh contexts are concurrent by
	// construction: empty clocks compare concurrent
	if !c.put("a", "foo", []byte("x"), model.Context{}).Success {
		t.Fatal("put x failed")
	}
	if !c.put("b", "foo", []byte("y"), model.Context{}).Success {
		t.Fatal("put y failed")
	}

	resp := c.get("c", "foo")
	if !resp.Success {
		t.Fatal("get failed")
	}
	if len(resp.Values) != 2 || !hasValue(resp.Values, "x") || !hasValue(resp.Values, "y") {
		t.Fatalf("expected sibling pair, got %q", resp.Values)
	}
}

// A crashed coordinator with no stand-in (N=1) must fail the client and
// stay marked dead at the node that kept retrying redirects.
func TestCoordinatorFailureFallthrough(t *testing.T) {
	ids := []model.NodeID{"a", "gc"}
	seed := make(map[string][]byte)
	for i := 0; i < 40; i++ {
		seed[fmt.Sprintf("key-%03d", i)] = []byte("v")
	}
	c := newCluster(t, ids, node.Config{N: 1, R: 1, W: 1, Timers: fastTimers()}, seed)

	c.crash("gc")

	pr := ring.New(ids)
	sawRemote := false
	for key := range seed {
		owner := pr.Pref(key, 1)[0]
		resp := c.get("a", key)
		if owner == "a" {
			if !resp.Success {
				t.Fatalf("local key %s should still be served", key)
			}
			continue
		}
		sawRemote = true
		if resp.Success {
			t.Fatalf("key %s owned by crashed gc answered successfully", key)
		}
	}
	if !sawRemote {
		t.Skip("ring placed every key on a; nothing to assert")
	}

	st := c.state("a")
	if st.Alive["gc"] {
		t.Fatal("a should have marked gc dead")
	}
}

func TestPutFailsWithoutWriteQuorum(t *testing.T) {
	ids := []model.NodeID{"a", "b", "c"}
	cfg := node.Config{N: 3, R: 1, W: 3, Timers: fastTimers()}
	cfg.Timers.Client = 800 * time.Millisecond
	c := newCluster(t, ids, cfg, nil)

	c.crash("b")
	c.crash("c")

	resp := c.put("a", "foo", []byte("v"), model.Context{})
	if resp.Success {
		t.Fatal("put should not reach W=3 with two replicas down")
	}
}

// Hinted handoff round trip: a substitute holds the hint while the owner
// is down, then replays it on recovery and drops the hint.
func TestHintedHandoff(t *testing.T) {
	ids := []model.NodeID{"n1", "n2", "n3", "n4"}
	// R=3: the warm-up read stays pending until p2's request timeout fires
	cfg := node.Config{N: 3, R: 3, W: 2, Timers: fastTimers()}
	c := newCluster(t, ids, cfg, nil)

	pref := prefOf(ids, "foo")
	p1, p2, p4 := pref[0], pref[1], pref[3]

	c.crash(p2)

	// a read via p1 forces the request timeout that marks p2 dead there
	if !c.get(p1, "foo").Success {
		t.Fatal("warm-up get failed")
	}
	if !c.waitEvent(p1, 3*time.Second, sawPeerEvent(node.EventMarkDead, p2)) {
		t.Fatalf("%s never marked %s dead", p1, p2)
	}

	if !c.put(p1, "foo", []byte("49"), model.Context{}).Success {
		t.Fatal("put failed")
	}

	// the substitute stored the write hinted for p2
	if !c.waitState(p4, 3*time.Second, func(st wire.StateSnapshot) bool {
		v, ok := st.Store["foo"]
		return ok && v.Ctx.Hint == p2
	}) {
		t.Fatalf("substitute %s never stored the hinted write", p4)
	}

	c.recover(p2)

	if !c.waitEvent(p4, 8*time.Second, sawPeerEvent(node.EventHandoffAck, p2)) {
		t.Fatalf("%s never completed a handoff to %s", p4, p2)
	}
	if !c.waitState(p2, 3*time.Second, func(st wire.StateSnapshot) bool {
		v, ok := st.Store["foo"]
		return ok && len(v.Values) == 1 && bytes.Equal(v.Values[0], []byte("49"))
	}) {
		t.Fatalf("recovered %s never received the handoff", p2)
	}
	if !c.waitState(p4, 3*time.Second, func(st wire.StateSnapshot) bool {
		v, ok := st.Store["foo"]
		return ok && v.Ctx.Hint == model.NoNode
	}) {
		t.Fatalf("%s kept its hint after acknowledged handoff", p4)
	}
}

// Replicas converge after a transient crash even when the hint carrier
// dies too: anti-entropy from the surviving naturals fills the gap.
func TestAntiEntropyAfterTransientCrash(t *testing.T) {
	ids := []model.NodeID{"a", "b", "c", "d"}
	// R=3: the warm-up read stays pending until p2's request timeout fires
	cfg := node.Config{N: 3, R: 3, W: 3, Timers: fastTimers()}
	c := newCluster(t, ids, cfg, map[string][]byte{"foo": []byte("42")})

	pref := prefOf(ids, "foo")
	p1, p2, p4 := pref[0], pref[1], pref[3]

	c.crash(p2)
	if !c.get(p1, "foo").Success {
		t.Fatal("warm-up get failed")
	}
	if !c.waitEvent(p1, 3*time.Second, sawPeerEvent(node.EventMarkDead, p2)) {
		t.Fatalf("%s never marked %s dead", p1, p2)
	}

	if !c.put(p1, "foo", []byte("49"), model.Context{}).Success {
		t.Fatal("put failed")
	}

	// the hint carrier dies before any handoff can run
	c.crash(p4)
	c.recover(p2)

	if !c.waitState(p2, 10*time.Second, func(st wire.StateSnapshot) bool {
		v, ok := st.Store["foo"]
		return ok && len(v.Values) == 1 && bytes.Equal(v.Values[0], []byte("49"))
	}) {
		t.Fatalf("%s never converged to the new value via anti-entropy", p2)
	}
}

// An unrecognised frame is a programmer error: the node must stop, not
// limp on.
func TestUnknownMessageIsFatal(t *testing.T) {
	ids := []model.NodeID{"a", "b"}
	c := newCluster(t, ids, node.Config{N: 2, R: 1, W: 1, Timers: fastTimers()}, nil)

	if err := c.client.Send("a", []byte{0xEE, 0, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.nodes["a"].Err() != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("node accepted an unknown message")
}
