// Package node implements the per-replica state machine: request
// routing, quorum accounting, retries, hinted handoff, liveness probing
// and Merkle anti-entropy, all driven from a single message loop.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/ring"
	"github.com/YinWang3026/dynago/pkg/store"
	"github.com/YinWang3026/dynago/pkg/transport"
	"github.com/YinWang3026/dynago/pkg/wire"
)

// Timers configures every deadline the state machine arms.
type Timers struct {
	Client      time.Duration
	Redirect    time.Duration
	Request     time.Duration
	HealthCheck time.Duration
	MerkleSync  time.Duration
}

// Config carries the quorum parameters. 1 <= R,W <= N is the caller's
// contract.
type Config struct {
	N, R, W int
	Timers  Timers
}

// item is one unit of work for the run loop: either an inbound frame or
// a timer firing. Timer items carry the epoch they were armed in so
// firings from before a crash are discarded.
type item struct {
	from  model.NodeID
	msg   wire.Message
	tm    any
	epoch uint64
}

// Node is single-owner state: every field below is touched only from the
// run loop.
type Node struct {
	id   model.NodeID
	cfg  Config
	ring *ring.Ring
	ep   transport.Endpoint

	st    *store.Store
	peers []model.NodeID
	alive map[model.NodeID]bool

	gets      map[uint64]*getTracker
	puts      map[uint64]*putTracker
	redirects map[uint64]*redirectTracker
	handoffs  map[model.NodeID]map[uint64]map[string]model.Context

	crashed bool
	epoch   uint64
	seed    map[string][]byte

	inbox  chan item
	rng    *rand.Rand
	Events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu    sync.Mutex
	fatalErr error
}

// Option configures a Node in New.
type Option func(*Node)

func WithEvents(ch chan Event) Option {
	return func(n *Node) { n.Events = ch }
}

// WithSeed pins the nonce RNG for reproducible runs.
func WithSeed(seed int64) Option {
	return func(n *Node) { n.rng = rand.New(rand.NewSource(seed)) }
}

// WithInitialData seeds the store. Only keys this node owns (id within
// pref(key, n)) are kept; each is stored under an empty clock.
func WithInitialData(data map[string][]byte) Option {
	return func(n *Node) { n.seed = data }
}

// New builds a node. all lists every cluster member including id; every
// peer starts marked alive.
func New(id model.NodeID, ep transport.Endpoint, all []model.NodeID, cfg Config, opts ...Option) *Node {
	n := &Node{
		id:   id,
		cfg:  cfg,
		ring: ring.New(all),
		ep:   ep,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, peer := range all {
		if peer != id {
			n.peers = append(n.peers, peer)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.inbox = make(chan item, 1024)
	n.reset()
	n.seedStore()
	return n
}

func (n *Node) ID() model.NodeID { return n.id }

// reset rebuilds the volatile state: empty store, every peer presumed
// alive, no pending trackers. Used at init and on recovery.
func (n *Node) reset() {
	n.st = store.New()
	n.alive = make(map[model.NodeID]bool, len(n.peers))
	for _, p := range n.peers {
		n.alive[p] = true
	}
	n.gets = make(map[uint64]*getTracker)
	n.puts = make(map[uint64]*putTracker)
	n.redirects = make(map[uint64]*redirectTracker)
	n.handoffs = make(map[model.NodeID]map[uint64]map[string]model.Context)
}

func (n *Node) seedStore() {
	for key, val := range n.seed {
		if !n.ownsKey(key) {
			continue
		}
		n.st.Put(key, model.NewVersioned([][]byte{val}, model.NewContext()))
	}
}

func (n *Node) Start() {
	n.wg.Add(2)
	go n.recvLoop()
	go n.runLoop()
	n.armPeriodic()
}

func (n *Node) Stop() {
	n.cancel()
	n.ep.Close()
	n.wg.Wait()
}

// Err reports the fatal error that halted the node, if any.
func (n *Node) Err() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	return n.fatalErr
}

func (n *Node) recvLoop() {
	defer n.wg.Done()
	for {
		from, frame, ok := n.ep.RecvFrom(n.ctx)
		if !ok {
			return
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			// an unrecognised frame is a programmer error, not noise
			n.fail(fmt.Errorf("inbound from %s: %w", from, err))
			return
		}
		select {
		case n.inbox <- item{from: model.NodeID(from), msg: msg}:
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) runLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case it := <-n.inbox:
			if err := n.handle(it); err != nil {
				n.fail(err)
				return
			}
		}
	}
}

func (n *Node) fail(err error) {
	n.errMu.Lock()
	if n.fatalErr == nil {
		n.fatalErr = err
	}
	n.errMu.Unlock()
	slog.Error("node_fatal", "node", n.id, "err", err)
	n.emit(EventFatal, map[string]any{"err": err.Error()})
	n.cancel()
}

// send encodes and ships one message. Best effort; the retry machinery
// lives above this.
func (n *Node) send(to model.NodeID, msg wire.Message) {
	frame, err := wire.Encode(msg)
	if err != nil {
		slog.Warn("encode_err", "node", n.id, "err", err)
		return
	}
	if err := n.ep.Send(transport.Addr(to), frame); err != nil {
		slog.Debug("send_err", "node", n.id, "to", to, "err", err)
	}
	countMessage(n.id, "out", msg.Kind())
}

// armTimer schedules a tagged one-shot that re-enters the run loop.
func (n *Node) armTimer(d time.Duration, tm any) {
	epoch := n.epoch
	time.AfterFunc(d, func() {
		select {
		case n.inbox <- item{from: n.id, tm: tm, epoch: epoch}:
		case <-n.ctx.Done():
		}
	})
}

func (n *Node) armPeriodic() {
	n.armTimer(n.cfg.Timers.HealthCheck, healthCheckTick{})
	n.armTimer(n.cfg.Timers.MerkleSync, merkleSyncTick{})
}

func (n *Node) newNonce() uint64 {
	return uint64(n.rng.Int63n(1_000_000_000)) + 1
}

func (n *Node) isPeer(id model.NodeID) bool {
	_, ok := n.alive[id]
	return ok
}

func (n *Node) ownsKey(key string) bool {
	for _, id := range n.ring.Pref(key, n.cfg.N) {
		if id == n.id {
			return true
		}
	}
	return false
}
