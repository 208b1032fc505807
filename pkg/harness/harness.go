// Package harness runs a measured workload against a simulated cluster
// and reports the three properties the system is judged by: availability,
// inconsistency and stale reads.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/YinWang3026/dynago/pkg/model"
	"github.com/YinWang3026/dynago/pkg/node"
	"github.com/YinWang3026/dynago/pkg/transport"
	"github.com/YinWang3026/dynago/pkg/vclock"
	"github.com/YinWang3026/dynago/pkg/wire"
)

// ErrDuplicateNonce signals a correlator collision, which the harness
// treats as a fatal invariant violation rather than a measurement.
var ErrDuplicateNonce = errors.New("harness: duplicate nonce")

const clientAddr transport.Addr = "test-client"

// Params describes one measured run.
type Params struct {
	Nodes   int
	N, R, W int
	Timers  node.Timers

	// Chaos wraps every node's endpoint in both directions. The client's
	// own endpoint is unwrapped, but its frames to and from a node still
	// pass through that node's chaos wrapper, so client traffic is fuzzed
	// as well.
	Chaos transport.ChaosConfig

	Operations int
	Keys       int
	PutRatio   float64 // fraction of operations that write
	Seed       int64

	// Every CrashInterval operations one random node crashes and
	// recovers DownFor later. Zero disables the schedule.
	CrashInterval int
	DownFor       time.Duration

	InitialData map[string][]byte

	// Events, when set, receives every node's event stream.
	Events chan node.Event
}

// Result aggregates the run.
type Result struct {
	RunID        string
	Operations   int
	Availability float64
	Inconsistent float64
	StaleReads   float64
}

type expected struct {
	value []byte
	ctx   model.Context
}

// Measure drives Params.Operations client requests through the cluster
// and scores the responses.
func Measure(p Params) (Result, error) {
	if p.Nodes < 1 || p.Operations < 1 {
		return Result{}, errors.New("harness: need at least one node and one operation")
	}
	if p.Keys < 1 {
		p.Keys = 16
	}
	rng := rand.New(rand.NewSource(p.Seed))
	runID := uuid.NewString()

	sw := transport.NewSwitch()
	ids := make([]model.NodeID, p.Nodes)
	nodes := make([]*node.Node, p.Nodes)
	for i := range ids {
		ids[i] = model.NodeID(fmt.Sprintf("n%02d", i))
	}
	for i, id := range ids {
		ep, err := sw.Listen(transport.Addr(id))
		if err != nil {
			return Result{}, err
		}
		cfg := p.Chaos
		cfg.Up = true
		if cfg.Seed == 0 {
			cfg.Seed = p.Seed + int64(i) + 1
		}
		cep := transport.WrapChaos(ep, cfg)
		opts := []node.Option{node.WithSeed(p.Seed + int64(i) + 1)}
		if p.InitialData != nil {
			opts = append(opts, node.WithInitialData(p.InitialData))
		}
		if p.Events != nil {
			opts = append(opts, node.WithEvents(p.Events))
		}
		n := node.New(id, cep, ids, node.Config{N: p.N, R: p.R, W: p.W, Timers: p.Timers}, opts...)
		nodes[i] = n
		n.Start()
	}
	defer func() {
		for _, n := range nodes {
			n.Stop()
		}
	}()

	client, err := sw.Listen(clientAddr)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	nonces := newNonceRegistry(rng)

	deadline := p.Timers.Client + 500*time.Millisecond
	lastAck := make(map[string]expected)
	lastCtx := make(map[string]model.Context)

	var attempted, succeeded, inconsistent, stale, successfulGets int

	for op := 0; op < p.Operations; op++ {
		if p.CrashInterval > 0 && op > 0 && op%p.CrashInterval == 0 {
			victim := ids[rng.Intn(len(ids))]
			sendTo(client, victim, wire.Crash{})
			time.AfterFunc(p.DownFor, func() { sendTo(client, victim, wire.Recover{}) })
			slog.Info("harness_crash", "run", runID, "node", victim)
		}

		key := fmt.Sprintf("key-%03d", rng.Intn(p.Keys))
		target := ids[rng.Intn(len(ids))]
		nonce, err := nonces.next()
		if err != nil {
			return Result{}, err
		}

		attempted++
		if rng.Float64() < p.PutRatio {
			value := []byte(fmt.Sprintf("v-%d", op))
			ctx := lastCtx[key]
			if ctx.Clock == nil {
				ctx = model.NewContext()
			}
			sendTo(client, target, wire.ClientPutRequest{Nonce: nonce, Key: key, Value: value, Context: ctx})
			resp, ok := awaitPut(client, nonce, deadline)
			if !ok || !resp.Success {
				continue
			}
			succeeded++
			lastAck[key] = expected{value: value, ctx: resp.Context}
			lastCtx[key] = resp.Context
			continue
		}

		sendTo(client, target, wire.ClientGetRequest{Nonce: nonce, Key: key})
		resp, ok := awaitGet(client, nonce, deadline)
		if !ok || !resp.Success {
			continue
		}
		succeeded++
		successfulGets++
		lastCtx[key] = resp.Context
		if len(resp.Values) > 1 {
			inconsistent++
		}
		if want, ok := lastAck[key]; ok && isStale(resp, want) {
			stale++
		}
	}

	res := Result{
		RunID:        runID,
		Operations:   attempted,
		Availability: ratio(succeeded, attempted),
		Inconsistent: ratio(inconsistent, successfulGets),
		StaleReads:   ratio(stale, successfulGets),
	}
	slog.Info("harness_done", "run", runID,
		"availability", res.Availability,
		"inconsistent", res.Inconsistent,
		"stale", res.StaleReads)
	return res, nil
}

// isStale: the read does not contain the latest acknowledged write and
// its clock is strictly before that write's clock.
func isStale(resp wire.ClientGetResponse, want expected) bool {
	for _, v := range resp.Values {
		if string(v) == string(want.value) {
			return false
		}
	}
	return vclock.Compare(resp.Context.Clock, want.ctx.Clock) == vclock.Before
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func sendTo(ep transport.Endpoint, to model.NodeID, msg wire.Message) {
	frame, err := wire.Encode(msg)
	if err != nil {
		slog.Warn("harness_encode_err", "err", err)
		return
	}
	_ = ep.Send(transport.Addr(to), frame)
}

func awaitGet(ep transport.Endpoint, nonce uint64, timeout time.Duration) (wire.ClientGetResponse, bool) {
	msg, ok := await(ep, nonce, timeout, wire.MT_CLIENT_GET_RESP)
	if !ok {
		return wire.ClientGetResponse{}, false
	}
	return msg.(wire.ClientGetResponse), true
}

func awaitPut(ep transport.Endpoint, nonce uint64, timeout time.Duration) (wire.ClientPutResponse, bool) {
	msg, ok := await(ep, nonce, timeout, wire.MT_CLIENT_PUT_RESP)
	if !ok {
		return wire.ClientPutResponse{}, false
	}
	return msg.(wire.ClientPutResponse), true
}

// await drains the client inbox until the matching response arrives;
// late responses to earlier nonces are discarded on the way.
func await(ep transport.Endpoint, nonce uint64, timeout time.Duration, kind byte) (wire.Message, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for {
		_, frame, ok := ep.RecvFrom(ctx)
		if !ok {
			return nil, false
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			slog.Warn("harness_decode_err", "err", err)
			continue
		}
		if msg.Kind() != kind {
			continue
		}
		switch m := msg.(type) {
		case wire.ClientGetResponse:
			if m.Nonce == nonce {
				return m, true
			}
		case wire.ClientPutResponse:
			if m.Nonce == nonce {
				return m, true
			}
		}
	}
}
