package transport

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// ChaosConfig models an unreliable link.
type ChaosConfig struct {
	// Probabilities [0..1]
	Loss    float64 // drop frame
	Dup     float64 // duplicate once
	Reorder float64 // add extra delay to cause reordering

	// Latency model
	BaseDelay time.Duration // fixed base latency
	Jitter    time.Duration // +/- jitter uniformly
	MaxQueue  int           // cap inbound queue

	// Link toggle
	Up bool

	// Seed (optional). If 0, uses time.Now().UnixNano()
	Seed int64
}

// ChaosEndpoint wraps an Endpoint so both directions pass through the
// chaos model.
type ChaosEndpoint struct {
	under Endpoint

	in     chan envelope
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	up atomic.Bool

	cfgMu sync.RWMutex
	cfg   ChaosConfig

	rngMu sync.Mutex
	rng   *rand.Rand
}

func WrapChaos(under Endpoint, cfg ChaosConfig) *ChaosEndpoint {
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = 1024
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	c := &ChaosEndpoint{
		under: under,
		in:    make(chan envelope, cfg.MaxQueue),
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
	c.up.Store(cfg.Up)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.pumpRecv()
	return c
}

func (c *ChaosEndpoint) Close() {
	c.cancel()
	c.wg.Wait()
	c.under.Close()
}

func (c *ChaosEndpoint) Addr() Addr { return c.under.Addr() }

func (c *ChaosEndpoint) RecvFrom(ctx context.Context) (Addr, []byte, bool) {
	select {
	case <-ctx.Done():
		return "", nil, false
	case <-c.ctx.Done():
		return "", nil, false
	case env := <-c.in:
		return env.from, env.data, true
	}
}

func (c *ChaosEndpoint) Send(to Addr, frame []byte) error {
	if !c.up.Load() {
		// link down behaves like an I/O error
		return context.Canceled
	}
	cfg := c.getCfg()

	if c.roll() < cfg.Loss {
		return nil
	}

	deliver := func(cp []byte, extra time.Duration) {
		delay := c.delayWithJitter(cfg) + extra
		if delay <= 0 {
			_ = c.under.Send(to, cp)
			return
		}
		time.AfterFunc(delay, func() { _ = c.under.Send(to, cp) })
	}

	deliver(clone(frame), 0)
	if c.roll() < cfg.Dup {
		deliver(clone(frame), c.delayWithJitter(cfg))
	}
	return nil
}

func (c *ChaosEndpoint) pumpRecv() {
	defer c.wg.Done()
	for {
		from, frame, ok := c.under.RecvFrom(c.ctx)
		if !ok {
			return
		}
		cfg := c.getCfg()
		if c.roll() < cfg.Loss || !c.up.Load() {
			continue
		}

		extra := time.Duration(0)
		if c.roll() < cfg.Reorder {
			extra = c.delayWithJitter(cfg)
		}

		delay := c.delayWithJitter(cfg) + extra
		env := envelope{from: from, data: clone(frame)}
		if delay <= 0 {
			select {
			case c.in <- env:
			default:
			}
			continue
		}
		time.AfterFunc(delay, func() {
			select {
			case c.in <- env:
			default:
			}
		})
	}
}

// --- controls ---

func (c *ChaosEndpoint) SetUp(up bool)     { c.up.Store(up) }
func (c *ChaosEndpoint) SetLoss(p float64) { c.cfgMu.Lock(); c.cfg.Loss = clamp01(p); c.cfgMu.Unlock() }
func (c *ChaosEndpoint) SetDup(p float64)  { c.cfgMu.Lock(); c.cfg.Dup = clamp01(p); c.cfgMu.Unlock() }
func (c *ChaosEndpoint) SetReorder(p float64) {
	c.cfgMu.Lock()
	c.cfg.Reorder = clamp01(p)
	c.cfgMu.Unlock()
}
func (c *ChaosEndpoint) SetBaseDelay(d time.Duration) {
	c.cfgMu.Lock()
	c.cfg.BaseDelay = d
	c.cfgMu.Unlock()
}
func (c *ChaosEndpoint) SetJitter(d time.Duration) {
	c.cfgMu.Lock()
	c.cfg.Jitter = d
	c.cfgMu.Unlock()
}

func (c *ChaosEndpoint) GetConfig() ChaosConfig {
	cfg := c.getCfg()
	cfg.Up = c.up.Load()
	return cfg
}

func (c *ChaosEndpoint) getCfg() ChaosConfig {
	c.cfgMu.RLock()
	defer c.cfgMu.RUnlock()
	return c.cfg
}

func (c *ChaosEndpoint) delayWithJitter(cfg ChaosConfig) time.Duration {
	if cfg.Jitter <= 0 {
		return cfg.BaseDelay
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	j := time.Duration(c.rng.Int63n(int64(cfg.Jitter)*2)) - cfg.Jitter
	return cfg.BaseDelay + j
}

func (c *ChaosEndpoint) roll() float64 {
	c.rngMu.Lock()
	x := c.rng.Float64()
	c.rngMu.Unlock()
	return x
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
