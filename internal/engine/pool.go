package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gambitlabs/insights/internal/metrics"
)

// PoolConfig configures the engine pool.
type PoolConfig struct {
	Handle         HandleConfig
	Logger         zerolog.Logger
	MaxSize        int           // max live engine processes (default 4)
	IdleTTL        time.Duration // idle handles older than this are retired (default 5m)
	AcquireTimeout time.Duration // bounded wait before ErrPoolExhausted (default 30s)
}

// Pool bounds the number of live engine processes and hands out exclusive
// leases. Handles are recycled LIFO so a warm engine is preferred; idle
// handles past their TTL are destroyed to bound hash-table memory growth.
type Pool struct {
	cfg PoolConfig
	log zerolog.Logger

	slots chan struct{} // lease tokens, capacity = MaxSize

	mu     sync.Mutex
	idle   []*Handle
	live   int
	nextID int
	closed bool

	// overridable for tests
	spawn func(id int) (*Handle, error)
}

// NewPool creates an engine pool. No processes are spawned until the first
// Acquire.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Handle.Path == "" {
		return nil, fmt.Errorf("engine path required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 4
	}
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	p := &Pool{
		cfg:   cfg,
		log:   cfg.Logger,
		slots: make(chan struct{}, cfg.MaxSize),
	}
	p.spawn = func(id int) (*Handle, error) {
		return newHandle(id, cfg.Handle)
	}
	return p, nil
}

// Acquire leases a handle, blocking until one is free or the bounded wait
// elapses. Callers must Release the handle exactly once.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	wait := time.NewTimer(p.cfg.AcquireTimeout)
	defer wait.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wait.C:
		return nil, fmt.Errorf("%w: no handle free after %s", ErrPoolExhausted, p.cfg.AcquireTimeout)
	}

	h, err := p.checkout()
	if err != nil {
		<-p.slots
		return nil, err
	}
	return h, nil
}

// checkout pops a healthy idle handle or spawns a fresh one. The caller
// already holds a lease token.
func (p *Pool) checkout() (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// Prefer the most recently used idle handle; retire expired ones.
	for len(p.idle) > 0 {
		h := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if h.idleExpired(p.cfg.IdleTTL) {
			p.live--
			p.mu.Unlock()
			p.log.Debug().Int("handle_id", h.id).Msg("retiring idle engine past TTL")
			h.Close()
			metrics.EnginesLive.Dec()
			p.mu.Lock()
			continue
		}
		p.mu.Unlock()
		return h, nil
	}

	id := p.nextID
	p.nextID++
	p.live++
	p.mu.Unlock()

	h, err := p.spawn(id)
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		p.log.Warn().Err(err).Msg("engine spawn failed")
		return nil, fmt.Errorf("%w: spawn: %v", ErrPoolExhausted, err)
	}
	metrics.EngineSpawns.Inc()
	metrics.EnginesLive.Inc()
	p.log.Info().Int("handle_id", id).Msg("spawned engine")
	return h, nil
}

// Release returns a leased handle. Healthy handles rejoin the idle set;
// faulted or TTL-expired ones are destroyed.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	p.mu.Lock()
	destroy := p.closed || h.faulted || h.idleExpired(p.cfg.IdleTTL)
	if destroy {
		p.live--
	} else {
		p.idle = append(p.idle, h)
	}
	p.mu.Unlock()

	if destroy {
		if h.faulted {
			metrics.EngineFaults.Inc()
			p.log.Warn().Int("handle_id", h.id).Msg("destroying faulted engine")
		}
		h.Close()
		metrics.EnginesLive.Dec()
	}

	<-p.slots
}

// Stats reports current pool occupancy.
type Stats struct {
	Live int `json:"live"`
	Idle int `json:"idle"`
	Max  int `json:"max"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Live: p.live, Idle: len(p.idle), Max: p.cfg.MaxSize}
}

// Close destroys all idle handles and refuses further leases. Handles still
// leased are destroyed when released.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.live -= len(idle)
	p.mu.Unlock()

	for _, h := range idle {
		h.Close()
		metrics.EnginesLive.Dec()
	}
	p.log.Info().Int("destroyed", len(idle)).Msg("engine pool closed")
}
