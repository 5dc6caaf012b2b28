package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testPool builds a pool whose spawner creates process-less handles.
func testPool(t *testing.T, max int) *Pool {
	t.Helper()
	p, err := NewPool(PoolConfig{
		Handle:         HandleConfig{Path: "/bin/false"},
		Logger:         zerolog.Nop(),
		MaxSize:        max,
		AcquireTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	p.spawn = func(id int) (*Handle, error) {
		return &Handle{id: id, createdAt: time.Now(), lastUsed: time.Now()}, nil
	}
	return p
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := testPool(t, 2)
	defer p.Close()
	ctx := context.Background()

	h1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	h2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if h1 == h2 {
		t.Fatal("pool handed out the same handle twice")
	}

	// Third acquirer suspends until a release.
	got := make(chan *Handle, 1)
	go func() {
		h, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("acquire 3: %v", err)
		}
		got <- h
	}()

	select {
	case <-got:
		t.Fatal("third acquire should have blocked at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(h1)
	select {
	case h3 := <-got:
		p.Release(h3)
	case <-time.After(time.Second):
		t.Fatal("third acquire never unblocked after release")
	}
	p.Release(h2)
}

func TestPoolRecyclesHandles(t *testing.T) {
	p := testPool(t, 2)
	defer p.Close()
	ctx := context.Background()

	h1, _ := p.Acquire(ctx)
	id := h1.id
	p.Release(h1)

	h2, _ := p.Acquire(ctx)
	if h2.id != id {
		t.Errorf("expected recycled handle %d, got %d", id, h2.id)
	}
	p.Release(h2)

	st := p.Stats()
	if st.Live != 1 || st.Idle != 1 {
		t.Errorf("stats = %+v, want live=1 idle=1", st)
	}
}

func TestPoolDestroysFaultedHandles(t *testing.T) {
	p := testPool(t, 1)
	defer p.Close()
	ctx := context.Background()

	h1, _ := p.Acquire(ctx)
	h1.Fault()
	p.Release(h1)

	if st := p.Stats(); st.Live != 0 || st.Idle != 0 {
		t.Errorf("stats after faulted release = %+v, want empty", st)
	}

	h2, _ := p.Acquire(ctx)
	if h2.id == h1.id {
		t.Error("faulted handle was recycled")
	}
	p.Release(h2)
}

func TestPoolRetiresExpiredIdleHandles(t *testing.T) {
	p := testPool(t, 2)
	p.cfg.IdleTTL = 10 * time.Millisecond
	defer p.Close()
	ctx := context.Background()

	h1, _ := p.Acquire(ctx)
	p.Release(h1)

	time.Sleep(20 * time.Millisecond)

	h2, _ := p.Acquire(ctx)
	if h2.id == h1.id {
		t.Error("expired idle handle was recycled instead of retired")
	}
	p.Release(h2)
}

func TestPoolSpawnFailureIsRetryable(t *testing.T) {
	p := testPool(t, 1)
	defer p.Close()
	p.spawn = func(id int) (*Handle, error) {
		return nil, errors.New("fork failed")
	}

	_, err := p.Acquire(context.Background())
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("spawn failure: got %v, want ErrPoolExhausted", err)
	}
	if !IsTransient(err) {
		t.Error("pool exhaustion should be transient")
	}

	// The failed acquire must not leak its lease token.
	p.spawn = func(id int) (*Handle, error) {
		return &Handle{id: id, createdAt: time.Now(), lastUsed: time.Now()}, nil
	}
	h, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire after spawn recovery: %v", err)
	}
	p.Release(h)
}

func TestPoolAcquireBoundedWait(t *testing.T) {
	p := testPool(t, 1)
	defer p.Close()
	ctx := context.Background()

	h, _ := p.Acquire(ctx)
	defer p.Release(h)

	start := time.Now()
	_, err := p.Acquire(ctx)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("got %v, want ErrPoolExhausted", err)
	}
	if time.Since(start) < 400*time.Millisecond {
		t.Error("acquire returned before the bounded wait elapsed")
	}
}

func TestPoolClosed(t *testing.T) {
	p := testPool(t, 1)
	p.Close()
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("got %v, want ErrPoolClosed", err)
	}
}
