package connectivity

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedPinger returns errors from a shared flag so tests can flip
// reachability mid-run.
type scriptedPinger struct {
	down  atomic.Bool
	pings atomic.Int64
}

func (p *scriptedPinger) Ping(ctx context.Context) error {
	p.pings.Add(1)
	if p.down.Load() {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func TestWatcher_FiresOnceOnTransition(t *testing.T) {
	pinger := &scriptedPinger{}
	pinger.down.Store(true)

	var fired atomic.Int64
	w := NewWatcher(pinger, 10*time.Millisecond, 0, func(ctx context.Context) {
		fired.Add(1)
	})

	w.backoffBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Let a few offline probes pass, then restore the link.
	time.Sleep(50 * time.Millisecond)
	if w.Online() {
		t.Fatal("watcher should be offline while pings fail")
	}
	if fired.Load() != 0 {
		t.Fatal("callback must not fire while offline")
	}

	pinger.down.Store(false)

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("callback fired %d times, want 1", fired.Load())
	}
	if !w.Online() {
		t.Error("watcher should report online after transition")
	}

	// Staying online must not re-fire.
	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("callback re-fired while staying online: %d", fired.Load())
	}
}

func TestWatcher_RefiresAfterEachOutage(t *testing.T) {
	pinger := &scriptedPinger{}

	var fired atomic.Int64
	w := NewWatcher(pinger, 10*time.Millisecond, 0, func(ctx context.Context) {
		fired.Add(1)
	})

	w.backoffBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor := func(want int64) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for fired.Load() < want && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if fired.Load() != want {
			t.Fatalf("callback fired %d times, want %d", fired.Load(), want)
		}
	}

	waitFor(1)

	pinger.down.Store(true)
	deadline := time.Now().Add(2 * time.Second)
	for w.Online() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Online() {
		t.Fatal("watcher should go offline when pings fail")
	}

	pinger.down.Store(false)
	waitFor(2)
}

func TestWatcher_DebounceDiscardsFlap(t *testing.T) {
	pinger := &scriptedPinger{}
	pinger.down.Store(true)

	var fired atomic.Int64
	w := NewWatcher(pinger, 10*time.Millisecond, 30*time.Millisecond, func(ctx context.Context) {
		fired.Add(1)
	})

	w.backoffBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(30 * time.Millisecond)

	// Link comes up just long enough to pass one probe, then drops again
	// inside the debounce window.
	pinger.down.Store(false)
	time.Sleep(15 * time.Millisecond)
	pinger.down.Store(true)

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("flap inside debounce window fired the callback %d times", fired.Load())
	}
	if w.Online() {
		t.Error("watcher must stay offline after a discarded flap")
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	pinger := &scriptedPinger{}
	w := NewWatcher(pinger, 10*time.Millisecond, 0, nil)
	w.backoffBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
