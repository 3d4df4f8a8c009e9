// Package connectivity derives an online/offline signal from periodic
// health probes against the remote service and fires a callback on each
// offline-to-online transition. The callback is the sole sync trigger tied
// to connectivity; probes themselves never touch journal data.
package connectivity

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
)

// Pinger is the reachability check a Watcher drives.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher polls the remote at a fixed interval and tracks the connectivity
// state. A transition to online is debounced and re-confirmed before the
// callback fires, so a single lucky packet on a flapping link does not
// trigger a sync cycle.
type Watcher struct {
	pinger   Pinger
	interval time.Duration
	debounce time.Duration
	onOnline func(ctx context.Context)

	backoffBase time.Duration
	online      atomic.Bool
}

// NewWatcher creates a Watcher. onOnline may be nil; it is invoked once per
// confirmed offline-to-online transition, never concurrently with itself.
func NewWatcher(pinger Pinger, interval, debounce time.Duration, onOnline func(ctx context.Context)) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Watcher{
		pinger:      pinger,
		interval:    interval,
		debounce:    debounce,
		onOnline:    onOnline,
		backoffBase: 500 * time.Millisecond,
	}
}

// Online reports the last confirmed connectivity state.
func (w *Watcher) Online() bool {
	return w.online.Load()
}

// Run probes until ctx is cancelled. The first probe happens immediately so
// a process started with connectivity syncs without waiting a full interval.
func (w *Watcher) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "connectivity",
		"worker", "probe",
		"interval", w.interval.String(),
		"debounce", w.debounce.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.step(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "connectivity",
				"worker", "probe",
			)
			return
		case <-ticker.C:
			w.step(ctx)
		}
	}
}

// step runs one probe and applies the resulting state transition.
func (w *Watcher) step(ctx context.Context) {
	reachable := w.probe(ctx) == nil

	switch {
	case reachable && !w.online.Load():
		w.confirmOnline(ctx)
	case !reachable && w.online.Load():
		w.online.Store(false)
		slog.Warn("connectivity lost", "component", "connectivity")
	}
}

// probe pings with short exponential backoff so one dropped packet is not
// read as an outage.
func (w *Watcher) probe(ctx context.Context) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(w.backoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := w.pinger.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// confirmOnline holds the transition through the debounce window and
// re-probes before committing. The flag flips and the callback fires only
// when the link is still up on the second look.
func (w *Watcher) confirmOnline(ctx context.Context) {
	if w.debounce > 0 {
		timer := time.NewTimer(w.debounce)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if w.probe(ctx) != nil {
			slog.Debug("online transition discarded, link flapped during debounce",
				"component", "connectivity",
			)
			return
		}
	}

	w.online.Store(true)
	slog.Info("connectivity restored", "component", "connectivity")

	if w.onOnline != nil {
		w.onOnline(ctx)
	}
}
