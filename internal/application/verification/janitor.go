package verification

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Janitor periodically reclaims expired verification requests. It is the
// only actor that mutates expired entries unconditionally; everything
// else treats expiry as invisible-on-read.
type Janitor struct {
	store    *Store
	interval time.Duration
	cancel   context.CancelFunc
	running  atomic.Bool
}

func NewJanitor(store *Store, interval time.Duration) *Janitor {
	return &Janitor{store: store, interval: interval}
}

// Start launches the sweep loop. A failing cycle is logged and never
// stops subsequent cycles.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)
	j.running.Store(true)
	go func() {
		defer j.running.Store(false)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.sweep()
			}
		}
	}()
}

func (j *Janitor) sweep() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("janitor sweep failed", "panic", r)
		}
	}()
	if removed := j.store.SweepExpired(); removed > 0 {
		slog.Info("reclaimed expired verification requests", "count", removed)
	}
}

// Stop cancels the sweep loop. Idempotent.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
}

// Running reports whether the sweep loop is active, for status reporting.
func (j *Janitor) Running() bool {
	return j.running.Load()
}
