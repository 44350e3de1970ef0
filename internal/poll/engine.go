// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package poll drives the widget's refresh paths against the chat service.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultInterval is the polling cadence. The service is designed for
// short-interval polling; failures are retried on the next tick without
// backoff.
const DefaultInterval = 2 * time.Second

// =============================================================================
// ENGINE
// =============================================================================

// SyncFunc performs one fetch-and-merge cycle against the chat service.
type SyncFunc func(ctx context.Context) error

// GuardFunc reports whether polling should currently run
// (widget open OR manual reply mode, and a session identity exists).
type GuardFunc func() bool

// Engine owns the polling loop lifecycle and the conditional sync path.
type Engine struct {
	interval time.Duration
	syncFn   SyncFunc
	guard    GuardFunc
	log      zerolog.Logger

	// limiter caps the total fetch frequency across both refresh paths so
	// overlapping conditional syncs and poll ticks cannot storm the
	// service. Skipped fetches are safe: the merge is idempotent and the
	// next tick catches up.
	limiter *rate.Limiter

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates an engine. interval <= 0 selects DefaultInterval.
func New(interval time.Duration, syncFn SyncFunc, guard GuardFunc, log zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		interval: interval,
		syncFn:   syncFn,
		guard:    guard,
		log:      log,
		limiter:  rate.NewLimiter(rate.Every(interval/2), 2),
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start launches the polling loop. Starting a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		return
	}
	stop := make(chan struct{})
	e.stop = stop
	e.wg.Add(1)
	go e.run(stop)
}

// Stop tears the polling loop down and waits for it to exit. Stop is
// idempotent and safe to call on an engine that never started.
func (e *Engine) Stop() {
	e.mu.Lock()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	e.wg.Wait()
}

// Update re-evaluates the guard and starts or stops the loop to match.
// Call it whenever one of the guard's inputs (open state, mode) changes.
func (e *Engine) Update() {
	if e.guard() {
		e.Start()
	} else {
		e.Stop()
	}
}

// Running reports whether the polling loop is currently active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop != nil
}

// SetInterval changes the polling cadence. interval <= 0 selects
// DefaultInterval. A running loop is restarted so the new cadence takes
// effect immediately. Must not be called from the sync function itself.
func (e *Engine) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	e.mu.Lock()
	if e.interval == interval {
		e.mu.Unlock()
		return
	}
	e.interval = interval
	e.limiter.SetLimit(rate.Every(interval / 2))
	running := e.stop != nil
	e.mu.Unlock()

	if running {
		e.Stop()
		e.Start()
	}
}

// =============================================================================
// REFRESH PATHS
// =============================================================================

// SyncNow runs the conditional sync path once, subject to the fetch
// limiter. It is safe to call concurrently with the polling loop.
func (e *Engine) SyncNow(ctx context.Context) {
	if !e.limiter.Allow() {
		return
	}
	if err := e.syncFn(ctx); err != nil {
		// Best-effort background refresh: log and move on.
		e.log.Debug().Err(err).Msg("conditional sync failed")
	}
}

// run is the polling loop. It exits when stopped or when the guard flips
// false, clearing its own handle in the latter case so Start can relaunch.
func (e *Engine) run(stop chan struct{}) {
	defer e.wg.Done()

	e.mu.Lock()
	interval := e.interval
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !e.guard() {
				e.mu.Lock()
				if e.stop == stop {
					e.stop = nil
				}
				e.mu.Unlock()
				return
			}
			if !e.limiter.Allow() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval*2)
			if err := e.syncFn(ctx); err != nil {
				e.log.Debug().Err(err).Msg("poll tick failed")
			}
			cancel()
		}
	}
}
