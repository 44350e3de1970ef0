// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEngine_StartStopIdempotent(t *testing.T) {
	e := New(10*time.Millisecond,
		func(ctx context.Context) error { return nil },
		func() bool { return true },
		zerolog.Nop())

	e.Start()
	e.Start() // second Start must be a no-op
	if !e.Running() {
		t.Fatal("engine should be running after Start")
	}

	e.Stop()
	if e.Running() {
		t.Fatal("engine should be stopped after Stop")
	}
	e.Stop() // second Stop must be a no-op
}

func TestEngine_StopWithoutStart(t *testing.T) {
	e := New(10*time.Millisecond,
		func(ctx context.Context) error { return nil },
		func() bool { return true },
		zerolog.Nop())
	e.Stop() // must not panic or hang
}

func TestEngine_TicksInvokeSync(t *testing.T) {
	var ticks atomic.Int32
	e := New(10*time.Millisecond,
		func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		},
		func() bool { return true },
		zerolog.Nop())

	e.Start()
	defer e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", ticks.Load())
	}
}

func TestEngine_GuardFalseStopsLoop(t *testing.T) {
	var allowed atomic.Bool
	allowed.Store(true)

	e := New(10*time.Millisecond,
		func(ctx context.Context) error { return nil },
		func() bool { return allowed.Load() },
		zerolog.Nop())

	e.Start()
	if !e.Running() {
		t.Fatal("engine should be running")
	}

	allowed.Store(false)

	deadline := time.Now().Add(2 * time.Second)
	for e.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if e.Running() {
		t.Fatal("loop should tear itself down when the guard flips false")
	}

	// Update with a true guard restarts it.
	allowed.Store(true)
	e.Update()
	if !e.Running() {
		t.Fatal("Update should restart the loop")
	}
	e.Stop()
}

func TestEngine_UpdateMatchesGuard(t *testing.T) {
	var allowed atomic.Bool

	e := New(10*time.Millisecond,
		func(ctx context.Context) error { return nil },
		func() bool { return allowed.Load() },
		zerolog.Nop())

	e.Update()
	if e.Running() {
		t.Fatal("guard false: Update must not start the loop")
	}

	allowed.Store(true)
	e.Update()
	if !e.Running() {
		t.Fatal("guard true: Update must start the loop")
	}

	allowed.Store(false)
	e.Update()
	if e.Running() {
		t.Fatal("guard false: Update must stop the loop")
	}
}

func TestEngine_SetIntervalRestartsLoop(t *testing.T) {
	var ticks atomic.Int32
	e := New(time.Hour,
		func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		},
		func() bool { return true },
		zerolog.Nop())

	e.Start()
	defer e.Stop()

	// At an hourly cadence no tick can fire; the new cadence must take
	// effect without an explicit Stop/Start from the caller.
	e.SetInterval(10 * time.Millisecond)
	if !e.Running() {
		t.Fatal("engine should still be running after SetInterval")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 2 {
		t.Fatalf("new cadence not applied, got %d ticks", ticks.Load())
	}
}

func TestEngine_SetIntervalWhileStopped(t *testing.T) {
	e := New(time.Hour,
		func(ctx context.Context) error { return nil },
		func() bool { return true },
		zerolog.Nop())

	e.SetInterval(10 * time.Millisecond)
	if e.Running() {
		t.Fatal("SetInterval must not start a stopped engine")
	}
	e.SetInterval(10 * time.Millisecond) // unchanged cadence is a no-op
}

func TestEngine_SyncNowRateLimited(t *testing.T) {
	var calls atomic.Int32
	e := New(time.Second,
		func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
		func() bool { return true },
		zerolog.Nop())

	// Burst beyond the limiter's capacity; only the first few fire.
	for i := 0; i < 10; i++ {
		e.SyncNow(context.Background())
	}
	if calls.Load() == 0 {
		t.Fatal("at least one conditional sync should run")
	}
	if calls.Load() > 2 {
		t.Errorf("limiter should cap the burst, got %d calls", calls.Load())
	}
}

func TestEngine_SyncErrorDoesNotStopLoop(t *testing.T) {
	var ticks atomic.Int32
	e := New(10*time.Millisecond,
		func(ctx context.Context) error {
			ticks.Add(1)
			return context.DeadlineExceeded
		},
		func() bool { return true },
		zerolog.Nop())

	e.Start()
	defer e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("failures must not stop the loop, got %d ticks", ticks.Load())
	}
	if !e.Running() {
		t.Fatal("loop should still be running after sync failures")
	}
}
