// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package widget wires the chat session core together.
package widget

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/supportwidget/internal/api"
	"github.com/jeranaias/supportwidget/internal/model"
	"github.com/jeranaias/supportwidget/internal/poll"
	"github.com/jeranaias/supportwidget/internal/reconcile"
	"github.com/jeranaias/supportwidget/internal/storage"
)

// DefaultFallbackMessage is shown when a send fails and no reply arrived.
const DefaultFallbackMessage = "I apologize, but I'm having trouble processing your request right now. Please try again in a moment."

// ErrResetNotConfirmed is returned when Reset is invoked without the
// required confirmation. Destroying conversation history always needs an
// explicit yes from the initiating actor.
var ErrResetNotConfirmed = errors.New("reset not confirmed")

// ChatService is the remote service consumed by the widget. *api.Client
// satisfies it; tests substitute fakes.
type ChatService interface {
	SendMessage(ctx context.Context, sessionID, text string) (*api.SendResponse, error)
	LatestMessages(ctx context.Context, sessionID string, afterID int64) (*api.MessagesResponse, error)
}

// Options configures a Widget.
type Options struct {
	// PollInterval is the polling cadence. Zero selects the default.
	PollInterval time.Duration

	// FallbackMessage overrides the degraded-send reply text.
	FallbackMessage string

	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// =============================================================================
// WIDGET
// =============================================================================

// Widget is the client-side core of the support chat: session lifecycle,
// send pipeline, sync engine, and mode mirroring.
type Widget struct {
	mu sync.Mutex

	sess   *model.Session
	store  *storage.SessionStore
	svc    ChatService
	engine *poll.Engine
	log    zerolog.Logger

	open      bool
	sending   bool
	composing bool
	completed bool
	lastErr   string

	fallback string
}

// New loads (or creates) the session and assembles the widget core. The
// polling loop is not started until the guard first becomes true.
func New(svc ChatService, store *storage.SessionStore, opts Options) *Widget {
	log := opts.Logger
	fallback := opts.FallbackMessage
	if fallback == "" {
		fallback = DefaultFallbackMessage
	}

	w := &Widget{
		sess:     store.Load(),
		store:    store,
		svc:      svc,
		log:      log,
		fallback: fallback,
	}
	w.engine = poll.New(opts.PollInterval, w.syncOnce, w.pollGuard, log)
	return w
}

// =============================================================================
// COLLABORATOR SURFACE
// =============================================================================

// SetOpen records whether the widget window is open. Opening triggers a
// conditional sync and re-evaluates the polling guard; closing only
// re-evaluates the guard (polling continues if an operator is replying).
func (w *Widget) SetOpen(open bool) {
	w.mu.Lock()
	changed := w.open != open
	w.open = open
	w.mu.Unlock()

	if !changed {
		return
	}
	if open {
		go w.engine.SyncNow(context.Background())
	}
	w.engine.Update()
}

// IsOpen reports whether the widget window is open.
func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Messages returns a snapshot of the rendered message list.
func (w *Widget) Messages() []*model.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*model.Message, len(w.sess.Messages))
	copy(out, w.sess.Messages)
	return out
}

// Mode returns the last known reply-authorship mode.
func (w *Widget) Mode() model.Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sess.Mode
}

// SessionID returns the conversation identity.
func (w *Widget) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sess.ID
}

// Composing reports whether an automated reply is being awaited.
func (w *Widget) Composing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.composing
}

// Completed reports whether the server has ended the conversation.
func (w *Widget) Completed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completed
}

// LastError returns the dismissible error indicator, empty when clear.
func (w *Widget) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// DismissError clears the error indicator.
func (w *Widget) DismissError() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastErr = ""
}

// =============================================================================
// RUNTIME RECONFIGURATION
// =============================================================================

// SetFallbackMessage replaces the degraded-send reply text for future
// failed sends. An empty string restores the default.
func (w *Widget) SetFallbackMessage(text string) {
	if text == "" {
		text = DefaultFallbackMessage
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fallback = text
}

// SetPollInterval changes the sync cadence. Must not be called from the
// polling goroutine: a running loop is restarted to pick up the new cadence.
func (w *Widget) SetPollInterval(interval time.Duration) {
	w.engine.SetInterval(interval)
}

// =============================================================================
// RESET
// =============================================================================

// Reset discards the conversation and starts a fresh session with a new
// identity. confirm is consulted first and must return true; without
// confirmation the history is left untouched and ErrResetNotConfirmed is
// returned. This guard is user-facing and not skippable.
func (w *Widget) Reset(confirm func() bool) error {
	if confirm == nil || !confirm() {
		return ErrResetNotConfirmed
	}

	w.mu.Lock()
	w.sess = w.store.Fresh()
	w.lastErr = ""
	w.sending = false
	w.composing = false
	w.completed = false
	w.store.Persist(w.sess)
	w.mu.Unlock()

	w.engine.Update()
	return nil
}

// Close stops the polling loop. The session stays persisted.
func (w *Widget) Close() {
	w.engine.Stop()
}

// =============================================================================
// MODE MIRRORING
// =============================================================================

// applyModeLocked mirrors the server's authoritative mode flag. Both the
// send and the sync paths route through here, so the session can never hold
// a mode the server did not report. Returns true when the mode changed;
// the caller is responsible for persisting and for re-evaluating the
// polling guard outside the lock.
func (w *Widget) applyModeLocked(mode model.Mode) bool {
	if w.sess.Mode == mode {
		return false
	}
	w.log.Info().
		Str("session_id", w.sess.ID).
		Str("mode", mode.String()).
		Msg("reply mode changed")
	w.sess.Mode = mode
	return true
}

// pollGuard is the polling condition: the widget is open OR an operator is
// replying, and a session identity exists.
func (w *Widget) pollGuard() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return (w.open || w.sess.Mode.Manual()) && w.sess.ID != ""
}

// =============================================================================
// SYNC PATH
// =============================================================================

// syncOnce is the shared fetch-and-merge cycle used by both refresh paths.
// Failures are logged and otherwise ignored; the next tick retries.
func (w *Widget) syncOnce(ctx context.Context) error {
	w.mu.Lock()
	sessionID := w.sess.ID
	afterID := w.sess.Watermark
	w.mu.Unlock()

	if sessionID == "" {
		return nil
	}

	resp, err := w.svc.LatestMessages(ctx, sessionID, afterID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.sess.ID != sessionID {
		// Session was reset while the fetch was in flight; the stale
		// result no longer applies.
		w.mu.Unlock()
		return nil
	}
	appended := reconcile.Merge(w.sess, resp.Messages)
	modeChanged := w.applyModeLocked(model.ModeFromFlag(resp.ManualReplyActive))
	if appended > 0 || modeChanged {
		w.store.Persist(w.sess)
	}
	w.mu.Unlock()

	if modeChanged {
		// syncOnce runs on the polling goroutine; Update must not Stop the
		// loop from inside itself. The loop's own guard check tears it down
		// on the next tick, this only covers the start-it-up direction.
		go w.engine.Update()
	}
	return nil
}
