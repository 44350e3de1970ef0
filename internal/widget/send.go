// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"context"
	"strings"

	"github.com/jeranaias/supportwidget/internal/api"
	"github.com/jeranaias/supportwidget/internal/model"
)

// Send runs the optimistic send pipeline for one outbound message.
//
// The user's message appears immediately as a local placeholder; the server
// round-trip then either confirms it (and appends the reply) or degrades to
// a fallback apology. Empty input and input arriving while a send is still
// in flight are silently ignored. Send never returns an error to the caller:
// failures surface as the dismissible error indicator plus the fallback
// message, and the conversation remains usable.
func (w *Widget) Send(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	w.mu.Lock()
	if text == "" || w.sending {
		w.mu.Unlock()
		return
	}
	w.sending = true
	w.composing = true
	w.lastErr = ""

	sessionID := w.sess.ID
	optimistic := w.sess.AddUserMessage(text)
	w.sess.Touch()
	w.store.Persist(w.sess)
	w.mu.Unlock()

	resp, err := w.svc.SendMessage(ctx, sessionID, text)

	w.mu.Lock()
	w.sending = false
	w.composing = false

	if w.sess.ID != sessionID {
		// Session was reset mid-flight; the optimistic message is gone
		// and the reply has nowhere to land.
		w.mu.Unlock()
		return
	}

	if err != nil {
		w.log.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("send failed")
		w.lastErr = "Failed to send message. Please try again."
		w.sess.AddAssistantMessage(w.fallback, 0)
		w.store.Persist(w.sess)
		w.mu.Unlock()
		return
	}

	w.applyResponseLocked(optimistic, resp)
	w.store.Persist(w.sess)
	modeChanged := w.applyModeLocked(model.ModeFromFlag(resp.ManualReplyActive))
	if modeChanged {
		w.store.Persist(w.sess)
	}
	w.mu.Unlock()

	if modeChanged {
		// Re-evaluate the polling guard and fetch right away rather than
		// waiting out a full poll interval for the first operator message.
		w.engine.Update()
		go w.engine.SyncNow(context.Background())
	}
}

// applyResponseLocked folds a successful send response into the session:
// confirm the optimistic message with its server id, append the automated
// reply when one arrived and was not silently blocked, and advance the
// watermark so the polling loop never refetches either message.
func (w *Widget) applyResponseLocked(optimistic *model.Message, resp *api.SendResponse) {
	if resp.UserMessageID != nil {
		optimistic.Confirm(*resp.UserMessageID)
		w.sess.AdvanceWatermark(*resp.UserMessageID)
	}

	if resp.ConversationCompleted {
		w.completed = true
	}

	if resp.SilentBlock {
		// Operator takeover: the automated reply was suppressed server-side
		// and the operator's real reply will arrive through polling.
		w.log.Debug().
			Str("session_id", w.sess.ID).
			Msg("automated reply silently blocked")
		return
	}

	if resp.Message == "" {
		// No reply text arrived with the send; there is nothing to render.
		// Still advance the watermark so polling does not refetch the row.
		if resp.MessageID != nil {
			w.sess.AdvanceWatermark(*resp.MessageID)
		}
		return
	}

	reply := w.sess.AddAssistantMessage(resp.Message, resp.ResponseTimeMs)
	if resp.MessageID != nil {
		reply.Confirm(*resp.MessageID)
		w.sess.AdvanceWatermark(*resp.MessageID)
	}
}
