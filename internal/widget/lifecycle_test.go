// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package widget

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/supportwidget/internal/storage"
)

// Lifecycle tests: the session must survive a widget restart intact, and be
// replaced only when it has outlived the TTL.

func TestLifecycle_SessionSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeService{sendResp: okReply("hi")}

	fs, err := storage.NewFileStoreWithDir(dir)
	require.NoError(t, err)
	store := storage.NewSessionStore(fs, "welcome", zerolog.Nop())

	w := New(svc, store, Options{Logger: zerolog.Nop()})
	w.Send(context.Background(), "remember me")
	sessionID := w.SessionID()
	require.Len(t, w.Messages(), 3)
	w.Close()

	// Restart: a fresh widget over the same storage.
	fs2, err := storage.NewFileStoreWithDir(dir)
	require.NoError(t, err)
	store2 := storage.NewSessionStore(fs2, "welcome", zerolog.Nop())
	w2 := New(svc, store2, Options{Logger: zerolog.Nop()})
	defer w2.Close()

	require.Equal(t, sessionID, w2.SessionID(), "identity should survive a restart")
	require.Len(t, w2.Messages(), 3, "history should survive a restart")
}

func TestLifecycle_ExpiredSessionReplacedOnRestart(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeService{sendResp: okReply("hi")}

	fs, err := storage.NewFileStoreWithDir(dir)
	require.NoError(t, err)
	store := storage.NewSessionStore(fs, "welcome", zerolog.Nop()).WithTTL(time.Hour)

	w := New(svc, store, Options{Logger: zerolog.Nop()})
	w.Send(context.Background(), "old conversation")
	oldID := w.SessionID()

	// Age the persisted record past the TTL.
	w.mu.Lock()
	w.sess.LastActivity = time.Now().Add(-2 * time.Hour)
	store.Persist(w.sess)
	w.mu.Unlock()
	w.Close()

	fs2, err := storage.NewFileStoreWithDir(dir)
	require.NoError(t, err)
	store2 := storage.NewSessionStore(fs2, "welcome", zerolog.Nop()).WithTTL(time.Hour)
	w2 := New(svc, store2, Options{Logger: zerolog.Nop()})
	defer w2.Close()

	require.NotEqual(t, oldID, w2.SessionID(), "expired session must get a new identity")
	require.Len(t, w2.Messages(), 1, "expired session should reset to the welcome message")
}
