// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable client-side persistence for chat sessions.
package storage

import "errors"

// Fixed storage keys. The full session record and the bare identity are kept
// under separate keys so the id can be recovered after the record is cleared.
const (
	// ConversationStateKey holds the full persisted session record.
	ConversationStateKey = "chat_conversation_state"

	// SessionIDKey holds only the bare session identity string.
	SessionIDKey = "chat_session_id"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrKeyNotFound is returned when a key has no stored value.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a small key-value store scoped to one client. Implementations
// must tolerate redundant Set calls and return ErrKeyNotFound from Get and
// Delete when the key is absent.
type Store interface {
	// Get returns the value stored under key.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes the value stored under key.
	Delete(key string) error

	// Close releases any resources held by the store.
	Close() error
}
