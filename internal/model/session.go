// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a session stays valid after its last activity.
// Older sessions are replaced with a fresh one on next load.
const DefaultTTL = 24 * time.Hour

// =============================================================================
// MODE TYPE
// =============================================================================

// Mode is the last known reply-authorship mode of a conversation. The server
// is authoritative: the widget only mirrors the flag it reports, it never
// transitions on its own.
type Mode string

const (
	// ModeAuto means replies are generated automatically.
	ModeAuto Mode = "auto"

	// ModeManual means a human operator is authoring replies.
	ModeManual Mode = "manual"
)

// ModeFromFlag converts the wire-level manual_reply_active boolean into a
// Mode. Both the send and the poll response contracts carry this flag, and
// both must go through this one conversion.
func ModeFromFlag(manualReplyActive bool) Mode {
	if manualReplyActive {
		return ModeManual
	}
	return ModeAuto
}

// Manual reports whether an operator is currently authoring replies.
func (m Mode) Manual() bool {
	return m == ModeManual
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one end-user conversation: identity, ordered message list,
// activity timestamp, reply mode, and the sync watermark.
//
// The message list is append-only from the client's perspective: it is never
// reordered or truncated locally. The watermark is the highest
// server-assigned message id observed so far and never decreases.
type Session struct {
	// Identity, client-generated, stable for the conversation's lifetime.
	ID string `json:"id"`

	// Messages in insertion order (= display order).
	Messages []*Message `json:"messages"`

	// LastActivity is updated on every mutation and decides expiry.
	LastActivity time.Time `json:"last_activity"`

	// Mode is the last known reply-authorship mode.
	Mode Mode `json:"mode"`

	// Watermark is the highest server-assigned message id incorporated.
	Watermark int64 `json:"watermark"`
}

// NewSession creates a fresh session seeded with a single welcome message
// authored by the assistant, in auto mode, with a zero watermark.
func NewSession(welcomeText string) *Session {
	s := &Session{
		ID:           uuid.NewString(),
		Messages:     make([]*Message, 0, 8),
		LastActivity: time.Now(),
		Mode:         ModeAuto,
	}
	if welcomeText != "" {
		s.Append(NewAssistantMessage(welcomeText, 0))
	}
	return s
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the session and refreshes the activity timestamp.
func (s *Session) Append(msg *Message) {
	s.Messages = append(s.Messages, msg)
	s.LastActivity = time.Now()
}

// AddUserMessage creates and appends an optimistic user message.
func (s *Session) AddUserMessage(text string) *Message {
	msg := NewUserMessage(text)
	s.Append(msg)
	return msg
}

// AddAssistantMessage creates and appends an assistant message.
func (s *Session) AddAssistantMessage(text string, responseTimeMs int64) *Message {
	msg := NewAssistantMessage(text, responseTimeMs)
	s.Append(msg)
	return msg
}

// LastMessage returns the most recent message, or nil if empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// LastUserMessage returns the most recent user-authored message.
func (s *Session) LastUserMessage() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderUser {
			return s.Messages[i]
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// ServerIDs returns the set of server-assigned ids currently represented in
// the session. Local placeholders are excluded: they live in a separate id
// space and must never block a server message from being merged.
func (s *Session) ServerIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(s.Messages))
	for _, msg := range s.Messages {
		if n, ok := msg.ID.Server(); ok {
			ids[n] = struct{}{}
		}
	}
	return ids
}

// =============================================================================
// WATERMARK AND ACTIVITY
// =============================================================================

// AdvanceWatermark raises the watermark to id if it is higher. The watermark
// never moves backward.
func (s *Session) AdvanceWatermark(id int64) {
	if id > s.Watermark {
		s.Watermark = id
	}
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
}

// StaleAfter reports whether the session's last activity is older than ttl.
func (s *Session) StaleAfter(ttl time.Duration) bool {
	return time.Since(s.LastActivity) > ttl
}
