// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/supportwidget/internal/util"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender is the display classification of a message author.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderAdmin     Sender = "admin"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderAssistant:
		return "Assistant"
	case SenderAdmin:
		return "Support"
	default:
		return string(s)
	}
}

// ClassifySender derives the display sender from the two server-reported
// fields. The rule is fixed: an admin reply flag or an "admin" message type
// wins over everything else, then "user", and anything remaining is the
// assistant. Every ingest path must use this function so the same server
// message can never be labeled two different ways.
func ClassifySender(messageType string, isAdminReply bool) Sender {
	if isAdminReply || messageType == "admin" {
		return SenderAdmin
	}
	if messageType == "user" {
		return SenderUser
	}
	return SenderAssistant
}

// =============================================================================
// MESSAGE IDENTITY
// =============================================================================

// Local message ids are drawn from an atomic counter seeded with wall-clock
// nanoseconds, so placeholders stay unique within a process and across
// restarts without coordinating with the server's id space.
var localSeq atomic.Int64

func init() {
	localSeq.Store(time.Now().UnixNano())
}

// MessageID identifies a message. It is a tagged value: either a
// server-assigned id (globally ordered per session) or a locally generated
// placeholder used only until the optimistic entry is confirmed.
type MessageID struct {
	n     int64
	local bool
}

// ServerID creates an identity for a server-assigned numeric id.
func ServerID(n int64) MessageID {
	return MessageID{n: n}
}

// LocalID creates a placeholder identity with the given value.
func LocalID(n int64) MessageID {
	return MessageID{n: n, local: true}
}

// NewLocalID creates a fresh placeholder identity.
func NewLocalID() MessageID {
	return LocalID(localSeq.Add(1))
}

// IsLocal reports whether the id is a local placeholder.
func (id MessageID) IsLocal() bool {
	return id.local
}

// Server returns the server-assigned numeric id, and false for placeholders.
func (id MessageID) Server() (int64, bool) {
	if id.local {
		return 0, false
	}
	return id.n, true
}

// Value returns the raw numeric component regardless of tag.
func (id MessageID) Value() int64 {
	return id.n
}

// String encodes the identity with a deterministic, parseable prefix.
func (id MessageID) String() string {
	if id.local {
		return "loc_" + strconv.FormatInt(id.n, 10)
	}
	return "srv_" + strconv.FormatInt(id.n, 10)
}

// ErrBadMessageID is returned when a persisted identity cannot be decoded.
var ErrBadMessageID = errors.New("malformed message id")

// ParseMessageID decodes an identity produced by String.
func ParseMessageID(s string) (MessageID, error) {
	var local bool
	switch {
	case strings.HasPrefix(s, "srv_"):
	case strings.HasPrefix(s, "loc_"):
		local = true
	default:
		return MessageID{}, ErrBadMessageID
	}
	n, err := strconv.ParseInt(s[4:], 10, 64)
	if err != nil {
		return MessageID{}, ErrBadMessageID
	}
	return MessageID{n: n, local: local}, nil
}

// MarshalText encodes the identity for JSON persistence.
func (id MessageID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes the identity from JSON persistence.
func (id *MessageID) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session.
type Message struct {
	// Identity
	ID        MessageID `json:"id"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Text string `json:"text"`

	// Generation latency, set only for assistant-authored messages.
	ResponseTimeMs int64 `json:"response_time_ms,omitempty"`
}

// NewUserMessage creates an optimistic user message with a placeholder id.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:        NewLocalID(),
		Sender:    SenderUser,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message with a placeholder id.
func NewAssistantMessage(text string, responseTimeMs int64) *Message {
	return &Message{
		ID:             NewLocalID(),
		Sender:         SenderAssistant,
		Text:           text,
		Timestamp:      time.Now(),
		ResponseTimeMs: responseTimeMs,
	}
}

// Confirm upgrades a placeholder identity to the server-assigned id once the
// optimistic entry has been acknowledged. Confirming an already-confirmed
// message is a no-op.
func (m *Message) Confirm(serverID int64) {
	if m.ID.IsLocal() {
		m.ID = ServerID(serverID)
	}
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.Text, maxLen)
}

// IsEmpty returns true if the message has no text.
func (m *Message) IsEmpty() bool {
	return len(m.Text) == 0
}
