// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable client-side persistence for chat sessions.
package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/supportwidget/internal/model"
)

// =============================================================================
// PERSISTED RECORD
// =============================================================================

// sessionRecord is the persisted shape of a session. Field names mirror the
// wire-era record so older persisted state stays readable.
type sessionRecord struct {
	SessionID           string          `json:"sessionId"`
	Messages            []recordMessage `json:"messages"`
	LastActivity        time.Time       `json:"lastActivity"`
	IsManualReplyActive bool            `json:"isManualReplyActive"`
	Watermark           int64           `json:"watermark"`
}

// recordMessage is the persisted shape of one message.
type recordMessage struct {
	ID             string    `json:"id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// =============================================================================
// SESSION STORE
// =============================================================================

// SessionStore owns the durable representation of one conversation and its
// lifecycle: load, persist, expire, and reset to a fresh session.
type SessionStore struct {
	kv      Store
	ttl     time.Duration
	welcome string
	log     zerolog.Logger
}

// NewSessionStore creates a session store on top of a key-value backend.
// welcome seeds the first message of every fresh session.
func NewSessionStore(kv Store, welcome string, log zerolog.Logger) *SessionStore {
	return &SessionStore{
		kv:      kv,
		ttl:     model.DefaultTTL,
		welcome: welcome,
		log:     log,
	}
}

// WithTTL overrides the session expiry age. Non-positive values keep the
// default.
func (s *SessionStore) WithTTL(ttl time.Duration) *SessionStore {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// TTL returns the configured expiry age.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the persisted session. A missing or malformed record yields a
// fresh session; a stale record (older than the TTL) is replaced by a fresh
// one with a new identity. The fresh session is persisted before returning,
// so the caller always holds the durable state.
func (s *SessionStore) Load() *model.Session {
	data, err := s.kv.Get(ConversationStateKey)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.log.Warn().Err(err).Msg("read session record")
		}
		return s.freshRecovered()
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.SessionID == "" {
		// Corrupted state is treated as absence, never surfaced.
		s.log.Warn().Err(err).Msg("discarding malformed session record")
		s.kv.Delete(ConversationStateKey)
		return s.freshRecovered()
	}

	sess := recordToSession(rec)
	if sess.StaleAfter(s.ttl) {
		s.log.Info().
			Str("session_id", sess.ID).
			Time("last_activity", sess.LastActivity).
			Msg("session expired, starting fresh")
		return s.freshPersisted()
	}

	return sess
}

// ExpireIfStale returns a fresh persisted session when sess has outlived the
// TTL, otherwise sess unchanged.
func (s *SessionStore) ExpireIfStale(sess *model.Session) *model.Session {
	if sess.StaleAfter(s.ttl) {
		return s.freshPersisted()
	}
	return sess
}

// =============================================================================
// PERSIST
// =============================================================================

// Persist writes the full session record and, separately, the bare session
// id under its own key so identity survives a clear of the full record.
// Storage failures are non-fatal: they are logged and returned, and the
// in-memory session keeps operating.
func (s *SessionStore) Persist(sess *model.Session) error {
	rec := sessionToRecord(sess)

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := s.kv.Set(ConversationStateKey, data); err != nil {
		s.log.Warn().Err(err).Msg("persist session record")
		return err
	}
	if err := s.kv.Set(SessionIDKey, []byte(sess.ID)); err != nil {
		s.log.Warn().Err(err).Msg("persist session id")
		return err
	}
	return nil
}

// =============================================================================
// FRESH SESSIONS
// =============================================================================

// Fresh builds a brand-new session: new identity, single welcome message,
// auto mode, zero watermark. It does not touch storage.
func (s *SessionStore) Fresh() *model.Session {
	return model.NewSession(s.welcome)
}

// freshPersisted builds a fresh session and persists it, discarding whatever
// was stored before.
func (s *SessionStore) freshPersisted() *model.Session {
	sess := s.Fresh()
	s.Persist(sess)
	return sess
}

// freshRecovered is freshPersisted, except a bare session id that survived a
// clear of the full record is carried over so the server-side conversation
// continues under the same identity.
func (s *SessionStore) freshRecovered() *model.Session {
	sess := s.Fresh()
	if id := s.RecoverID(); id != "" {
		sess.ID = id
	}
	s.Persist(sess)
	return sess
}

// RecoverID returns the bare session identity stored under its own key, or
// empty when none survives. Used to keep a stable identity when the full
// record was cleared out from under the widget.
func (s *SessionStore) RecoverID() string {
	data, err := s.kv.Get(SessionIDKey)
	if err != nil {
		return ""
	}
	return string(data)
}

// =============================================================================
// RECORD CONVERSION
// =============================================================================

func sessionToRecord(sess *model.Session) sessionRecord {
	rec := sessionRecord{
		SessionID:           sess.ID,
		Messages:            make([]recordMessage, 0, len(sess.Messages)),
		LastActivity:        sess.LastActivity,
		IsManualReplyActive: sess.Mode.Manual(),
		Watermark:           sess.Watermark,
	}
	for _, msg := range sess.Messages {
		rec.Messages = append(rec.Messages, recordMessage{
			ID:             msg.ID.String(),
			Sender:         msg.Sender.String(),
			Text:           msg.Text,
			Timestamp:      msg.Timestamp,
			ResponseTimeMs: msg.ResponseTimeMs,
		})
	}
	return rec
}

func recordToSession(rec sessionRecord) *model.Session {
	sess := &model.Session{
		ID:           rec.SessionID,
		Messages:     make([]*model.Message, 0, len(rec.Messages)),
		LastActivity: rec.LastActivity,
		Mode:         model.ModeFromFlag(rec.IsManualReplyActive),
		Watermark:    rec.Watermark,
	}
	for _, rm := range rec.Messages {
		id, err := model.ParseMessageID(rm.ID)
		if err != nil {
			// Skip entries with unreadable identities rather than
			// failing the whole record.
			continue
		}
		sess.Messages = append(sess.Messages, &model.Message{
			ID:             id,
			Sender:         model.Sender(rm.Sender),
			Text:           rm.Text,
			Timestamp:      rm.Timestamp,
			ResponseTimeMs: rm.ResponseTimeMs,
		})
		// Persisted server ids keep the watermark honest even if the
		// stored watermark field predates them.
		if n, ok := id.Server(); ok {
			sess.AdvanceWatermark(n)
		}
	}
	return sess
}
