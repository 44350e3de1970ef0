// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable client-side persistence for chat sessions.
//
// The session record and the bare session id are written under two fixed
// keys of a small key-value store, so identity survives even when the full
// record is cleared. Two backends implement the Store interface:
//
//   - FileStore: one JSON file per key, written atomically
//   - SQLiteStore: a single-table key-value database
//
// Storage failures are non-fatal by design: a session keeps operating
// in-memory for the rest of the process lifetime, and corrupted persisted
// state is treated as absent.
package storage
