// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile merges server-reported message batches into a session.
//
// The merge is idempotent: applying the same batch twice, or overlapping
// batches from concurrent fetches, never duplicates a message. Dedup is by
// server-assigned numeric id against the ids already present in the session;
// local optimistic placeholders live in a separate id space and never block
// a server message. The session watermark only ever moves forward.
package reconcile
