// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the client for the remote chat service.
//
// The service exposes two operations, both idempotent from the caller's
// point of view:
//
//   - SendMessage: submit a user message, receive the automated reply (or a
//     silent block when an operator has taken over)
//   - LatestMessages: fetch messages newer than a watermark, for polling
//
// Transient failures (5xx, transport errors) are retried with exponential
// backoff. Responses are size-limited and decoded into typed structs.
package api
