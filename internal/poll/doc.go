// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package poll drives the widget's two refresh paths against the chat
// service: a conditional sync that fires on open/mode transitions, and a
// fixed-interval polling loop gated by "widget open OR manual reply mode".
//
// The loop is an owned handle with explicit Start/Stop; Stop is idempotent
// and tears the timer down immediately, so no orphaned tickers accumulate
// across state transitions. Both paths funnel through the same sync
// function, which is idempotent by construction (see package reconcile), so
// overlap between them cannot corrupt state.
package poll
