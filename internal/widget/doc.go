// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package widget wires the chat session core together and exposes the
// surface consumed by the presentation layer.
//
// # Key Operations
//
//   - Send: the optimistic send pipeline (validate, append, submit, apply
//     reply or fallback)
//   - SetOpen: open/closed state, driving the conditional sync and the
//     polling guard
//   - Reset: discard the conversation after explicit confirmation
//   - Messages / Mode / LastError: the rendered state
//
// The session is the only shared mutable resource; every mutation happens
// under one mutex, so one mutation completes before the next begins. No
// error escaping this package can crash the widget: every failure path has
// a defined fallback (fresh session, apology message, or silent retry).
package widget
