// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// This package defines the core domain types used throughout the widget
// for representing a support conversation, its messages, and the reply mode.
//
// # Key Types
//
//   - Session: One end-user conversation with messages, watermark, and mode
//   - Message: Single message with sender, text, timestamp, and latency
//   - MessageID: Tagged identity, either server-assigned or local placeholder
//   - Sender: Display classification (user, assistant, admin)
//   - Mode: Reply-authorship mode (auto, manual), mirrored from the server
//
// # Usage
//
// Create a new session and append a user message:
//
//	sess := model.NewSession("Hi! How can I help?")
//	msg := sess.AddUserMessage("Do you deliver on weekends?")
package model
