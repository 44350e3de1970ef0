// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile merges server-reported message batches into a session.
package reconcile

import (
	"github.com/jeranaias/supportwidget/internal/api"
	"github.com/jeranaias/supportwidget/internal/model"
)

// Merge applies a batch of server-reported messages to the session and
// returns the number of messages appended.
//
// Messages whose server id is already represented locally are discarded;
// survivors are classified, converted, and appended in the order received.
// The watermark advances to the highest id seen in the batch (including
// discarded duplicates) and never moves backward. An empty batch is a no-op.
func Merge(sess *model.Session, batch []api.RawMessage) int {
	if len(batch) == 0 {
		return 0
	}

	seen := sess.ServerIDs()
	appended := 0
	var maxID int64

	for _, raw := range batch {
		if raw.ID > maxID {
			maxID = raw.ID
		}
		if _, dup := seen[raw.ID]; dup {
			continue
		}
		seen[raw.ID] = struct{}{}

		sess.Append(&model.Message{
			ID:             model.ServerID(raw.ID),
			Sender:         model.ClassifySender(raw.MessageType, raw.IsAdminReply),
			Text:           raw.Content,
			Timestamp:      raw.Timestamp,
			ResponseTimeMs: raw.ResponseTimeMs,
		})
		appended++
	}

	sess.AdvanceWatermark(maxID)
	return appended
}
