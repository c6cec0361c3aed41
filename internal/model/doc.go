// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// These are the wire types exchanged with the chat backend and the values
// held by the session controller.
//
// # Key Types
//
//   - ConversationID: opaque server id, decoded from JSON numbers or strings
//   - Conversation: {id, title} as listed by the backend
//   - Message: {sender, message} transcript line
//   - Sender: user or bot
//
// # Usage
//
//	var convs []model.Conversation
//	json.Unmarshal(body, &convs)
//	for _, c := range convs {
//	    fmt.Println(c.ID, c.DisplayTitle())
//	}
package model
