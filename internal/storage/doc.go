// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for the chat backend.
//
// The database holds users, login sessions, conversations and messages. It
// uses the pure-Go modernc.org/sqlite driver, so no cgo toolchain is needed.
//
// # Key Types
//
//   - Store: database handle with user, session, conversation and message queries
//   - User, Conversation, Message: row types
//
// # Usage
//
//	store, err := storage.Open("~/.chatterm/chatterm.db")
//	defer store.Close()
//	conv, _ := store.CreateConversation(ctx, user.ID, "Trip")
//	_, _ = store.AddMessage(ctx, conv.ID, model.SenderUser, "Hi")
package storage
