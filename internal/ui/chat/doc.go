// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the full-screen terminal chat interface.
//
// The model renders snapshots of a session.Controller: the history sidebar,
// the transcript with inline delete confirmations, and a typing indicator
// while a reply is pending. All network work runs in tea.Cmds that call the
// controller; the controller's change callback feeds back into the program.
//
// # Key Types
//
//   - Model: the Bubble Tea model
//   - KeyMap: keyboard bindings
//   - Options: collaborators passed to New and Run
//
// # Usage
//
//	ctrl := session.NewController(client)
//	err := chat.Run(ctx, chat.Options{Client: client, Controller: ctrl, Config: cfg})
package chat
