// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the chat session state: the active conversation, the
// rendered history and the transcript.
//
// The Controller is the only writer of that state. Front ends (the Bubble
// Tea TUI and the line REPL) call its operations from background goroutines
// and re-render from Snapshot whenever the change callback fires.
//
// # Key Types
//
//   - Controller: state owner with LoadConversations, SetActiveConversation,
//     CreateNewConversation, SendMessage, ConfirmAndDelete and PerformDelete
//   - State: immutable snapshot for rendering
//   - Action: typed intent carried by history items and confirmation entries
//   - Dispatcher: registry mapping action names to handlers
//
// # Usage
//
//	ctrl := session.NewController(client).WithLogger(logger)
//	_ = ctrl.LoadConversations(ctx)
//	for _, item := range ctrl.History() {
//	    fmt.Println(item.Label, item.Active)
//	}
//	_ = ctrl.Actions().Dispatch(ctx, item.Select)
//
// # Ordering
//
// Interleaved completions are resolved by an epoch (bumped on every change
// of the active conversation), a list sequence number and a per-id delete
// lock. See Controller for the exact rules.
package session
