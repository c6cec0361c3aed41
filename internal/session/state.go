// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/jeranaias/chatterm/internal/model"
)

// Fixed transcript and history texts.
const (
	// Greeting is the single bot line of a fresh conversation.
	Greeting = "New chat started. Ask me anything!"

	// GenericError replaces the bot reply when a send fails.
	GenericError = "Sorry, an error occurred. Please try again."

	// NewConversationLabel is the label of the "create new" history control.
	NewConversationLabel = "➕ New Conversation"

	// UnknownError fills the delete failure line when the backend gives no reason.
	UnknownError = "Unknown error"
)

// =============================================================================
// ROUTE
// =============================================================================

// Route is the screen the front end should show.
type Route int

const (
	// RouteChat is the normal chat screen.
	RouteChat Route = iota
	// RouteLogin is shown after the backend answered 401.
	RouteLogin
)

// String returns the route path.
func (r Route) String() string {
	switch r {
	case RouteLogin:
		return "/login"
	default:
		return "/"
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// EntryKind distinguishes transcript entries.
type EntryKind int

const (
	// EntryMessage is a chat message.
	EntryMessage EntryKind = iota
	// EntryConfirm is an inline delete confirmation.
	EntryConfirm
)

// Confirmation is an inline prompt carrying the actions the user can take.
type Confirmation struct {
	ConversationID model.ConversationID
	Prompt         string
	Confirm        Action
	Cancel         Action
	// Resolved is set once either action ran; the prompt stays in the
	// transcript but its buttons are inert.
	Resolved bool
}

// Entry is one transcript line.
type Entry struct {
	Kind    EntryKind
	Message model.Message
	Confirm *Confirmation
}

// MessageEntry wraps a message as a transcript entry.
func MessageEntry(m model.Message) Entry {
	return Entry{Kind: EntryMessage, Message: m}
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryItem is one rendered history entry.
type HistoryItem struct {
	// ID is zero for the "create new" control.
	ID     model.ConversationID
	Label  string
	Active bool

	// Select runs when the entry is chosen.
	Select Action
	// Delete is nil for the "create new" control.
	Delete Action
}

// IsNewControl reports whether the item is the "create new" control.
func (h HistoryItem) IsNewControl() bool {
	return h.ID.IsZero()
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// State is an immutable snapshot of the controller.
type State struct {
	Route      Route
	ActiveID   model.ConversationID
	History    []HistoryItem
	Transcript []Entry
	// Pending holds user lines whose request has not completed. They are
	// committed to the transcript only when the reply arrives.
	Pending []model.Message
	Typing  bool
	// Version increases on every change.
	Version uint64
}

// Messages returns only the message entries of the transcript.
func (s State) Messages() []model.Message {
	msgs := make([]model.Message, 0, len(s.Transcript))
	for _, e := range s.Transcript {
		if e.Kind == EntryMessage {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
