// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// CONVERSATION ID
// =============================================================================

// ConversationID is an opaque, server-assigned conversation identifier.
//
// The backend may send ids as JSON numbers or JSON strings; both decode into
// the same value. The zero value ("") means "no conversation", i.e. an
// unsaved new session.
type ConversationID string

// NoConversation is the zero ConversationID.
const NoConversation ConversationID = ""

// ErrInvalidConversationID is returned when an id cannot be decoded.
var ErrInvalidConversationID = errors.New("invalid conversation id")

// IDFromInt converts a numeric database id to a ConversationID.
func IDFromInt(id int64) ConversationID {
	return ConversationID(strconv.FormatInt(id, 10))
}

// ParseConversationID parses user or form input into a ConversationID.
// The placeholders "", "null" and "undefined" parse to NoConversation.
func ParseConversationID(s string) ConversationID {
	s = strings.TrimSpace(s)
	switch s {
	case "", "null", "undefined":
		return NoConversation
	}
	return ConversationID(s)
}

// IsZero reports whether the id denotes "no conversation".
func (id ConversationID) IsZero() bool {
	return id == NoConversation
}

// String returns the id as text.
func (id ConversationID) String() string {
	return string(id)
}

// Int64 returns the numeric form of the id.
func (id ConversationID) Int64() (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidConversationID, string(id))
	}
	return n, nil
}

// MarshalJSON emits numeric ids as JSON numbers and everything else as strings.
func (id ConversationID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (id *ConversationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = NoConversation
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConversationID, err)
		}
		*id = ParseConversationID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConversationID, string(data))
	}
	*id = ConversationID(n.String())
	return nil
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a server-tracked chat session as listed by the backend.
type Conversation struct {
	ID    ConversationID `json:"id"`
	Title string         `json:"title"`
}

// DisplayTitle returns the title, falling back to "Conversation <id>".
func (c Conversation) DisplayTitle() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return "Conversation " + c.ID.String()
}
