// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderBot:
		return "Bot"
	default:
		return string(s)
	}
}

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// ParseSender maps wire values to a Sender. Anything that is not "user" is
// treated as the bot, matching how the backend stores assistant replies.
func ParseSender(s string) Sender {
	if strings.EqualFold(strings.TrimSpace(s), string(SenderUser)) {
		return SenderUser
	}
	return SenderBot
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single transcript line. Messages are never mutated after
// they are appended to a transcript.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"message"`
}

// NewUserMessage creates a message sent by the local user.
func NewUserMessage(text string) Message {
	return Message{Sender: SenderUser, Text: text}
}

// NewBotMessage creates a message sent by the bot.
func NewBotMessage(text string) Message {
	return Message{Sender: SenderBot, Text: text}
}

// UnmarshalJSON normalizes the sender field.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sender  string `json:"sender"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	m.Sender = ParseSender(raw.Sender)
	m.Text = raw.Message
	return nil
}

// IsUser reports whether the message came from the user.
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}
