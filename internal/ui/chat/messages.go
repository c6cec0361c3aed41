// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/config"
)

// stateChangedMsg is sent whenever the session controller changes.
type stateChangedMsg struct{}

// opDoneMsg reports the outcome of a background controller operation.
type opDoneMsg struct {
	op  string
	err error
}

// loginDoneMsg reports a login attempt.
type loginDoneMsg struct {
	err error
}

// logoutDoneMsg reports a logout.
type logoutDoneMsg struct {
	err error
}

// eventMsg carries a server push event.
type eventMsg api.Event

// subscribeEndedMsg reports that the event stream closed.
type subscribeEndedMsg struct {
	err error
}

// noticeMsg shows a transient status line.
type noticeMsg struct {
	text  string
	isErr bool
}

// configReloadedMsg carries a configuration file change.
type configReloadedMsg struct {
	cfg *config.Config
	err error
}
