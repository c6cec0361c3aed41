// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/model"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// Command is a parsed input line starting with "/".
type Command struct {
	Name string
	Args []string
	// Rest is the raw text after the first argument.
	Rest string
}

// commandHelp lists the slash commands in display order.
var commandHelp = []struct{ usage, desc string }{
	{"/file <path> [message]", "send a text document"},
	{"/new", "start a new conversation"},
	{"/refresh", "reload the conversation list"},
	{"/logout", "sign out"},
	{"/help", "show this list"},
}

// ParseCommand splits a slash command. ok is false for ordinary messages.
func ParseCommand(input string) (Command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || strings.HasPrefix(input, "//") {
		return Command{}, false
	}
	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return Command{}, false
	}
	cmd := Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}
	if len(fields) > 2 {
		rest := strings.TrimSpace(input[1+len(fields[0]):])
		rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		cmd.Rest = rest
	}
	return cmd, true
}

// HelpText returns the slash command reference.
func HelpText() string {
	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, c := range commandHelp {
		fmt.Fprintf(&b, "%s  %s\n", c.usage, c.desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// runCommand executes a slash command typed into the input.
func (m Model) runCommand(cmd Command) (tea.Model, tea.Cmd) {
	switch cmd.Name {
	case "file", "upload":
		if len(cmd.Args) == 0 {
			return m.withNotice("usage: /file <path> [message]", true), nil
		}
		file, err := api.AttachmentFromFile(cmd.Args[0], maxUploadBytes)
		if err != nil {
			return m.withNotice(err.Error(), true), nil
		}
		return m, m.sendCmd(cmd.Rest, file)

	case "new":
		m.ctrl.CreateNewConversation()
		m.selected = 0
		return m.syncState(), nil

	case "refresh":
		return m, m.loadCmd()

	case "logout":
		client, ctx := m.client, m.ctx
		return m, func() tea.Msg {
			return logoutDoneMsg{err: client.Logout(ctx)}
		}

	case "help", "?":
		m.ctrl.AddMessage(model.SenderBot, HelpText())
		return m.syncState(), nil
	}
	return m.withNotice(fmt.Sprintf("unknown command /%s (try /help)", cmd.Name), true), nil
}

// withNotice sets the status line message.
func (m Model) withNotice(text string, isErr bool) Model {
	m.notice = text
	m.noticeIsErr = isErr
	return m
}
