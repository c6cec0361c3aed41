// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/session"
)

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight = 1
	inputHeight  = 2
	statusHeight = 1
)

func (m Model) sidebarVisible() bool {
	return m.showSidebar && m.width-sidebarWidth >= minChatWidth
}

// chatWidth is the width of the transcript column.
func (m Model) chatWidth() int {
	w := m.width
	if m.sidebarVisible() {
		w -= sidebarWidth
	}
	if w < 10 {
		w = 10
	}
	return w
}

// layout sizes the viewport, the input and the renderer.
func (m *Model) layout() {
	w := m.chatWidth()
	h := m.height - headerHeight - inputHeight - statusHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4
	// Bubble border and padding take three columns.
	m.render.SetWidth(w - 3)
}

// refreshViewport re-renders the transcript and follows new entries.
func (m *Model) refreshViewport() {
	if m.width == 0 {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	count := len(m.state.Transcript) + len(m.state.Pending)
	if count != m.lastCount || atBottom || m.state.Typing {
		m.viewport.GotoBottom()
	}
	m.lastCount = count
}

// =============================================================================
// CHAT VIEW
// =============================================================================

func (m Model) viewChat() string {
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.theme.InputContainer.Width(m.chatWidth()).Render(m.input.View()),
	)
	body := main
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), main)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, m.renderStatus())
}

func (m Model) renderHeader() string {
	t := m.theme
	title := t.HeaderTitle.Render("chatterm")
	right := ""
	if m.username != "" {
		right = t.HeaderUser.Render(m.username)
	}
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return t.Header.Width(m.width).Render(title + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	t := m.theme
	inner := sidebarWidth - 3
	height := m.height - headerHeight - statusHeight

	lines := []string{t.SidebarTitle.Render("History")}
	for i, item := range m.state.History {
		label := sidebarLabel(item, inner)
		style := t.SidebarItem
		switch {
		case item.IsNewControl():
			style = t.SidebarNew
		case item.Active:
			style = t.SidebarActive
		}
		if i == m.selected && m.focus == focusSidebar {
			style = style.Inherit(t.SidebarSelected)
		}
		lines = append(lines, style.Render(label))
	}
	if m.focus == focusSidebar {
		lines = append(lines, "", t.ShortcutDesc.Render("Enter open  d delete"))
	}
	return t.Sidebar.Width(sidebarWidth - 1).Height(height).Render(strings.Join(lines, "\n"))
}

// sidebarLabel truncates a history label to width display columns.
func sidebarLabel(item session.HistoryItem, width int) string {
	prefix := "  "
	if item.Active {
		prefix = "> "
	}
	if item.IsNewControl() {
		prefix = ""
	}
	return runewidth.Truncate(prefix+item.Label, width, "...")
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderTranscript() string {
	width := m.chatWidth() - 1
	var b strings.Builder
	for _, e := range m.state.Transcript {
		switch e.Kind {
		case session.EntryConfirm:
			b.WriteString(m.renderConfirm(e.Confirm, width))
		default:
			b.WriteString(m.renderMessage(e.Message, width))
		}
		b.WriteString("\n")
	}
	for _, p := range m.state.Pending {
		b.WriteString(m.renderMessage(p, width))
		b.WriteString("\n")
	}
	if m.state.Typing {
		b.WriteString(m.theme.Typing.Render("Bot is typing " + m.spinner.View()))
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message, width int) string {
	t := m.theme
	label, bubble := t.BotLabel, t.BotBubble
	if msg.IsUser() {
		label, bubble = t.UserLabel, t.UserBubble
	}
	body := m.render.Render(msg.Text)
	return label.Render(msg.Sender.DisplayName()) + "\n" + bubble.Width(width).Render(body)
}

func (m Model) renderConfirm(cf *session.Confirmation, width int) string {
	t := m.theme
	content := t.ConfirmPrompt.Render(cf.Prompt)
	if cf.Resolved {
		content = t.ShortcutDesc.Render(cf.Prompt)
	} else {
		yes := t.ButtonDanger.Render("Delete (" + m.keyMap.Confirm.Help().Key + ")")
		no := t.Button.Render("Cancel (" + m.keyMap.Cancel.Help().Key + ")")
		content += "\n" + yes + no
	}
	return t.ConfirmBox.Width(width - 2).Render(content)
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatus() string {
	t := m.theme
	var text string
	switch {
	case m.notice != "" && m.noticeIsErr:
		text = t.ErrorText.Render(m.notice)
	case m.notice != "":
		text = t.InfoText.Render(m.notice)
	default:
		bindings := m.keyMap.ShortHelp()
		if m.openConfirmation() != nil {
			bindings = m.keyMap.ConfirmHelp()
		}
		text = renderBindings(m, bindings)
	}
	return t.StatusBar.Width(m.width).MaxWidth(m.width).MaxHeight(1).Render(text)
}

func renderBindings(m Model, bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}
