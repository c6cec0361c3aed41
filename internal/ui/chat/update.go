// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/render"
	"github.com/jeranaias/chatterm/internal/session"
	"github.com/jeranaias/chatterm/internal/ui/styles"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refreshViewport()
		return m, nil

	case stateChangedMsg:
		return m.syncState(), nil

	case opDoneMsg:
		return m.handleOpDone(msg), nil

	case loginDoneMsg:
		return m.handleLoginDone(msg)

	case logoutDoneMsg:
		if msg.err != nil && !api.IsUnauthorized(msg.err) {
			m.logger.Warn("logout failed", zap.Error(msg.err))
		}
		m.username = ""
		m.ctrl.Reset()
		m.ctrl.RequireLogin()
		return m.syncState(), nil

	case eventMsg:
		if msg.Type == api.EventConversationsChanged {
			return m, m.loadCmd()
		}
		return m, nil

	case subscribeEndedMsg:
		m.subscribed = false
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.logger.Debug("event stream closed", zap.Error(msg.err))
		}
		return m, nil

	case noticeMsg:
		return m.withNotice(msg.text, msg.isErr), nil

	case configReloadedMsg:
		return m.applyConfig(msg), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.state.Route == session.RouteLogin {
			return m.updateLogin(msg)
		}
		return m.handleKey(msg)
	}

	if m.state.Route == session.RouteLogin {
		var cmd tea.Cmd
		f := &m.login.fields[m.login.focused]
		*f, cmd = f.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// syncState pulls a fresh snapshot from the controller.
func (m Model) syncState() Model {
	prevRoute := m.state.Route
	m.state = m.ctrl.Snapshot()
	if n := len(m.state.History); m.selected >= n {
		m.selected = n - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
	if m.state.Route == session.RouteLogin && prevRoute != session.RouteLogin {
		m.input.Blur()
		m.login.reset()
	}
	m.refreshViewport()
	return m
}

// handleOpDone surfaces errors the transcript does not already show.
func (m Model) handleOpDone(msg opDoneMsg) Model {
	err := msg.err
	switch {
	case err == nil:
		if msg.op != "load" {
			m.notice = ""
		}
		return m
	case api.IsUnauthorized(err), errors.Is(err, session.ErrStale), errors.Is(err, context.Canceled):
		return m
	case errors.Is(err, session.ErrDeleteInProgress):
		return m.withNotice("That conversation is already being deleted.", true)
	case msg.op == "send", msg.op == session.ActionDelete:
		// Already reported in the transcript.
		return m
	}
	m.logger.Warn("operation failed", zap.String("op", msg.op), zap.Error(err))
	return m.withNotice(api.Describe(err), true)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keyMap

	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit

	case key.Matches(msg, k.Confirm):
		if cf := m.openConfirmation(); cf != nil {
			return m, m.dispatchCmd(cf.Confirm)
		}
		return m, nil

	case key.Matches(msg, k.Cancel):
		if cf := m.openConfirmation(); cf != nil {
			return m, m.dispatchCmd(cf.Cancel)
		}
		if m.focus == focusSidebar {
			m.setFocus(focusInput)
		}
		return m, nil

	case key.Matches(msg, k.NewChat):
		m.selected = 0
		return m, m.dispatchCmd(session.NewConversation{})

	case key.Matches(msg, k.Refresh):
		return m, m.loadCmd()

	case key.Matches(msg, k.ToggleTheme):
		return m.toggleTheme(), nil

	case key.Matches(msg, k.ToggleSidebar):
		m.showSidebar = !m.showSidebar
		if !m.showSidebar {
			m.setFocus(focusInput)
		}
		m.layout()
		m.refreshViewport()
		return m, nil

	case key.Matches(msg, k.Voice):
		m.ctrl.AddMessage(model.SenderBot, VoiceUnsupported)
		return m.syncState(), nil

	case key.Matches(msg, k.CopyLast):
		return m.copyLastReply(), nil

	case key.Matches(msg, k.FocusSwitch):
		if m.focus == focusInput && m.sidebarVisible() {
			m.setFocus(focusSidebar)
		} else {
			m.setFocus(focusInput)
		}
		return m, nil

	case key.Matches(msg, k.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, k.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keyMap
	items := m.state.History

	switch {
	case key.Matches(msg, k.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, k.Down):
		if m.selected < len(items)-1 {
			m.selected++
		}
	case key.Matches(msg, k.Submit):
		if m.selected < len(items) {
			m.setFocus(focusInput)
			return m, m.dispatchCmd(items[m.selected].Select)
		}
	case key.Matches(msg, k.Delete):
		if m.selected < len(items) && items[m.selected].Delete != nil {
			return m, m.dispatchCmd(items[m.selected].Delete)
		}
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keyMap.Submit) {
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		m.notice = ""
		if cmd, ok := ParseCommand(text); ok {
			return m.runCommand(cmd)
		}
		return m, m.sendCmd(strings.TrimSpace(text), nil)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// ACTIONS
// =============================================================================

// openConfirmation returns the newest unresolved delete confirmation.
func (m Model) openConfirmation() *session.Confirmation {
	for i := len(m.state.Transcript) - 1; i >= 0; i-- {
		if cf := m.state.Transcript[i].Confirm; cf != nil && !cf.Resolved {
			return cf
		}
	}
	return nil
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m Model) toggleTheme() Model {
	dark := m.theme.Toggle()
	m.render.WithBoldStyle(m.theme.Bold)
	m.render.SetDark(dark)
	m.cfg.UI.DarkMode = &dark
	if m.saveConfig != nil {
		if err := m.saveConfig(m.cfg); err != nil {
			m.logger.Warn("failed to save theme preference", zap.Error(err))
			m = m.withNotice("Could not save theme preference.", true)
		}
	}
	m.refreshViewport()
	return m
}

// applyConfig picks up UI settings from a reloaded configuration file.
func (m Model) applyConfig(msg configReloadedMsg) Model {
	if msg.err != nil {
		m.logger.Warn("config reload failed", zap.Error(msg.err))
		return m.withNotice("Config reload failed: "+msg.err.Error(), true)
	}
	m.cfg = msg.cfg
	dark := m.cfg.IsDark(styles.DetectDark)
	if dark != m.theme.IsDark {
		m.theme.SetDark(dark)
	}
	m.render = render.New(render.ParseMode(m.cfg.UI.Markdown), m.chatWidth()-3, dark).WithBoldStyle(m.theme.Bold)
	m.showSidebar = m.cfg.UI.Sidebar
	if !m.sidebarVisible() {
		m.setFocus(focusInput)
	}
	m.layout()
	m.refreshViewport()
	return m
}

// copyLastReply copies the newest bot message without formatting markers.
func (m Model) copyLastReply() Model {
	if m.copyText == nil {
		return m.withNotice("Clipboard is not available.", true)
	}
	msgs := m.state.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsUser() {
			continue
		}
		if err := m.copyText(render.StripMarkers(msgs[i].Text)); err != nil {
			return m.withNotice("Copy failed: "+err.Error(), true)
		}
		return m.withNotice("Copied last reply.", false)
	}
	return m.withNotice("Nothing to copy.", true)
}
