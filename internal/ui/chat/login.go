// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatterm/internal/api"
)

// =============================================================================
// LOGIN FORM
// =============================================================================

const (
	fieldUser = iota
	fieldPassword
	fieldOTP
	fieldCount
)

// loginForm collects credentials after the server answered 401.
type loginForm struct {
	fields  [fieldCount]textinput.Model
	focused int
	busy    bool
	err     string
}

func newLoginForm() loginForm {
	var f loginForm
	for i := range f.fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 128
		f.fields[i] = ti
	}
	f.fields[fieldUser].Placeholder = "username"
	f.fields[fieldPassword].Placeholder = "password"
	f.fields[fieldPassword].EchoMode = textinput.EchoPassword
	f.fields[fieldPassword].EchoCharacter = '*'
	f.fields[fieldOTP].Placeholder = "only if enabled"
	f.fields[fieldOTP].CharLimit = 8
	f.fields[fieldUser].Focus()
	return f
}

// values returns the trimmed username, the raw password and the code.
func (f loginForm) values() (string, string, string) {
	return strings.TrimSpace(f.fields[fieldUser].Value()),
		f.fields[fieldPassword].Value(),
		strings.TrimSpace(f.fields[fieldOTP].Value())
}

func (f *loginForm) focus(i int) {
	f.focused = (i + fieldCount) % fieldCount
	for j := range f.fields {
		if j == f.focused {
			f.fields[j].Focus()
		} else {
			f.fields[j].Blur()
		}
	}
}

// reset clears the password and code but keeps the username.
func (f *loginForm) reset() {
	f.fields[fieldPassword].SetValue("")
	f.fields[fieldOTP].SetValue("")
	f.busy = false
	if f.fields[fieldUser].Value() == "" {
		f.focus(fieldUser)
	} else {
		f.focus(fieldPassword)
	}
}

// =============================================================================
// LOGIN UPDATE
// =============================================================================

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "ctrl+q":
		return m, tea.Quit
	case "tab", "down":
		m.login.focus(m.login.focused + 1)
		return m, nil
	case "shift+tab", "up":
		m.login.focus(m.login.focused - 1)
		return m, nil
	case "enter":
		if m.login.focused < fieldOTP {
			user, pass, _ := m.login.values()
			if m.login.focused == fieldUser && user != "" || m.login.focused == fieldPassword && pass == "" {
				m.login.focus(m.login.focused + 1)
				return m, nil
			}
		}
		return m.submitLogin()
	}

	if m.login.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.login.fields[m.login.focused], cmd = m.login.fields[m.login.focused].Update(msg)
	return m, cmd
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	if m.login.busy {
		return m, nil
	}
	user, pass, otp := m.login.values()
	if user == "" || pass == "" {
		m.login.err = "Username and password are required."
		return m, nil
	}
	m.login.busy = true
	m.login.err = ""
	client, ctx := m.client, m.ctx
	return m, func() tea.Msg {
		return loginDoneMsg{err: client.Login(ctx, user, pass, otp)}
	}
}

func (m Model) handleLoginDone(msg loginDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.login.reset()
		m.login.err = api.Describe(msg.err)
		m.logger.Info("login failed")
		return m, nil
	}
	user, _, _ := m.login.values()
	m.username = user
	m.login.reset()
	m.login.err = ""
	m.ctrl.LoggedIn()
	m = m.syncState()
	m.input.Focus()

	cmds := []tea.Cmd{m.loadCmd()}
	if !m.subscribed {
		m.subscribed = true
		cmds = append(cmds, m.subscribeCmd())
	}
	return m, tea.Batch(cmds...)
}

// =============================================================================
// LOGIN VIEW
// =============================================================================

func (m Model) viewLogin() string {
	t := m.theme
	labels := [fieldCount]string{"Username", "Password", "Code"}

	var b strings.Builder
	b.WriteString(t.LoginTitle.Render("Sign in to " + m.client.BaseURL()))
	b.WriteString("\n")
	for i, f := range m.login.fields {
		b.WriteString(t.LoginLabel.Render(labels[i]))
		b.WriteString(f.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.login.busy:
		b.WriteString(t.Typing.Render("Signing in..."))
	case m.login.err != "":
		b.WriteString(t.ErrorText.Render(m.login.err))
	default:
		b.WriteString(t.ShortcutDesc.Render("Enter to sign in, Tab to move, Ctrl+C to quit"))
	}

	box := t.LoginBox.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
