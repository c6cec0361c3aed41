// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/render"
	"github.com/jeranaias/chatterm/internal/session"
	"github.com/jeranaias/chatterm/internal/ui/styles"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// VoiceUnsupported is shown when voice input is requested.
	VoiceUnsupported = "Sorry, your terminal does not support voice recognition."

	// sidebarWidth is the sidebar column width including its border.
	sidebarWidth = 30

	// minChatWidth hides the sidebar on narrower terminals.
	minChatWidth = 40

	// maxUploadBytes caps /file attachments.
	maxUploadBytes = 16 << 20
)

// focus selects which pane receives navigation keys.
type focus int

const (
	focusInput focus = iota
	focusSidebar
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options wires the chat model to its collaborators.
type Options struct {
	Client     *api.Client
	Controller *session.Controller
	Config     *config.Config
	Theme      *styles.Theme
	Logger     *zap.Logger

	// SaveConfig persists UI preferences; nil disables persistence.
	SaveConfig func(*config.Config) error

	// CopyText writes to the system clipboard; nil disables ctrl+y.
	CopyText func(string) error

	// Username is shown in the header once known.
	Username string

	// ConfigPath is watched for UI changes; empty disables watching.
	ConfigPath string
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx    context.Context
	client *api.Client
	ctrl   *session.Controller
	cfg    *config.Config
	theme  *styles.Theme
	render *render.Renderer
	logger *zap.Logger
	keyMap KeyMap

	saveConfig func(*config.Config) error
	copyText   func(string) error
	send       func(tea.Msg)

	// Snapshot of the controller as of the last stateChangedMsg.
	state session.State

	// Dimensions
	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	login    loginForm

	focus       focus
	selected    int
	showSidebar bool
	username    string

	// lastCount tracks rendered entries to scroll on new messages.
	lastCount int

	notice      string
	noticeIsErr bool

	subscribed bool
}

// New creates the chat model.
func New(ctx context.Context, opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Global().Clone()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme(cfg.IsDark(styles.DetectDark))
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message, or /help"
	ti.CharLimit = 8192
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
		FPS:    time.Second / 6,
	}

	r := render.New(render.ParseMode(cfg.UI.Markdown), 80, theme.IsDark).WithBoldStyle(theme.Bold)

	m := Model{
		ctx:         ctx,
		client:      opts.Client,
		ctrl:        opts.Controller,
		cfg:         cfg,
		theme:       theme,
		render:      r,
		logger:      logger,
		keyMap:      DefaultKeyMap(),
		saveConfig:  opts.SaveConfig,
		copyText:    opts.CopyText,
		viewport:    viewport.New(80, 20),
		input:       ti,
		spinner:     sp,
		login:       newLoginForm(),
		showSidebar: cfg.UI.Sidebar,
		username:    opts.Username,
	}
	m.state = m.ctrl.Snapshot()
	return m
}

// WithSender sets the function used to deliver push events and controller
// changes from background goroutines, normally tea.Program.Send.
func (m Model) WithSender(send func(tea.Msg)) Model {
	m.send = send
	m.subscribed = send != nil && m.cfg.Client.LiveRefresh
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init loads the conversation list and starts the live event stream.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.loadCmd(), m.subscribeCmd())
}

// View renders the current screen.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.state.Route == session.RouteLogin {
		return m.viewLogin()
	}
	return m.viewChat()
}

// =============================================================================
// BACKGROUND COMMANDS
// =============================================================================

func (m Model) loadCmd() tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "load", err: ctrl.LoadConversations(ctx)}
	}
}

func (m Model) dispatchCmd(a session.Action) tea.Cmd {
	if a == nil {
		return nil
	}
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: a.Name(), err: ctrl.Actions().Dispatch(ctx, a)}
	}
}

func (m Model) sendCmd(text string, file *api.Attachment) tea.Cmd {
	ctrl, ctx := m.ctrl, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "send", err: ctrl.SendMessage(ctx, text, file)}
	}
}

// subscribeCmd opens the push stream once per login when live refresh is
// enabled and a sender is available.
func (m Model) subscribeCmd() tea.Cmd {
	if !m.cfg.Client.LiveRefresh || m.send == nil || m.client == nil {
		return nil
	}
	client, ctx, send := m.client, m.ctx, m.send
	return func() tea.Msg {
		err := client.Subscribe(ctx, func(ev api.Event) { send(eventMsg(ev)) })
		return subscribeEndedMsg{err: err}
	}
}
