// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT
	// ==========================================================================

	App         lipgloss.Style
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderUser  lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarActive   lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarNew      lipgloss.Style
	SidebarDelete   lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel  lipgloss.Style
	BotLabel   lipgloss.Style
	UserBubble lipgloss.Style
	BotBubble  lipgloss.Style
	Bold       lipgloss.Style
	Typing     lipgloss.Style

	// ==========================================================================
	// CONFIRMATION
	// ==========================================================================

	ConfirmBox    lipgloss.Style
	ConfirmPrompt lipgloss.Style
	Button        lipgloss.Style
	ButtonDanger  lipgloss.Style
	ButtonFocused lipgloss.Style

	// ==========================================================================
	// INPUT, STATUS AND LOGIN
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	StatusBar      lipgloss.Style
	ShortcutKey    lipgloss.Style
	ShortcutDesc   lipgloss.Style
	ErrorText      lipgloss.Style
	InfoText       lipgloss.Style
	LoginBox       lipgloss.Style
	LoginTitle     lipgloss.Style
	LoginLabel     lipgloss.Style
}

// NewTheme creates a theme for a dark or light background. AdaptiveColor
// resolution follows the same setting.
func NewTheme(dark bool) *Theme {
	t := &Theme{ColorProfile: termenv.ColorProfile()}
	t.SetDark(dark)
	return t
}

// DetectDark reports whether the terminal background is dark.
func DetectDark() bool {
	return termenv.HasDarkBackground()
}

// SetDark switches the palette and rebuilds every style.
func (t *Theme) SetDark(dark bool) {
	t.IsDark = dark
	lipgloss.SetHasDarkBackground(dark)
	t.initStyles()
}

// Toggle flips between dark and light and returns the new setting.
func (t *Theme) Toggle() bool {
	t.SetDark(!t.IsDark)
	return t.IsDark
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle()

	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.HeaderUser = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	// Sidebar
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.SidebarTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextSecondary).
		MarginBottom(1)

	t.SidebarItem = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.SidebarActive = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.SidebarSelected = lipgloss.NewStyle().
		Background(SelectionBg).
		Foreground(TextPrimary)

	t.SidebarNew = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.SidebarDelete = lipgloss.NewStyle().
		Foreground(Rose)

	// Messages
	t.UserLabel = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.BotLabel = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1).
		MarginBottom(1)

	t.BotBubble = lipgloss.NewStyle().
		Foreground(BotBubbleFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(BotBubbleBorder).
		PaddingLeft(1).
		MarginBottom(1)

	t.Bold = lipgloss.NewStyle().Bold(true)

	t.Typing = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	// Confirmation
	t.ConfirmBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Amber).
		Padding(0, 1).
		MarginBottom(1)

	t.ConfirmPrompt = lipgloss.NewStyle().
		Foreground(Amber)

	t.Button = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(Overlay).
		Padding(0, 1).
		MarginRight(1)

	t.ButtonDanger = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Rose).
		Padding(0, 1).
		MarginRight(1)

	t.ButtonFocused = lipgloss.NewStyle().
		Underline(true).
		Bold(true)

	// Input, status and login
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose)

	t.InfoText = lipgloss.NewStyle().
		Foreground(Emerald)

	t.LoginBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 3)

	t.LoginTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		MarginBottom(1)

	t.LoginLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Width(10)
}
