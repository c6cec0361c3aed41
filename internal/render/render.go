// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns message text into terminal output.
//
// All text is sanitized first: terminal escape sequences and control
// characters other than newline and tab are removed, so server or user text
// can never drive the terminal. Formatting is applied afterwards.
package render

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Mode selects how much markdown is interpreted.
type Mode string

const (
	// ModeMinimal handles **bold** spans and newlines only.
	ModeMinimal Mode = "minimal"
	// ModeFull renders full markdown with glamour.
	ModeFull Mode = "full"
	// ModePlain applies no formatting at all.
	ModePlain Mode = "plain"
)

// ParseMode parses a config value, defaulting to ModeMinimal.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull
	case ModePlain:
		return ModePlain
	default:
		return ModeMinimal
	}
}

// boldPattern matches a non-greedy **bold** span on a single line.
var boldPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)

// =============================================================================
// SANITIZING
// =============================================================================

// Sanitize strips ANSI/OSC escape sequences and control characters, keeping
// newlines and tabs. Carriage returns are dropped so "\r\n" becomes "\n".
func Sanitize(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20, r == 0x7f:
			return -1
		case r >= 0x80 && r <= 0x9f:
			return -1
		default:
			return r
		}
	}, s)
}

// =============================================================================
// MINIMAL MARKDOWN
// =============================================================================

// Minimal sanitizes text and renders each **span** with bold. The transform
// is not recursive: markers inside a bold span are left as-is, and newlines
// are preserved.
func Minimal(text string, bold lipgloss.Style) string {
	text = Sanitize(text)
	return boldPattern.ReplaceAllStringFunc(text, func(m string) string {
		inner := boldPattern.FindStringSubmatch(m)[1]
		return bold.Render(inner)
	})
}

// StripMarkers sanitizes text and removes the ** markers, for plain output.
func StripMarkers(text string) string {
	return boldPattern.ReplaceAllString(Sanitize(text), "$1")
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer renders message bodies in a fixed mode. It is safe for
// concurrent use.
type Renderer struct {
	mu    sync.Mutex
	mode  Mode
	width int
	dark  bool
	bold  lipgloss.Style
	term  *glamour.TermRenderer
}

// New creates a renderer. width is the word-wrap width for full mode.
func New(mode Mode, width int, dark bool) *Renderer {
	return &Renderer{
		mode:  mode,
		width: width,
		dark:  dark,
		bold:  lipgloss.NewStyle().Bold(true),
	}
}

// WithBoldStyle overrides the style used for **bold** spans.
func (r *Renderer) WithBoldStyle(s lipgloss.Style) *Renderer {
	r.bold = s
	return r
}

// Mode returns the rendering mode.
func (r *Renderer) Mode() Mode {
	return r.mode
}

// SetWidth changes the wrap width; the glamour renderer is rebuilt lazily.
func (r *Renderer) SetWidth(width int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width != r.width {
		r.width = width
		r.term = nil
	}
}

// SetDark switches between the dark and light glamour styles.
func (r *Renderer) SetDark(dark bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dark != r.dark {
		r.dark = dark
		r.term = nil
	}
}

// Render formats text. Full mode falls back to minimal when glamour fails.
func (r *Renderer) Render(text string) string {
	switch r.mode {
	case ModePlain:
		return StripMarkers(text)
	case ModeFull:
		out, err := r.renderFull(Sanitize(text))
		if err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return Minimal(text, r.bold)
}

func (r *Renderer) renderFull(text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.term == nil {
		style := "light"
		if r.dark {
			style = "dark"
		}
		width := r.width
		if width <= 0 {
			width = 80
		}
		term, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		r.term = term
	}
	return r.term.Render(text)
}
