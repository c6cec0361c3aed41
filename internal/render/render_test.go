// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

// marker is a style whose output is easy to assert on regardless of the
// terminal color profile.
var marker = lipgloss.NewStyle().SetString("<b>").Inline(true)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"newline and tab kept", "a\n\tb", "a\n\tb"},
		{"csi stripped", "\x1b[31mred\x1b[0m", "red"},
		{"osc stripped", "\x1b]0;title\x07text", "text"},
		{"bell dropped", "ding\x07", "ding"},
		{"carriage return dropped", "line\r\n", "line\n"},
		{"del dropped", "a\x7fb", "ab"},
		{"unicode kept", "héllo 世界", "héllo 世界"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMinimal_Bold(t *testing.T) {
	plain := lipgloss.NewStyle()
	assert.Equal(t, "a b c", Minimal("a **b** c", plain))
	assert.Equal(t, "x\ny", Minimal("x\ny", plain))
}

func TestMinimal_NonGreedyAndSingleLine(t *testing.T) {
	plain := lipgloss.NewStyle()
	assert.Equal(t, "one and two", Minimal("**one** and **two**", plain))
	// Spans do not cross newlines.
	assert.Equal(t, "**a\nb**", Minimal("**a\nb**", plain))
}

func TestMinimal_AppliesStyle(t *testing.T) {
	out := Minimal("say **hi**", marker)
	assert.True(t, strings.HasPrefix(out, "say "))
	assert.Contains(t, out, "hi")
	assert.NotContains(t, out, "**")
}

func TestMinimal_SanitizesBeforeFormatting(t *testing.T) {
	out := Minimal("**\x1b[2Jboom**", lipgloss.NewStyle())
	assert.Equal(t, "boom", out)
}

func TestStripMarkers(t *testing.T) {
	assert.Equal(t, "bold text", StripMarkers("**bold** text"))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeFull, ParseMode("FULL"))
	assert.Equal(t, ModePlain, ParseMode("plain"))
	assert.Equal(t, ModeMinimal, ParseMode(""))
	assert.Equal(t, ModeMinimal, ParseMode("bogus"))
}

func TestRenderer_Plain(t *testing.T) {
	r := New(ModePlain, 80, true)
	assert.Equal(t, "hi there", r.Render("**hi** there"))
}

func TestRenderer_Full(t *testing.T) {
	r := New(ModeFull, 60, true)
	out := r.Render("# Title\n\nSome **bold** text")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.NotContains(t, out, "**")

	r.SetWidth(40)
	r.SetDark(false)
	assert.Contains(t, r.Render("hello"), "hello")
}
