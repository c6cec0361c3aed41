// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatterm/internal/model"
)

func fixedOptions(t *testing.T) *Options {
	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return opts
}

func sample() *Conversation {
	return &Conversation{
		ID:    "7",
		Title: "Trip: planning",
		Messages: []model.Message{
			model.NewUserMessage("Hi"),
			model.NewBotMessage("**Hello!**\nHow can I help?"),
		},
	}
}

func TestNew(t *testing.T) {
	for format, ext := range map[string]string{"md": ".md", "Markdown": ".md", "json": ".json", "htm": ".html"} {
		e, err := New(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, e.FileExtension())
	}
	_, err := New("pdf", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(fixedOptions(t)).Export(sample())
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "---\ntitle: \"Trip: planning\"\n"))
	assert.Contains(t, s, "exported: 2025-03-01T12:00:00Z")
	assert.Contains(t, s, "# Trip: planning\n")
	assert.Contains(t, s, "### You\n\nHi\n")
	assert.Contains(t, s, "### Bot\n\n**Hello!**\nHow can I help?")
}

func TestMarkdownExporter_StripsControlSequences(t *testing.T) {
	conv := &Conversation{ID: "1", Messages: []model.Message{model.NewBotMessage("\x1b[31mred\x1b[0m\x07")}}
	opts := fixedOptions(t)
	opts.IncludeMetadata = false
	out, err := NewMarkdownExporter(opts).Export(conv)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "\x1b")
	assert.Contains(t, string(out), "# Conversation 1")
	assert.Contains(t, string(out), "red")
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(fixedOptions(t)).Export(sample())
	require.NoError(t, err)

	var doc struct {
		ID       int             `json:"id"`
		Title    string          `json:"title"`
		Messages []model.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, 7, doc.ID)
	require.Len(t, doc.Messages, 2)
	assert.Equal(t, model.SenderBot, doc.Messages[1].Sender)
}

func TestHTMLExporter_SanitizesMessages(t *testing.T) {
	conv := sample()
	conv.Title = "<b>x</b>"
	conv.Messages = append(conv.Messages,
		model.NewBotMessage(`<script>alert(1)</script><img src=x onerror=alert(2)>`))

	out, err := NewHTMLExporter(fixedOptions(t)).Export(conv)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, "<title>&lt;b&gt;x&lt;/b&gt;</title>")
	assert.Contains(t, s, "<strong>Hello!</strong>")
	assert.NotContains(t, s, "<script>alert")
	assert.NotContains(t, s, "onerror")
	assert.Contains(t, s, `class="dark-theme"`)
}

func TestHTMLExporter_HighlightsCode(t *testing.T) {
	conv := sample()
	conv.Messages = append(conv.Messages,
		model.NewBotMessage("```go\nfunc main() {}\n```"))

	out, err := NewHTMLExporter(fixedOptions(t)).Export(conv)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, `class="chroma"`)
	assert.Contains(t, s, ".chroma")
	assert.Contains(t, s, "main")
}

func TestExportToFile(t *testing.T) {
	opts := fixedOptions(t)
	path, err := ExportToFile(sample(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)

	assert.Equal(t, "conversation_Trip-_planning_20250301_120000.md", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "### Bot")
}

func TestExport_Nil(t *testing.T) {
	_, err := NewHTMLExporter(nil).Export(nil)
	assert.True(t, errors.Is(err, ErrNilConversation))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.Equal(t, "a-b_c", sanitizeFilename("a/b c"))
	assert.Len(t, []rune(sanitizeFilename(strings.Repeat("x", 80))), 50)
}
