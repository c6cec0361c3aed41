// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"

	"github.com/jeranaias/chatterm/internal/render"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page. Message
// markdown is converted with goldmark and the result is passed through a
// bluemonday UGC policy, so raw HTML in a message never reaches the page.
// Fenced code blocks are highlighted with chroma.
type HTMLExporter struct {
	options   *Options
	md        goldmark.Markdown
	policy    *bluemonday.Policy
	highlight *codeHighlighter
}

var chromaClass = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	hl := newCodeHighlighter(opts.Theme)
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(chromaClass).OnElements("pre", "code", "span")
	return &HTMLExporter{
		options: opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(renderer.WithNodeRenderers(hl.prioritized())),
		),
		policy:    policy,
		highlight: hl,
	}
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv *Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	title := html.EscapeString(render.Sanitize(displayTitle(conv)))
	theme := "dark"
	if e.options.Theme == "light" {
		theme = "light"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", title))
	sb.WriteString("    <meta name=\"generator\" content=\"chatterm\">\n")
	sb.WriteString(css)
	sb.WriteString("    <style>\n")
	sb.WriteString(e.highlight.stylesheet())
	sb.WriteString("    </style>\n")
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))
	sb.WriteString("    <div class=\"container\">\n")

	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", title))
	if e.options.IncludeMetadata {
		sb.WriteString(fmt.Sprintf("            <p class=\"metadata\">Conversation %s &middot; %d messages &middot; exported %s</p>\n",
			html.EscapeString(conv.ID.String()),
			len(conv.Messages),
			e.options.now().Format(time.RFC3339)))
	}
	sb.WriteString("        </header>\n")

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range conv.Messages {
		body, err := e.renderMarkdown(msg.Text)
		if err != nil {
			return nil, err
		}
		sb.WriteString(fmt.Sprintf("            <section class=\"message %s\">\n", msg.Sender))
		sb.WriteString(fmt.Sprintf("                <div class=\"sender\">%s</div>\n", html.EscapeString(msg.Sender.DisplayName())))
		sb.WriteString("                <div class=\"content\">")
		sb.WriteString(body)
		sb.WriteString("</div>\n            </section>\n")
	}
	sb.WriteString("        </main>\n")
	sb.WriteString("    </div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// renderMarkdown converts one message to sanitized HTML.
func (e *HTMLExporter) renderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(render.Sanitize(text)), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return string(e.policy.SanitizeBytes(buf.Bytes())), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

const css = `    <style>
        :root { --radius: 8px; }
        body { margin: 0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.5; }
        .dark-theme { background: #1e1e2e; color: #cdd6f4; }
        .light-theme { background: #fafafa; color: #1e1e2e; }
        .container { max-width: 860px; margin: 0 auto; padding: 2rem 1rem; }
        .header h1 { margin: 0 0 .25rem; }
        .metadata { opacity: .7; font-size: .9rem; margin: 0 0 1.5rem; }
        .message { border-radius: var(--radius); padding: .75rem 1rem; margin-bottom: 1rem; }
        .dark-theme .message.user { background: #313244; }
        .dark-theme .message.bot { background: #181825; }
        .light-theme .message.user { background: #e3eefc; }
        .light-theme .message.bot { background: #ffffff; border: 1px solid #e0e0e0; }
        .sender { font-weight: 600; font-size: .85rem; opacity: .8; margin-bottom: .25rem; }
        .content p:first-child { margin-top: 0; }
        .content p:last-child { margin-bottom: 0; }
        pre { overflow-x: auto; padding: .75rem; border-radius: var(--radius); background: rgba(127,127,127,.15); }
    </style>
`
