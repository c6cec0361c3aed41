// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	gutil "github.com/yuin/goldmark/util"
)

// =============================================================================
// CODE HIGHLIGHTING
// =============================================================================

// codeHighlighter renders fenced code blocks through chroma using CSS
// classes. The stylesheet for the chosen style is emitted once per page.
type codeHighlighter struct {
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

func newCodeHighlighter(theme string) *codeHighlighter {
	name := "monokai"
	if theme == "light" {
		name = "github"
	}
	return &codeHighlighter{
		formatter: chromahtml.New(chromahtml.WithClasses(true)),
		style:     styles.Get(name),
	}
}

// RegisterFuncs implements renderer.NodeRenderer.
func (h *codeHighlighter) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, h.renderFenced)
}

func (h *codeHighlighter) renderFenced(w gutil.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	lexer := lexers.Get(strings.TrimSpace(string(n.Language(source))))
	if lexer == nil {
		lexer = lexers.Fallback
	}
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code.String())
	if err != nil {
		return ast.WalkStop, err
	}
	if err := h.formatter.Format(w, h.style, it); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}

// stylesheet returns the CSS rules for the highlighter's style.
func (h *codeHighlighter) stylesheet() string {
	var buf bytes.Buffer
	if err := h.formatter.WriteCSS(&buf, h.style); err != nil {
		return ""
	}
	return buf.String()
}

// prioritized wraps the highlighter for goldmark's renderer options.
func (h *codeHighlighter) prioritized() gutil.PrioritizedValue {
	return gutil.Prioritized(h, 100)
}
