// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation fetched from the backend to a file.
//
// # Key Types
//
//   - Conversation: id, title and messages to export
//   - Exporter: format interface (Markdown, JSON, HTML)
//   - Options: output directory, metadata and theme
//
// # Supported Formats
//
//   - Markdown: frontmatter plus one section per message
//   - JSON: the wire message shape, for re-reading
//   - HTML: goldmark-rendered and bluemonday-sanitized
//
// # Usage
//
//	exp, err := export.New("html", opts)
//	path, err := export.ExportToFile(conv, exp, opts)
package export
