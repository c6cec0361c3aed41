// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/chatterm/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports conversations to JSON. Messages keep the wire shape
// {sender, message} so the output can be read back with model.Message.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonDocument struct {
	ID         model.ConversationID `json:"id"`
	Title      string               `json:"title"`
	ExportedAt *time.Time           `json:"exported_at,omitempty"`
	Messages   []model.Message      `json:"messages"`
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv *Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	doc := jsonDocument{
		ID:       conv.ID,
		Title:    conv.Title,
		Messages: conv.Messages,
	}
	if doc.Messages == nil {
		doc.Messages = []model.Message{}
	}
	if e.options.IncludeMetadata {
		now := e.options.now().UTC()
		doc.ExportedAt = &now
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
