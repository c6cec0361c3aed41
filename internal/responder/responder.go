// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package responder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// FallbackReply is stored when no prompt could be built.
	FallbackReply = "Sorry, something went wrong."

	// MaxDocumentChars caps extracted document text placed in the prompt.
	MaxDocumentChars = 4000
)

// textExtensions lists uploads whose bytes are used as document text.
var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
}

// ErrUnknownBackend is returned by New for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown responder backend")

// =============================================================================
// TYPES
// =============================================================================

// Role is a prompt turn role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a prompt.
type Turn struct {
	Role    Role
	Content string
}

// Document is an uploaded file.
type Document struct {
	Name string
	Data []byte
}

// Responder produces a bot reply for a prompt.
type Responder interface {
	// Name identifies the backend in logs.
	Name() string
	// Reply returns the assistant text for the given turns.
	Reply(ctx context.Context, turns []Turn) (string, error)
}

// Checker is implemented by responders that can verify their backend is
// ready before serving.
type Checker interface {
	Check(ctx context.Context) error
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// New builds the responder selected by cfg.Backend.
func New(cfg config.ResponderConfig) (Responder, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.BackendEcho:
		return Echo{}, nil
	case config.BackendOllama:
		return NewOllama(cfg.BaseURL, cfg.Model), nil
	case config.BackendOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// =============================================================================
// PROMPT BUILDING
// =============================================================================

// ExtractText returns the document text usable in a prompt, truncated to
// MaxDocumentChars. Unsupported types yield "".
func ExtractText(doc *Document) string {
	if doc == nil || !textExtensions[strings.ToLower(filepath.Ext(doc.Name))] {
		return ""
	}
	runes := []rune(strings.ToValidUTF8(string(doc.Data), ""))
	if len(runes) > MaxDocumentChars {
		runes = runes[:MaxDocumentChars]
	}
	return string(runes)
}

// BuildPrompt assembles the system prompt, prior history and the new user
// turn. It returns only the system turn when there is nothing to answer.
func BuildPrompt(system string, history []model.Message, text string, doc *Document) []Turn {
	if system == "" {
		system = config.DefaultSystemPrompt
	}
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{Role: RoleSystem, Content: system})
	for _, m := range history {
		role := RoleAssistant
		if m.IsUser() {
			role = RoleUser
		}
		turns = append(turns, Turn{Role: role, Content: m.Text})
	}

	switch {
	case doc != nil:
		turns = append(turns, Turn{
			Role: RoleUser,
			Content: fmt.Sprintf("Use the following document text to answer my questions:\n\n---\n%s\n---\n\n%s",
				ExtractText(doc), text),
		})
	case text != "":
		turns = append(turns, Turn{Role: RoleUser, Content: text})
	}
	return turns
}

// Answer runs r over turns, returning FallbackReply without calling the
// backend when turns holds only the system prompt.
func Answer(ctx context.Context, r Responder, turns []Turn) (string, error) {
	if len(turns) <= 1 {
		return FallbackReply, nil
	}
	return r.Reply(ctx, turns)
}

// =============================================================================
// ECHO
// =============================================================================

// Echo replies with the last user turn. It needs no model and backs tests
// and offline demos.
type Echo struct{}

func (Echo) Name() string { return config.BackendEcho }

func (Echo) Reply(ctx context.Context, turns []Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return "**Echo:** " + turns[i].Content, nil
		}
	}
	return FallbackReply, nil
}
