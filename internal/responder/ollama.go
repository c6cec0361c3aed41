// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/chatterm/internal/ollama"
)

// Ollama answers through a local Ollama server.
type Ollama struct {
	client *ollama.Client
	model  string
}

// NewOllama creates an Ollama responder. Empty arguments take the client
// defaults.
func NewOllama(baseURL, model string) *Ollama {
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: baseURL, DefaultModel: model})
	return &Ollama{client: client, model: client.DefaultModel()}
}

func (o *Ollama) Name() string { return "ollama/" + o.model }

func (o *Ollama) Reply(ctx context.Context, turns []Turn) (string, error) {
	msgs := make([]ollama.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, ollama.Message{Role: string(t.Role), Content: t.Content})
	}
	resp, err := o.client.Chat(ctx, o.model, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return resp.Message.Content, nil
}

// Check reports whether the Ollama server is reachable and has the model.
func (o *Ollama) Check(ctx context.Context) error {
	if err := o.client.CheckRunning(ctx); err != nil {
		return err
	}
	models, err := o.client.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m.Name == o.model || strings.TrimSuffix(m.Name, ":latest") == o.model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (try `ollama pull %s`)", ollama.ErrModelNotFound, o.model, o.model)
}
