// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package responder

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI answers through any OpenAI-compatible endpoint (OpenAI, Groq,
// OpenRouter, vLLM).
type OpenAI struct {
	llm   llms.Model
	model string
}

// NewOpenAI creates an OpenAI-compatible responder.
func NewOpenAI(baseURL, token, model string) (*OpenAI, error) {
	opts := []openai.Option{openai.WithToken(token)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAI{llm: llm, model: model}, nil
}

func (o *OpenAI) Name() string { return "openai/" + o.model }

func (o *OpenAI) Reply(ctx context.Context, turns []Turn) (string, error) {
	content := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		content = append(content, llms.TextParts(chatMessageType(t.Role), t.Content))
	}
	resp, err := o.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai generate: empty response")
	}
	return resp.Choices[0].Content, nil
}

func chatMessageType(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
