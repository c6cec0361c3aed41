// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for a local Ollama server, used
// to produce bot replies.
//
// # Key Types
//
//   - Client: API client with CheckRunning, ListModels and Chat
//   - Message, ChatRequest, ChatResponse: /api/chat wire types
//   - ClientError: typed error; compare with errors.Is against ErrNotRunning,
//     ErrTimeout or ErrModelNotFound
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	resp, err := client.Chat(ctx, "llama3.2", []ollama.Message{
//	    ollama.NewSystemMessage("You are a helpful AI assistant."),
//	    ollama.NewUserMessage("Hi"),
//	}, nil)
package ollama
