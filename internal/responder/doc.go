// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package responder produces bot replies for the chat server.
//
// # Key Types
//
//   - Responder: backend interface (Echo, Ollama, OpenAI)
//   - Turn: one prompt message
//   - Document: an uploaded file whose text may be quoted into the prompt
//
// # Usage
//
//	r, err := responder.New(cfg.Responder)
//	turns := responder.BuildPrompt(cfg.Responder.SystemPrompt, history, text, doc)
//	reply, err := responder.Answer(ctx, r, responder.Fit(turns, cfg.Responder.MaxContextTokens))
package responder
