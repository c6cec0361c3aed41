// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// # Key Types
//
//   - Client: backend client with conversation, chat and account calls
//   - ChatRequest / ChatResponse: multipart POST /chat exchange
//   - APIError: non-2xx response, unwrapping to ErrUnauthorized and friends
//   - FileJar: cookie jar persisted to disk
//   - Event: websocket push notification from /events
//
// # Usage
//
//	client, _ := api.NewClient("http://127.0.0.1:5000")
//	convs, err := client.ListConversations(ctx)
//	if api.IsUnauthorized(err) {
//	    // show login
//	}
//	resp, err := client.SendMessage(ctx, api.ChatRequest{Message: "Hello"})
package api
