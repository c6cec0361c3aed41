// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the reference chat backend consumed by the
// terminal client.
//
// Endpoints:
//   - POST   /login                     - form login, sets the session cookie
//   - POST   /register                  - create an account and log in
//   - POST   /logout                    - end the session
//   - GET    /health                    - liveness and version
//   - GET    /get_conversations         - the user's conversations, newest first
//   - GET    /get_chat/{id}             - messages of one conversation
//   - POST   /chat                      - multipart message/file/conversation_id
//   - DELETE /delete_conversation/{id}  - remove a conversation
//   - GET    /events                    - websocket stream of list changes
//
// Every failure is a JSON body of the form {"error": "..."}. Requests pass
// through recovery, request logging, security headers and a per-IP token
// bucket.
package server
