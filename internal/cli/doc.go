// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and command handlers for
// chatterm.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: parsed global flags plus the command's own arguments
//   - ArgParser: flag and positional parsing shared by all commands
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	os.Exit(cli.Run(ctx, cmd, args))
//
// # Commands Overview
//
//   - tui: full-screen chat (default)
//   - chat: line-mode chat with input history
//   - serve: run the reference backend
//   - user: create accounts and enroll one-time codes
//   - export: write conversations to Markdown, JSON or HTML
//   - config: show and edit settings
package cli
