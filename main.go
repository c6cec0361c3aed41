// chatterm - terminal chat client and reference server.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/chatterm/internal/cli"
)

// Version information (set at build time)
var (
	Version   = ""
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if Version != "" {
		cli.Version = Version
	}
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, args := cli.Parse(os.Args[1:])
	code := cli.Run(ctx, cmd, args)
	stop()
	os.Exit(code)
}
