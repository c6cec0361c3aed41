// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/export"
	"github.com/jeranaias/chatterm/internal/model"
)

// RunExport writes conversations fetched from the backend to files.
//
//	chatterm export <id|all> [--format md|json|html] [--out DIR] [--open]
func RunExport(ctx context.Context, args Args) error {
	p := args.Parser("open", "no-metadata")
	target := p.Positional(0)
	if target == "" {
		return ErrMissingArgument("conversation", "chatterm export 12 --format html")
	}

	opts := export.DefaultOptions()
	opts.OutputDir = p.FlagOrDefault("out", ".")
	opts.OpenAfterExport = p.BoolFlag("open")
	opts.IncludeMetadata = !p.BoolFlag("no-metadata")

	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	if p.Flag("theme") != "" {
		opts.Theme = p.Flag("theme")
	} else if !cfg.IsDark(nil) {
		opts.Theme = "light"
	}
	exporter, err := export.New(p.FlagOrDefault("format", "md"), opts)
	if err != nil {
		return NewValidationErrorWithExample("format", p.Flag("format"), err.Error(), "--format md|json|html")
	}

	logger := newLogger(cfg, args, true)
	defer func() { _ = logger.Sync() }()
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	convs, err := client.ListConversations(ctx)
	if err != nil {
		return err
	}
	if target != "all" {
		id := model.ParseConversationID(target)
		var found []model.Conversation
		for _, c := range convs {
			if c.ID == id {
				found = append(found, c)
			}
		}
		if len(found) == 0 {
			return NewValidationError("conversation", target, "not found in your conversations")
		}
		convs = found
	}

	var written []string
	for _, c := range convs {
		msgs, err := client.GetChat(ctx, c.ID)
		if err != nil {
			return NewCommandError("export", c.ID.String(), "could not fetch messages", err)
		}
		path, err := export.ExportToFile(&export.Conversation{ID: c.ID, Title: c.DisplayTitle(), Messages: msgs}, exporter, opts)
		if err != nil {
			return err
		}
		logger.Info("exported conversation", zap.String("conversation_id", c.ID.String()), zap.String("path", path))
		written = append(written, path)
	}

	if args.JSON {
		return writeJSON(os.Stdout, map[string]interface{}{"files": written})
	}
	for _, path := range written {
		fmt.Println(SuccessStyle.Render("Exported ") + path)
	}
	if len(written) == 0 && !args.Quiet {
		fmt.Println(DimStyle.Render("No conversations to export."))
	}
	return nil
}
