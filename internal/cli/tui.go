// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/session"
	"github.com/jeranaias/chatterm/internal/ui/chat"
	"github.com/jeranaias/chatterm/internal/ui/styles"
)

// RunTUI starts the full-screen chat interface.
func RunTUI(ctx context.Context, args Args) error {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, args, true)
	defer func() { _ = logger.Sync() }()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	if !IsTTY() || !IsStdoutTTY() {
		return ErrNoTTY
	}

	ctrl := session.NewController(client).WithLogger(logger.Named("session"))
	logger.Info("starting tui", zap.String("server", client.BaseURL()))

	return chat.Run(ctx, chat.Options{
		Client:     client,
		Controller: ctrl,
		Config:     cfg,
		Theme:      styles.NewTheme(cfg.IsDark(styles.DetectDark)),
		Logger:     logger.Named("tui"),
		SaveConfig: func(c *config.Config) error {
			if err := config.SaveTOML(c, path); err != nil {
				return err
			}
			config.SetGlobal(c)
			return nil
		},
		ConfigPath: path,
	})
}
