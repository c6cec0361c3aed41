// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/responder"
	"github.com/jeranaias/chatterm/internal/server"
	"github.com/jeranaias/chatterm/internal/storage"
)

// RunServe runs the reference backend until ctx is cancelled.
//
// Flags: --addr, --db, --responder, --model.
func RunServe(ctx context.Context, args Args) error {
	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	p := args.Parser()
	if v := p.Flag("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := p.Flag("db"); v != "" {
		cfg.Server.DBPath = v
	}
	if v := p.Flag("responder"); v != "" {
		cfg.Responder.Backend = v
	}
	if v := p.Flag("model"); v != "" {
		cfg.Responder.Model = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, args, false).Named("server")
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bot, err := responder.New(cfg.Responder)
	if err != nil {
		return err
	}
	if c, ok := bot.(responder.Checker); ok {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.Check(checkCtx); err != nil {
			logger.Warn("responder not ready; replies will fail until it is", zap.String("responder", bot.Name()), zap.Error(err))
		}
		cancel()
	}

	logger.Info("starting server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("db", cfg.Server.DBPath),
		zap.String("responder", bot.Name()),
		zap.String("version", server.Version))

	return server.New(cfg, store, bot, logger).ListenAndServe(ctx)
}

// openStore opens the database named in the server config.
func openStore(cfg *config.Config) (*storage.Store, error) {
	path := cfg.Server.DBPath
	if path != ":memory:" {
		path = config.ResolvePath(path)
	}
	return storage.Open(path)
}
