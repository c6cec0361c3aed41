// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/logging"
)

// =============================================================================
// SHARED SETUP
// =============================================================================

// loadConfig loads the configuration named by --config, or the default
// file, and applies --server. The returned path is where edits are saved.
func loadConfig(args Args) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if args.ConfigPath != "" {
		path = args.ConfigPath
		cfg, err = config.LoadFromPath(path)
	} else {
		path, err = config.ConfigPathTOML()
		if err != nil {
			return nil, "", err
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if args.ServerURL != "" {
		cfg.Client.ServerURL = args.ServerURL
	}
	config.SetGlobal(cfg)
	return cfg, path, nil
}

// newLogger builds the process logger. Interactive front ends log to a file
// because the terminal belongs to the UI.
func newLogger(cfg *config.Config, args Args, interactive bool) *zap.Logger {
	lc := logging.Config{Level: cfg.Log.Level, Console: !interactive}
	if args.Verbose {
		lc.Level = "debug"
	}
	if args.Quiet && !interactive {
		lc.Level = "warn"
	}
	if interactive {
		lc.File = config.ResolvePath(cfg.Log.File)
		if lc.File == "" {
			lc.File = config.ResolvePath(filepath.Join("logs", "chatterm.log"))
		}
	}
	return logging.Must(lc)
}

// newClient creates the API client with the persisted cookie jar.
func newClient(cfg *config.Config, logger *zap.Logger) (*api.Client, error) {
	client, err := api.NewClient(cfg.Client.ServerURL)
	if err != nil {
		return nil, err
	}
	client.WithLogger(logger)
	if t := cfg.Client.RequestTimeout(); t > 0 {
		client.WithTimeout(t)
	}
	if cfg.Client.CookieFile != "" {
		if err := config.EnsureConfigDir(); err != nil {
			return nil, err
		}
		jar, err := api.NewFileJar(config.ResolvePath(cfg.Client.CookieFile), client.BaseURL())
		if err != nil {
			logger.Warn("ignoring unreadable cookie file", zap.Error(err))
		} else {
			client.WithCookieJar(jar)
		}
	}
	return client, nil
}

// clearSession drops persisted cookies after a logout.
func clearSession(client *api.Client) {
	if jar, ok := client.CookieJar().(*api.FileJar); ok {
		_ = jar.Clear()
	}
}
