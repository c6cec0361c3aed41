// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap loggers used by the client and the server.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, sink and encoding for a logger.
type Config struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// File is the output path. Empty means stderr.
	File string

	// Console selects the human-readable encoder instead of JSON.
	Console bool
}

// New builds a logger from cfg.
//
// The TUI always passes a File: stdout and stderr belong to the terminal
// renderer while the program runs.
func New(cfg Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zcfg.Level = lvl

	if cfg.Console {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.Sampling = nil

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Must is New for main packages: it falls back to a no-op logger and
// reports the problem on stderr instead of failing start-up.
func Must(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (logging disabled)\n", err)
		return zap.NewNop()
	}
	return logger
}
