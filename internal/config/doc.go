// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for chatterm.
//
// # Key Types
//
//   - Config: root configuration with client, ui, server, responder and log sections
//   - ValidationError / ValidateErrors: field-level validation failures
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    // cfg still holds defaults when only the file failed to parse
//	}
//	_ = cfg.Set("ui.theme", "light")
//	_ = config.Save(cfg)
//
// Reload on change:
//
//	go config.Watch(ctx, path, func(cfg *config.Config, err error) { ... })
//
// # Environment
//
// CHATTERM_HOME relocates the config directory. CHATTERM_* variables
// override individual keys; see Config.ApplyEnvOverrides.
package config
