// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/chatterm/internal/config"
)

// RunConfig shows and edits the configuration file.
func RunConfig(args Args) error {
	p := args.Parser("confirm")
	sub := p.Positional(0)
	cfg, path, err := loadConfig(args)
	if err != nil {
		// A broken file can still be located and reset.
		if sub != "path" && sub != "reset" {
			return err
		}
		cfg = config.Default()
	}

	switch sub {
	case "", "show":
		if args.JSON {
			return writeJSON(os.Stdout, redacted(cfg))
		}
		fmt.Println(TitleStyle.Render("Configuration") + " " + DimStyle.Render(path))
		fmt.Println(RenderSeparator())
		fmt.Println(cfg.String())
		return nil

	case "path":
		if args.JSON {
			return writeJSON(os.Stdout, map[string]string{"path": path})
		}
		fmt.Println(path)
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "chatterm config get ui.theme")
		}
		v, err := cfg.Get(key)
		if err != nil {
			return NewValidationError("key", key, err.Error())
		}
		fmt.Println(maskIfSecret(key, fmt.Sprint(v)))
		return nil

	case "set":
		key, value := p.Positional(1), strings.Join(p.PositionalFrom(2), " ")
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "chatterm config set client.server_url http://host:5000")
		}
		if err := cfg.Set(key, value); err != nil {
			return NewValidationError(key, value, err.Error())
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveTOML(cfg, path); err != nil {
			return NewCommandError("config", "set", "could not save", err)
		}
		config.SetGlobal(cfg)
		fmt.Println(SuccessStyle.Render("Set ") + key + " = " + maskIfSecret(key, value))
		return nil

	case "reset":
		if !p.BoolFlag("confirm") && !confirm("Reset all settings to defaults?") {
			return nil
		}
		if err := config.SaveTOML(config.Default(), path); err != nil {
			return NewCommandError("config", "reset", "could not save", err)
		}
		fmt.Println(SuccessStyle.Render("Configuration reset."))
		return nil

	case "keys":
		for _, k := range config.GetAllKeys() {
			fmt.Println(k)
		}
		return nil

	default:
		return NewValidationErrorWithExample("subcommand", sub, "unknown config subcommand", "chatterm config show")
	}
}

// maskIfSecret hides API keys in output.
func maskIfSecret(key, value string) string {
	if !strings.HasSuffix(key, "api_key") || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func redacted(cfg *config.Config) *config.Config {
	c := cfg.Clone()
	c.Responder.APIKey = maskIfSecret("responder.api_key", c.Responder.APIKey)
	return c
}
