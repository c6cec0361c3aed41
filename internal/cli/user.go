// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/storage"
)

// RunUser manages accounts in the server database.
//
//	chatterm user add <name> [--totp]
//	chatterm user totp <name>
func RunUser(ctx context.Context, args Args) error {
	p := args.Parser("totp")
	sub := p.Positional(0)
	name := strings.TrimSpace(p.Positional(1))
	if sub == "" {
		return ErrMissingArgument("subcommand", "chatterm user add alice --totp")
	}
	if name == "" {
		return ErrMissingArgument("username", "chatterm user "+sub+" alice")
	}

	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	if v := p.Flag("db"); v != "" {
		cfg.Server.DBPath = v
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch sub {
	case "add", "create":
		return addUser(ctx, store, name, p.BoolFlag("totp"), args.JSON)
	case "totp":
		user, err := store.UserByName(ctx, name)
		if err != nil {
			return NewCommandError("user", "totp", "no such user "+name, err)
		}
		return enrollTOTP(ctx, store, user, args.JSON)
	}
	return NewValidationErrorWithExample("subcommand", sub, "unknown user subcommand", "chatterm user add alice")
}

func addUser(ctx context.Context, store *storage.Store, name string, withTOTP, jsonMode bool) error {
	password, err := promptNewPassword()
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user, err := store.CreateUser(ctx, name, hash, "")
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return NewValidationError("username", name, "already exists")
		}
		return NewCommandError("user", "add", "could not create user", err)
	}
	if withTOTP {
		return enrollTOTP(ctx, store, user, jsonMode)
	}
	if jsonMode {
		return writeJSON(os.Stdout, map[string]interface{}{"id": user.ID, "username": user.Username})
	}
	fmt.Println(SuccessStyle.Render("Created user " + user.Username))
	return nil
}

func enrollTOTP(ctx context.Context, store *storage.Store, user *storage.User, jsonMode bool) error {
	enrollment, err := auth.EnrollTOTP(user.Username)
	if err != nil {
		return err
	}
	if err := store.SetTOTPSecret(ctx, user.ID, enrollment.Secret); err != nil {
		return NewCommandError("user", "totp", "could not save secret", err)
	}
	if jsonMode {
		return writeJSON(os.Stdout, map[string]interface{}{
			"id":       user.ID,
			"username": user.Username,
			"secret":   enrollment.Secret,
			"url":      enrollment.URL,
		})
	}
	fmt.Println(SuccessStyle.Render("One-time codes enabled for " + user.Username))
	fmt.Println(RenderLabel("Secret") + ValueStyle.Render(enrollment.Secret))
	fmt.Println(RenderLabel("Provisioning URL") + ValueStyle.Render(enrollment.URL))
	fmt.Println(DimStyle.Render("Add the secret to an authenticator app; login now asks for a code."))
	return nil
}
