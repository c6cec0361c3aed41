// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/storage"
)

// =============================================================================
// PARSE
// =============================================================================

func TestParse_Commands(t *testing.T) {
	tests := []struct {
		argv []string
		want Command
	}{
		{nil, CmdTUI},
		{[]string{"tui"}, CmdTUI},
		{[]string{"chat"}, CmdChat},
		{[]string{"repl"}, CmdChat},
		{[]string{"serve", "--addr", ":8080"}, CmdServe},
		{[]string{"user", "add", "alice"}, CmdUser},
		{[]string{"export", "all"}, CmdExport},
		{[]string{"config", "show"}, CmdConfig},
		{[]string{"version"}, CmdVersion},
		{[]string{"--help"}, CmdHelp},
		{[]string{"bogus"}, CmdHelp},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.argv), func(t *testing.T) {
			cmd, _ := Parse(tt.argv)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParse_GlobalFlagsAnywhere(t *testing.T) {
	cmd, args := Parse([]string{"--server", "http://h:1", "export", "3", "--json", "--config=/tmp/c.toml", "-v"})
	assert.Equal(t, CmdExport, cmd)
	assert.Equal(t, "http://h:1", args.ServerURL)
	assert.Equal(t, "/tmp/c.toml", args.ConfigPath)
	assert.True(t, args.JSON)
	assert.True(t, args.Verbose)
	assert.Equal(t, []string{"3"}, args.Raw)
}

func TestParse_UnknownCommand(t *testing.T) {
	_, args := Parse([]string{"frobnicate"})
	assert.Equal(t, "frobnicate", args.Unknown)
}

// =============================================================================
// ARG PARSER
// =============================================================================

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"add", "alice", "--totp", "--db", "x.db", "--format=html", "--open=false"}, "totp", "open")
	assert.Equal(t, "add", p.Positional(0))
	assert.Equal(t, "alice", p.Positional(1))
	assert.Equal(t, 2, p.PositionalCount())
	assert.True(t, p.BoolFlag("totp"))
	assert.False(t, p.BoolFlag("open"))
	assert.True(t, p.HasFlag("open"))
	assert.Equal(t, "x.db", p.Flag("db"))
	assert.Equal(t, "html", p.Flag("format"))
	assert.Equal(t, "md", p.FlagOrDefault("missing", "md"))
}

func TestArgParser_BoolDoesNotConsumeValue(t *testing.T) {
	p := NewArgParser([]string{"--totp", "alice"}, "totp")
	assert.True(t, p.BoolFlag("totp"))
	assert.Equal(t, "alice", p.Positional(0))

	p = NewArgParser([]string{"--totp", "alice"})
	assert.Equal(t, "alice", p.Flag("totp"))
}

func TestArgParser_DoubleDash(t *testing.T) {
	p := NewArgParser([]string{"set", "--", "-v"})
	assert.Equal(t, []string{"set", "-v"}, p.PositionalFrom(0))
}

func TestArgParser_FlagInt(t *testing.T) {
	p := NewArgParser([]string{"--limit", "5", "--bad", "x"})
	n, err := p.FlagInt("limit")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = p.FlagInt("bad")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"y", "YES", "true", "1", "on"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	v, err := ParseBoolString("")
	assert.Error(t, err)
	assert.False(t, v)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", NewValidationError("x", "y", "bad"), ExitUsageError},
		{"config", config.ValidateErrors{{Field: "ui.theme", Message: "bad"}}, ExitConfigError},
		{"unauthorized", fmt.Errorf("list: %w", api.ErrUnauthorized), ExitAuthError},
		{"not found", &api.APIError{Status: 404, Message: "Conversation not found"}, ExitNotFoundError},
		{"store not found", storage.ErrNotFound, ExitNotFoundError},
		{"deadline", context.DeadlineExceeded, ExitTimeoutError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	err := NewCommandError("export", "3", "could not fetch", api.ErrForbidden)
	assert.ErrorIs(t, err, api.ErrForbidden)
	assert.Contains(t, err.Error(), "export 3 failed")
}

func TestHandleError_CanceledIsSuccess(t *testing.T) {
	assert.Equal(t, ExitSuccess, HandleError(context.Canceled, false))
}

// =============================================================================
// OUTPUT
// =============================================================================

func TestPrintVersion_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintVersion(&buf, true))
	assert.Contains(t, buf.String(), `"version": "`+Version+`"`)
}

func TestMaskIfSecret(t *testing.T) {
	assert.Equal(t, "sk-l...wxyz", maskIfSecret("responder.api_key", "sk-longsecretwxyz"))
	assert.Equal(t, "****", maskIfSecret("responder.api_key", "short"))
	assert.Equal(t, "dark", maskIfSecret("ui.theme", "dark"))
}

func TestRunConfig_SetAndGet(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATTERM_HOME", dir)
	t.Setenv("CHATTERM_SERVER_URL", "")
	t.Setenv("CHATTERM_THEME", "")

	require.NoError(t, RunConfig(Args{Raw: []string{"set", "ui.markdown", "plain"}}))

	cfg, _, err := loadConfig(Args{})
	require.NoError(t, err)
	assert.Equal(t, "plain", cfg.UI.Markdown)

	err = RunConfig(Args{Raw: []string{"set", "ui.theme", "neon"}})
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestLoadConfig_ServerOverride(t *testing.T) {
	t.Setenv("CHATTERM_HOME", t.TempDir())
	t.Setenv("CHATTERM_SERVER_URL", "")
	cfg, path, err := loadConfig(Args{ServerURL: "http://override:9"})
	require.NoError(t, err)
	assert.Equal(t, "http://override:9", cfg.Client.ServerURL)
	assert.NotEmpty(t, path)
}
