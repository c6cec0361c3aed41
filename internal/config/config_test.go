// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CHATTERM_HOME", dir)
	for _, k := range []string{
		"CHATTERM_SERVER_URL", "CHATTERM_THEME", "CHATTERM_LOG_LEVEL", "CHATTERM_ADDR",
		"CHATTERM_DB", "CHATTERM_RESPONDER", "CHATTERM_OLLAMA_URL", "CHATTERM_OPENAI_BASE_URL",
		"CHATTERM_OPENAI_API_KEY", "CHATTERM_MODEL",
	} {
		t.Setenv(k, "")
	}
	return dir
}

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Client.ServerURL = "localhost:5000"
	cfg.UI.Theme = "neon"
	cfg.Responder.Backend = "gpt"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, f := range []string{"client.server_url", "ui.theme", "responder.backend", "log.level"} {
		if !fields[f] {
			t.Errorf("missing validation error for %s (got %v)", f, verrs)
		}
	}
}

func TestValidate_OpenAIRequiresKeyOrBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Responder.Backend = BackendOpenAI
	require.Error(t, cfg.Validate())

	cfg.Responder.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}

func TestMigrate_Normalizes(t *testing.T) {
	cfg := Default()
	cfg.Client.ServerURL = " http://host:5000/ "
	cfg.Log.Level = "WARNING"
	cfg.Responder.Backend = "Ollama"
	require.NoError(t, cfg.Migrate())

	assert.Equal(t, "http://host:5000", cfg.Client.ServerURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, BackendOllama, cfg.Responder.Backend)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Client.ServerURL, cfg.Client.ServerURL)
}

func TestSaveTOML_RoundTripAndPermissions(t *testing.T) {
	dir := isolate(t)
	cfg := Default()
	cfg.Client.ServerURL = "http://chat.example:8080"
	cfg.UI.Markdown = "full"
	dark := false
	cfg.UI.DarkMode = &dark

	require.NoError(t, Save(cfg))

	path := filepath.Join(dir, "config.toml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %o, want 600", info.Mode().Perm())
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# chatterm configuration file"))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://chat.example:8080", loaded.Client.ServerURL)
	assert.Equal(t, "full", loaded.UI.Markdown)
	require.NotNil(t, loaded.UI.DarkMode)
	assert.False(t, *loaded.UI.DarkMode)
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"client":{"server_url":"http://json.example"}}`), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://json.example", cfg.Client.ServerURL)
	assert.Equal(t, 120, cfg.Client.RequestTimeoutSecs)

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoad_InvalidTOMLReturnsDefaultsAndError(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[client\nbad"), 0600))

	cfg, err := Load()
	require.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default().Client.ServerURL, cfg.Client.ServerURL)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "c.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui]\ntheme = \"neon\"\n"), 0600))
	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CHATTERM_SERVER_URL", "http://env.example")
	t.Setenv("CHATTERM_RESPONDER", "ollama")
	t.Setenv("CHATTERM_OLLAMA_URL", "http://ollama:11434")
	t.Setenv("CHATTERM_MODEL", "mistral")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://env.example", cfg.Client.ServerURL)
	assert.Equal(t, BackendOllama, cfg.Responder.Backend)
	assert.Equal(t, "http://ollama:11434", cfg.Responder.BaseURL)
	assert.Equal(t, "mistral", cfg.Responder.Model)
}

// =============================================================================
// GET / SET / CLONE
// =============================================================================

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("ui.theme", "light"))
	v, err := cfg.Get("ui.theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	require.NoError(t, cfg.Set("client.request_timeout", "30"))
	assert.Equal(t, 30, cfg.Client.RequestTimeoutSecs)

	require.NoError(t, cfg.Set("ui.dark_mode", "true"))
	require.NotNil(t, cfg.UI.DarkMode)
	assert.True(t, *cfg.UI.DarkMode)

	require.NoError(t, cfg.Set("server.trusted_proxies", "10.0.0.1, 10.0.0.2"))
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Server.TrustedProxies)

	_, err = cfg.Get("ui.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("", "x"))
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) error: %v", key, err)
		}
	}
}

func TestIsDark(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsDark(func() bool { return true }))
	assert.False(t, cfg.IsDark(func() bool { return false }))

	cfg.UI.Theme = "light"
	assert.False(t, cfg.IsDark(nil))

	dark := true
	cfg.UI.DarkMode = &dark
	assert.True(t, cfg.IsDark(nil))
}

func TestClone_Deep(t *testing.T) {
	cfg := Default()
	dark := true
	cfg.UI.DarkMode = &dark
	cfg.Server.TrustedProxies = []string{"a"}

	clone := cfg.Clone()
	*clone.UI.DarkMode = false
	clone.Server.TrustedProxies[0] = "b"

	assert.True(t, *cfg.UI.DarkMode)
	assert.Equal(t, "a", cfg.Server.TrustedProxies[0])
}

func TestString_RedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Responder.APIKey = "sk-secret"
	s := cfg.String()
	assert.NotContains(t, s, "sk-secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "sk-secret", cfg.Responder.APIKey)
}

// =============================================================================
// GLOBAL
// =============================================================================

func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestSetGlobal_ReplacesLoaded(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	_ = Global()
	cfg := Default()
	cfg.UI.Theme = "light"
	SetGlobal(cfg)
	assert.Equal(t, "light", Global().UI.Theme)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnChange(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, func(cfg *Config, err error) {
			if err == nil {
				got <- cfg
			}
		})
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	cfg := Default()
	cfg.UI.Markdown = "plain"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case c := <-got:
		assert.Equal(t, "plain", c.UI.Markdown)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
