// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for chatterm.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.chatterm/config.toml
//   - ~/.chatterm/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatterm/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatterm configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Client is used by the TUI and the REPL.
	Client ClientConfig `toml:"client" json:"client"`

	// UI controls terminal presentation.
	UI UIConfig `toml:"ui" json:"ui"`

	// Server configures `chatterm serve`.
	Server ServerConfig `toml:"server" json:"server"`

	// Responder selects how the server produces bot replies.
	Responder ResponderConfig `toml:"responder" json:"responder"`

	// Log configures zap.
	Log LogConfig `toml:"log" json:"log"`
}

// ClientConfig contains backend client settings.
type ClientConfig struct {
	ServerURL          string `toml:"server_url" json:"server_url"`
	RequestTimeoutSecs int    `toml:"request_timeout" json:"request_timeout"`
	// CookieFile persists the session cookie. Relative paths are resolved
	// against the config directory.
	CookieFile  string `toml:"cookie_file" json:"cookie_file"`
	HistoryFile string `toml:"history_file" json:"history_file"`
	// LiveRefresh subscribes to /events for list updates.
	LiveRefresh bool `toml:"live_refresh" json:"live_refresh"`
}

// RequestTimeout returns the request timeout as a duration.
func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Theme is dark, light or auto.
	Theme string `toml:"theme" json:"theme"`
	// Markdown is minimal, full or plain.
	Markdown string `toml:"markdown" json:"markdown"`
	// Sidebar shows the history sidebar on start.
	Sidebar bool `toml:"sidebar" json:"sidebar"`
	// DarkMode is the persisted theme toggle; it wins over Theme once set.
	DarkMode *bool `toml:"dark_mode,omitempty" json:"dark_mode,omitempty"`
}

// ServerConfig contains reference backend settings.
type ServerConfig struct {
	Addr           string  `toml:"addr" json:"addr"`
	DBPath         string  `toml:"db_path" json:"db_path"`
	RateLimit      float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst      int     `toml:"rate_burst" json:"rate_burst"`
	MaxUploadBytes int64   `toml:"max_upload_bytes" json:"max_upload_bytes"`
	SessionHours   int     `toml:"session_hours" json:"session_hours"`
	CookieSecure   bool    `toml:"cookie_secure" json:"cookie_secure"`
	// LoginAttempts failed logins lock a username for LockoutMinutes.
	// Zero disables lockout.
	LoginAttempts  int     `toml:"login_attempts" json:"login_attempts"`
	LockoutMinutes int     `toml:"lockout_minutes" json:"lockout_minutes"`
	// TrustedProxies may set X-Forwarded-For.
	TrustedProxies []string `toml:"trusted_proxies" json:"trusted_proxies"`
}

// ResponderConfig selects and configures the bot backend.
type ResponderConfig struct {
	// Backend is echo, ollama or openai.
	Backend          string `toml:"backend" json:"backend"`
	Model            string `toml:"model" json:"model"`
	BaseURL          string `toml:"base_url" json:"base_url"`
	APIKey           string `toml:"api_key" json:"api_key"`
	SystemPrompt     string `toml:"system_prompt" json:"system_prompt"`
	MaxContextTokens int    `toml:"max_context_tokens" json:"max_context_tokens"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level" json:"level"`
	// File is where the TUI logs; empty means the default log file.
	File string `toml:"file" json:"file"`
}

// Responder backends.
const (
	BackendEcho   = "echo"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// DefaultSystemPrompt is prepended to every bot conversation.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Client: ClientConfig{
			ServerURL:          "http://127.0.0.1:5000",
			RequestTimeoutSecs: 120,
			CookieFile:         "cookies.json",
			HistoryFile:        "history",
			LiveRefresh:        true,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: "minimal",
			Sidebar:  true,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:5000",
			DBPath:         "chatterm.db",
			RateLimit:      10,
			RateBurst:      20,
			MaxUploadBytes: 16 * 1024 * 1024,
			SessionHours:   24 * 7,
			LoginAttempts:  5,
			LockoutMinutes: 15,
		},
		Responder: ResponderConfig{
			Backend:          BackendEcho,
			Model:            "llama3.2",
			SystemPrompt:     DefaultSystemPrompt,
			MaxContextTokens: 4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatterm configuration directory path.
// CHATTERM_HOME overrides the default ~/.chatterm.
func ConfigDir() (string, error) {
	if dir := os.Getenv("CHATTERM_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatterm"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ResolvePath resolves a configured relative path against the config directory.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	dir, err := ConfigDir()
	if err != nil {
		return p
	}
	return filepath.Join(dir, p)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 since they may hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
				cfg = Default()
			} else {
				return finish(cfg)
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil && loadErr == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
				cfg = Default()
			} else {
				return finish(cfg)
			}
		}
	}

	// Defaults, with any load error for informational purposes.
	cfg, err = finish(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// finish applies env overrides, migration, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# chatterm configuration file\n")
	b.WriteString("# Generated by chatterm - edit with care\n")
	b.WriteString("\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Client
	if u, err := url.Parse(c.Client.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "client.server_url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Client.ServerURL),
		})
	}
	if c.Client.RequestTimeoutSecs < 1 || c.Client.RequestTimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "client.request_timeout",
			Message: fmt.Sprintf("must be between 1 and 3600 seconds, got %d", c.Client.RequestTimeoutSecs),
		})
	}

	// UI
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	validMarkdown := map[string]bool{"minimal": true, "full": true, "plain": true}
	if !validMarkdown[strings.ToLower(c.UI.Markdown)] {
		errs = append(errs, ValidationError{
			Field:   "ui.markdown",
			Message: fmt.Sprintf("invalid markdown mode '%s', must be one of: minimal, full, plain", c.UI.Markdown),
		})
	}

	// Server
	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{Field: "server.addr", Message: "must not be empty"})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Server.RateBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_burst", Message: "must be at least 1"})
	}
	if c.Server.MaxUploadBytes < 1024 {
		errs = append(errs, ValidationError{Field: "server.max_upload_bytes", Message: "must be at least 1024"})
	}
	if c.Server.SessionHours < 1 {
		errs = append(errs, ValidationError{Field: "server.session_hours", Message: "must be at least 1"})
	}

	// Responder
	switch strings.ToLower(c.Responder.Backend) {
	case BackendEcho, BackendOllama:
	case BackendOpenAI:
		if c.Responder.APIKey == "" && c.Responder.BaseURL == "" {
			errs = append(errs, ValidationError{
				Field:   "responder.api_key",
				Message: "openai backend needs an api_key or a base_url of a compatible server",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "responder.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: echo, ollama, openai", c.Responder.Backend),
		})
	}
	if c.Responder.BaseURL != "" {
		if u, err := url.Parse(c.Responder.BaseURL); err != nil || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "responder.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Responder.BaseURL),
			})
		}
	}
	if c.Responder.MaxContextTokens < 256 {
		errs = append(errs, ValidationError{Field: "responder.max_context_tokens", Message: "must be at least 256"})
	}

	// Log
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty or zero fields with default values.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}

	if c.Client.ServerURL == "" {
		c.Client.ServerURL = d.Client.ServerURL
	}
	if c.Client.RequestTimeoutSecs == 0 {
		c.Client.RequestTimeoutSecs = d.Client.RequestTimeoutSecs
	}
	if c.Client.CookieFile == "" {
		c.Client.CookieFile = d.Client.CookieFile
	}
	if c.Client.HistoryFile == "" {
		c.Client.HistoryFile = d.Client.HistoryFile
	}

	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.Markdown == "" {
		c.UI.Markdown = d.UI.Markdown
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = d.Server.DBPath
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = d.Server.MaxUploadBytes
	}
	if c.Server.SessionHours == 0 {
		c.Server.SessionHours = d.Server.SessionHours
	}

	if c.Responder.Backend == "" {
		c.Responder.Backend = d.Responder.Backend
	}
	if c.Responder.Model == "" {
		c.Responder.Model = d.Responder.Model
	}
	if c.Responder.SystemPrompt == "" {
		c.Responder.SystemPrompt = d.Responder.SystemPrompt
	}
	if c.Responder.MaxContextTokens == 0 {
		c.Responder.MaxContextTokens = d.Responder.MaxContextTokens
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Migrate handles migration from old configuration values to new ones.
func (c *Config) Migrate() error {
	c.Client.ServerURL = strings.TrimSuffix(strings.TrimSpace(c.Client.ServerURL), "/")
	c.Responder.Backend = strings.ToLower(strings.TrimSpace(c.Responder.Backend))
	c.UI.Theme = strings.ToLower(strings.TrimSpace(c.UI.Theme))
	c.UI.Markdown = strings.ToLower(strings.TrimSpace(c.UI.Markdown))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "warning" {
		c.Log.Level = "warn"
	}
	return nil
}

// IsDark resolves the effective theme. detect is consulted for "auto".
func (c *Config) IsDark(detect func() bool) bool {
	if c.UI.DarkMode != nil {
		return *c.UI.DarkMode
	}
	switch c.UI.Theme {
	case "dark":
		return true
	case "light":
		return false
	}
	if detect != nil {
		return detect()
	}
	return true
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CHATTERM_SERVER_URL: overrides client.server_url
//   - CHATTERM_THEME: overrides ui.theme
//   - CHATTERM_LOG_LEVEL: overrides log.level
//   - CHATTERM_ADDR: overrides server.addr
//   - CHATTERM_DB: overrides server.db_path
//   - CHATTERM_RESPONDER: overrides responder.backend
//   - CHATTERM_OLLAMA_URL: sets responder.base_url for the ollama backend
//   - CHATTERM_OPENAI_BASE_URL: sets responder.base_url for the openai backend
//   - CHATTERM_OPENAI_API_KEY: overrides responder.api_key
//   - CHATTERM_MODEL: overrides responder.model
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATTERM_SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("CHATTERM_THEME"); v != "" {
		c.UI.Theme = v
		c.UI.DarkMode = nil
	}
	if v := os.Getenv("CHATTERM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CHATTERM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHATTERM_DB"); v != "" {
		c.Server.DBPath = v
	}
	if v := os.Getenv("CHATTERM_RESPONDER"); v != "" {
		c.Responder.Backend = v
	}
	if v := os.Getenv("CHATTERM_OLLAMA_URL"); v != "" && strings.EqualFold(c.Responder.Backend, BackendOllama) {
		c.Responder.BaseURL = v
	}
	if v := os.Getenv("CHATTERM_OPENAI_BASE_URL"); v != "" && strings.EqualFold(c.Responder.Backend, BackendOpenAI) {
		c.Responder.BaseURL = v
	}
	if v := os.Getenv("CHATTERM_OPENAI_API_KEY"); v != "" {
		c.Responder.APIKey = v
	}
	if v := os.Getenv("CHATTERM_MODEL"); v != "" {
		c.Responder.Model = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "ui.theme").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil, nil
		}
		return field.Elem().Interface(), nil
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.theme").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tag or normalized field name.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByKey(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByKey(v reflect.Value, key string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == key {
			return v.Field(i), true
		}
	}
	fieldName := normalizeFieldName(key)
	field := v.FieldByNameFunc(func(name string) bool {
		return strings.EqualFold(name, fieldName)
	})
	return field, field.IsValid()
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if field.Kind() == reflect.Ptr {
		if value == nil {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := setFieldValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	if value == nil {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"client.server_url",
		"client.request_timeout",
		"client.cookie_file",
		"client.history_file",
		"client.live_refresh",
		"ui.theme",
		"ui.markdown",
		"ui.sidebar",
		"ui.dark_mode",
		"server.addr",
		"server.db_path",
		"server.rate_limit",
		"server.rate_burst",
		"server.max_upload_bytes",
		"server.session_hours",
		"server.cookie_secure",
		"server.trusted_proxies",
		"responder.backend",
		"responder.model",
		"responder.base_url",
		"responder.api_key",
		"responder.system_prompt",
		"responder.max_context_tokens",
		"log.level",
		"log.file",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.UI.DarkMode != nil {
		v := *c.UI.DarkMode
		clone.UI.DarkMode = &v
	}
	if c.Server.TrustedProxies != nil {
		clone.Server.TrustedProxies = append([]string(nil), c.Server.TrustedProxies...)
	}
	return &clone
}

// String returns a JSON representation with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Responder.APIKey != "" {
		safe.Responder.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
