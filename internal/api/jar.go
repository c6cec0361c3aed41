// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/jeranaias/chatterm/internal/util"
)

// NewMemoryJar returns a cookie jar that lives only for the process.
func NewMemoryJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

// storedCookie is the on-disk form of a cookie.
type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// FileJar is a cookie jar for a single backend that persists its cookies to
// disk, so a login survives restarts of the client.
type FileJar struct {
	mu   sync.Mutex
	path string
	base *url.URL
	jar  *cookiejar.Jar
	// cookies mirrors what was set for base, since cookiejar hides metadata.
	cookies map[string]*http.Cookie
}

// NewFileJar loads (or starts) a persisted jar for the backend at baseURL.
func NewFileJar(path, baseURL string) (*FileJar, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	j := &FileJar{
		path:    path,
		base:    u,
		jar:     inner,
		cookies: make(map[string]*http.Cookie),
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

// SetCookies implements http.CookieJar and persists cookies for the backend.
func (j *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)
	if u.Host != j.base.Host {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(j.cookies, c.Name)
			continue
		}
		cp := *c
		if c.MaxAge > 0 {
			cp.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.cookies[c.Name] = &cp
	}
	// Best effort: a failed save only costs a re-login next time.
	_ = j.saveLocked()
}

// Cookies implements http.CookieJar.
func (j *FileJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// Clear forgets every stored cookie and removes the file.
func (j *FileJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	expired := make([]*http.Cookie, 0, len(j.cookies))
	for name, c := range j.cookies {
		expired = append(expired, &http.Cookie{Name: name, Path: c.Path, MaxAge: -1})
	}
	j.jar.SetCookies(j.base, expired)
	j.cookies = make(map[string]*http.Cookie)

	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cookie file: %w", err)
	}
	return nil
}

// Path returns the file backing the jar.
func (j *FileJar) Path() string {
	return j.path
}

func (j *FileJar) load() error {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		// Corrupt file: start over rather than refusing to run.
		return nil
	}

	now := time.Now()
	restored := make([]*http.Cookie, 0, len(stored))
	for _, s := range stored {
		if !s.Expires.IsZero() && s.Expires.Before(now) {
			continue
		}
		c := &http.Cookie{
			Name:     s.Name,
			Value:    s.Value,
			Path:     s.Path,
			Expires:  s.Expires,
			Secure:   s.Secure,
			HttpOnly: s.HttpOnly,
		}
		restored = append(restored, c)
		j.cookies[c.Name] = c
	}
	j.jar.SetCookies(j.base, restored)
	return nil
}

func (j *FileJar) saveLocked() error {
	stored := make([]storedCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		stored = append(stored, storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}
	return util.AtomicWriteFileWithDir(j.path, data, 0600, 0700)
}
