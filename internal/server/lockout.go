// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrLocked is returned while an identifier is locked out.
var ErrLocked = errors.New("too many failed login attempts")

// ============================================================================
// ATTEMPT RECORD
// ============================================================================

// attemptRecord tracks consecutive failures for one identifier.
type attemptRecord struct {
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

func (a *attemptRecord) locked(now time.Time) bool {
	return !a.lockedUntil.IsZero() && now.Before(a.lockedUntil)
}

// ============================================================================
// LOCKOUT
// ============================================================================

// Lockout locks a username after repeated failed logins. It is safe for
// concurrent use. A zero maxAttempts disables it.
type Lockout struct {
	mu          sync.Mutex
	attempts    map[string]*attemptRecord
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

// NewLockout creates a lockout that triggers after maxAttempts consecutive
// failures and lasts for duration.
func NewLockout(maxAttempts int, duration time.Duration) *Lockout {
	return &Lockout{
		attempts:    make(map[string]*attemptRecord),
		maxAttempts: maxAttempts,
		duration:    duration,
		now:         time.Now,
	}
}

func lockoutKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Check returns ErrLocked and the time left if identifier is locked.
func (l *Lockout) Check(identifier string) (time.Duration, error) {
	if l.maxAttempts <= 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.attempts[lockoutKey(identifier)]
	now := l.now()
	if !ok || !rec.locked(now) {
		return 0, nil
	}
	return rec.lockedUntil.Sub(now), ErrLocked
}

// RecordAttempt records a login outcome. A success clears the counter; the
// failure that reaches the limit starts the lockout and returns ErrLocked.
func (l *Lockout) RecordAttempt(identifier string, success bool) error {
	if l.maxAttempts <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := lockoutKey(identifier)
	now := l.now()
	if success {
		delete(l.attempts, key)
		return nil
	}

	rec, ok := l.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		l.attempts[key] = rec
	}
	if !rec.lockedUntil.IsZero() && !rec.locked(now) {
		// Expired lockout: start a new series.
		rec.count = 0
		rec.lockedUntil = time.Time{}
	}
	rec.count++
	rec.lastAttempt = now
	if rec.count >= l.maxAttempts {
		rec.lockedUntil = now.Add(l.duration)
		return ErrLocked
	}
	return nil
}

// Cleanup drops records whose lockout expired or whose last failure is
// older than the lockout duration. It returns how many were removed.
func (l *Lockout) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, rec := range l.attempts {
		if rec.locked(now) {
			continue
		}
		if !rec.lockedUntil.IsZero() || now.Sub(rec.lastAttempt) > l.duration {
			delete(l.attempts, key)
			removed++
		}
	}
	return removed
}
