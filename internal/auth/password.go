// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth provides password hashing, TOTP second factors and session
// tokens for the chat backend.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// PASSWORD HASHING
// =============================================================================

// Password hash parameters. The stored format is
// "pbkdf2:<digest>:<iterations>$<salt>$<hex hash>", the same layout
// werkzeug.security uses, so existing account databases keep working.
const (
	DefaultIterations = 600000
	SaltLength        = 16
	saltChars         = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Password errors.
var (
	ErrUnsupportedHash = errors.New("unsupported password hash format")
	ErrEmptyPassword   = errors.New("password must not be empty")
)

// HashPassword derives a salted PBKDF2-SHA256 hash of password.
func HashPassword(password string) (string, error) {
	return hashWith(password, DefaultIterations)
}

func hashWith(password string, iterations int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt, err := randomSalt(SaltLength)
	if err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("pbkdf2:sha256:%d$%s$%s", iterations, salt, hex.EncodeToString(key)), nil
}

// CheckPassword reports whether password matches the stored hash. Malformed
// or unsupported hashes never match.
func CheckPassword(stored, password string) bool {
	ok, err := VerifyPassword(stored, password)
	return err == nil && ok
}

// VerifyPassword is CheckPassword with the parse error exposed.
func VerifyPassword(stored, password string) (bool, error) {
	parts := strings.SplitN(stored, "$", 3)
	if len(parts) != 3 {
		return false, ErrUnsupportedHash
	}
	method, salt, want := parts[0], parts[1], parts[2]

	fields := strings.Split(method, ":")
	if len(fields) < 2 || fields[0] != "pbkdf2" {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedHash, method)
	}

	var newHash func() hash.Hash
	var size int
	switch fields[1] {
	case "sha256":
		newHash, size = sha256.New, sha256.Size
	case "sha512":
		newHash, size = sha512.New, sha512.Size
	default:
		return false, fmt.Errorf("%w: digest %s", ErrUnsupportedHash, fields[1])
	}

	iterations := DefaultIterations
	if len(fields) >= 3 {
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 1 {
			return false, fmt.Errorf("%w: iterations %q", ErrUnsupportedHash, fields[2])
		}
		iterations = n
	}

	wantBytes, err := hex.DecodeString(want)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
	}
	got := pbkdf2.Key([]byte(password), []byte(salt), iterations, size, newHash)
	return subtle.ConstantTimeCompare(got, wantBytes) == 1, nil
}

func randomSalt(n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(saltChars)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate salt: %w", err)
		}
		b.WriteByte(saltChars[idx.Int64()])
	}
	return b.String(), nil
}

// =============================================================================
// SESSION TOKENS
// =============================================================================

// NewSessionToken returns an unguessable session cookie value.
func NewSessionToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
