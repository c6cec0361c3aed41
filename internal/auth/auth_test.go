// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Format(t *testing.T) {
	h, err := hashWith("pw", 1000)
	require.NoError(t, err)

	parts := strings.Split(h, "$")
	require.Len(t, parts, 3)
	assert.Equal(t, "pbkdf2:sha256:1000", parts[0])
	assert.Len(t, parts[1], SaltLength)
	assert.Len(t, parts[2], 64)
}

func TestCheckPassword(t *testing.T) {
	h, err := hashWith("correct horse", 1000)
	require.NoError(t, err)

	assert.True(t, CheckPassword(h, "correct horse"))
	assert.False(t, CheckPassword(h, "wrong"))
	assert.False(t, CheckPassword("garbage", "x"))
	assert.False(t, CheckPassword("scrypt:32768:8:1$salt$abcd", "x"))
}

func TestVerifyPassword_KnownVector(t *testing.T) {
	// Published PBKDF2-HMAC-SHA256 vector: "password", "salt", 1 iteration, 32 bytes.
	stored := "pbkdf2:sha256:1$salt$120fb6cffcf8b32c43e7225256c4f837a86548c92ccc35480805987cb70be17b"
	ok, err := VerifyPassword(stored, "password")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPassword_Errors(t *testing.T) {
	_, err := VerifyPassword("pbkdf2:md5:10$s$00", "x")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
	_, err = VerifyPassword("pbkdf2:sha256:abc$s$00", "x")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
	_, err = VerifyPassword("pbkdf2:sha256:10$s$zz", "x")
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestTOTP(t *testing.T) {
	enr, err := EnrollTOTP("ada")
	require.NoError(t, err)
	assert.Contains(t, enr.URL, "otpauth://totp/")
	assert.Contains(t, enr.URL, "issuer=chatterm")

	code, err := totp.GenerateCode(enr.Secret, time.Now())
	require.NoError(t, err)
	assert.True(t, ValidateTOTP(code, enr.Secret))
	assert.True(t, ValidateTOTP(code[:3]+" "+code[3:], enr.Secret))
	assert.False(t, ValidateTOTP("000000x", enr.Secret))
	assert.False(t, ValidateTOTP(code, ""))
}

func TestNewSessionToken(t *testing.T) {
	a, b := NewSessionToken(), NewSessionToken()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
