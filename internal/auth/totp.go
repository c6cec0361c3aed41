// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
)

// Issuer names the account in authenticator apps.
const Issuer = "chatterm"

// Enrollment is a freshly generated TOTP secret.
type Enrollment struct {
	Secret string
	// URL is the otpauth:// provisioning URI for QR codes.
	URL string
}

// EnrollTOTP generates a TOTP secret for account.
func EnrollTOTP(account string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateTOTP checks a six-digit code against secret. Spaces in the code
// are ignored.
func ValidateTOTP(code, secret string) bool {
	if secret == "" {
		return false
	}
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	return totp.Validate(code, secret)
}
