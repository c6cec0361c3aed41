// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth provides password hashing, TOTP second factors and session
// tokens for the chat backend.
//
// # Key Types
//
//   - Enrollment: TOTP secret plus provisioning URI
//
// # Usage
//
//	hash, _ := auth.HashPassword("s3cret")
//	ok := auth.CheckPassword(hash, "s3cret")
//
//	enr, _ := auth.EnrollTOTP("ada")
//	fmt.Println(enr.URL)
//	ok = auth.ValidateTOTP("123456", enr.Secret)
package auth
