// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across chatterm.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes, TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - TruncateWidth, StringWidth: terminal column aware truncation
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	label := util.TruncateWidth(title, 24)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
