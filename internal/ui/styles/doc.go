// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lip gloss styles of the chat UI.

All colors are lipgloss.AdaptiveColor values. Theme.SetDark pins the
background mode so the ctrl+t toggle can switch palettes at runtime:

	theme := styles.NewTheme(cfg.IsDark(styles.DetectDark))
	theme.Toggle()
*/
package styles
