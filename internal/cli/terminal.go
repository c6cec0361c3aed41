// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// GetTerminalWidth returns the terminal width, or 80 when unknown.
func GetTerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// GetColorProfile returns the color profile for stdout. NO_COLOR and
// non-terminal output disable colors.
func GetColorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return termenv.ANSI256
	}
	if !IsStdoutTTY() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// ErrNoTTY is returned by prompts when stdin is not a terminal.
var ErrNoTTY = errors.New("this operation requires an interactive terminal")

// =============================================================================
// PROMPTS
// =============================================================================

// stdinReader is shared so buffered input is not lost between prompts.
var stdinReader = bufio.NewReader(os.Stdin)

// promptInput reads one line from stdin.
func promptInput(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo.
func promptPassword(prompt string) (string, error) {
	if !IsTTY() {
		return "", ErrNoTTY
	}
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// promptNewPassword asks twice and requires a match.
func promptNewPassword() (string, error) {
	if env := os.Getenv("CHATTERM_PASSWORD"); env != "" {
		return env, nil
	}
	first, err := promptPassword("Password: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", NewValidationError("password", "", "must not be empty")
	}
	second, err := promptPassword("Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", NewValidationError("password", "", "passwords do not match")
	}
	return first, nil
}

// confirm asks a yes/no question; anything but yes is no.
func confirm(question string) bool {
	answer, err := promptInput(question + " [y/N] ")
	if err != nil {
		return false
	}
	ok, _ := ParseBoolString(answer)
	return ok
}
