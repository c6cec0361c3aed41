// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdServe
	CmdUser
	CmdExport
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdUser:
		return "user"
	case CmdExport:
		return "export"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	ServerURL  string
	ConfigPath string

	// Unknown is set when the command name was not recognized.
	Unknown string

	// Raw holds the arguments after the command name.
	Raw []string
}

// Parser parses Raw with the given boolean flag names.
func (a Args) Parser(boolNames ...string) *ArgParser {
	return NewArgParser(a.Raw, boolNames...)
}

const usageText = `chatterm - terminal chat client and reference server

Usage:
  chatterm                          Start the full-screen chat (default)
  chatterm tui                      Same as above
  chatterm chat                     Line-mode chat with input history
  chatterm serve [--addr :5000]     Run the reference backend
  chatterm user add <name> [--totp] Create an account
  chatterm user totp <name>         Enroll a one-time code for an account
  chatterm export <id|all>          Export conversations
    --format md|json|html           Output format (default: md)
    --out DIR                       Output directory (default: .)
    --open                          Open the file after export
  chatterm config show              Show the effective configuration
  chatterm config get <key>         Print one setting
  chatterm config set <key> <value> Change one setting
  chatterm config path              Print the config file path
  chatterm config reset --confirm   Restore defaults
  chatterm version                  Show version information

Chat commands (tui and chat):
  /file <path> [message]            Send a text document
  /new                              Start a new conversation
  /refresh                          Reload the conversation list
  /logout                           Sign out
  /help                             List commands

Global Flags:
  --server URL      Backend URL (overrides client.server_url)
  --config PATH     Use this config file
  -q, --quiet       Minimal output
  -v, --verbose     Debug logging
  --json            Machine-readable output where supported

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer, jsonMode bool) error {
	if jsonMode {
		return writeJSON(w, map[string]string{
			"version":    Version,
			"git_commit": GitCommit,
			"build_date": BuildDate,
			"go_version": runtime.Version(),
		})
	}
	fmt.Fprintf(w, "chatterm version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
	return nil
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdTUI, args
	}

	name := strings.ToLower(remaining[0])
	args.Raw = remaining[1:]

	switch name {
	case "tui":
		return CmdTUI, args
	case "chat", "repl":
		return CmdChat, args
	case "serve", "server":
		return CmdServe, args
	case "user", "users":
		return CmdUser, args
	case "export":
		return CmdExport, args
	case "config":
		return CmdConfig, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	}
	args.Unknown = remaining[0]
	return CmdHelp, args
}

// parseGlobalFlags extracts global flags and returns the remaining args.
// Global flags may appear anywhere on the line.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var args Args
	var remaining []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		value := func() string {
			if eq := strings.IndexByte(arg, '='); eq >= 0 {
				return arg[eq+1:]
			}
			if i+1 < len(argv) {
				i++
				return argv[i]
			}
			return ""
		}
		switch {
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "--json":
			args.JSON = true
		case arg == "--server" || strings.HasPrefix(arg, "--server="):
			args.ServerURL = value()
		case arg == "--config" || strings.HasPrefix(arg, "--config="):
			args.ConfigPath = value()
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, args
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd and returns the process exit code.
func Run(ctx context.Context, cmd Command, args Args) int {
	var err error
	switch cmd {
	case CmdTUI:
		err = RunTUI(ctx, args)
	case CmdChat:
		err = RunChat(ctx, args)
	case CmdServe:
		err = RunServe(ctx, args)
	case CmdUser:
		err = RunUser(ctx, args)
	case CmdExport:
		err = RunExport(ctx, args)
	case CmdConfig:
		err = RunConfig(args)
	case CmdVersion:
		err = PrintVersion(os.Stdout, args.JSON)
	case CmdHelp:
		if args.Unknown != "" {
			err = NewValidationErrorWithExample("command", args.Unknown, "unknown command", "chatterm help")
			break
		}
		PrintUsage(os.Stdout)
	}
	return HandleError(err, args.JSON)
}
