// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/render"
	"github.com/jeranaias/chatterm/internal/session"
	"github.com/jeranaias/chatterm/internal/ui/chat"
	"github.com/jeranaias/chatterm/internal/util"
)

// maxUploadBytes caps /file attachments.
const maxUploadBytes = 16 << 20

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI provides input history and line editing for line-mode chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor that persists history to historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// ReadPassword reads a line without echo.
func (c *ChatCLI) ReadPassword(prompt string) (string, error) {
	return c.line.PasswordPrompt(prompt)
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	_ = util.WriteAtomic(c.historyFile, 0600, 0700, func(w io.Writer) error {
		_, err := c.line.WriteHistory(w)
		return err
	})
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// lineChat drives a session.Controller from a line editor.
type lineChat struct {
	ctx    context.Context
	client *api.Client
	ctrl   *session.Controller
	input  *ChatCLI
	render *render.Renderer
	out    io.Writer
	logger *zap.Logger

	// printed counts transcript entries already written.
	printed  int
	activeID model.ConversationID
}

// RunChat starts line-mode chat.
func RunChat(ctx context.Context, args Args) error {
	cfg, _, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, args, true)
	defer func() { _ = logger.Sync() }()

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	mode := render.ParseMode(cfg.UI.Markdown)
	if !IsStdoutTTY() {
		mode = render.ModePlain
	}
	if mode == render.ModeFull {
		mode = render.ModeMinimal
	}

	input := NewChatCLI(config.ResolvePath(cfg.Client.HistoryFile))
	defer input.Close()

	lc := &lineChat{
		ctx:    ctx,
		client: client,
		ctrl:   session.NewController(client).WithLogger(logger.Named("session")),
		input:  input,
		render: render.New(mode, GetTerminalWidth()-2, cfg.IsDark(nil)).WithBoldStyle(BotStyle.UnsetForeground()),
		out:    os.Stdout,
		logger: logger,
	}
	return lc.run()
}

func (lc *lineChat) run() error {
	fmt.Fprintln(lc.out, TitleStyle.Render("chatterm")+" "+DimStyle.Render(lc.client.BaseURL()))
	fmt.Fprintln(lc.out, DimStyle.Render("Type a message, or /help for commands."))

	if err := lc.ctrl.LoadConversations(lc.ctx); err != nil && !api.IsUnauthorized(err) {
		fmt.Fprintln(lc.out, WarningStyle.Render("Could not load conversations: "+api.Describe(err)))
	}
	lc.flush()

	for {
		if lc.ctrl.Route() == session.RouteLogin {
			if err := lc.login(); err != nil {
				if isAbort(err) {
					return nil
				}
				fmt.Fprintln(lc.out, ErrorStyle.Render(api.Describe(err)))
				continue
			}
		}

		line, err := lc.input.ReadInput("> ")
		if err != nil {
			if isAbort(err) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cmd, ok := chat.ParseCommand(line); ok {
			quit, err := lc.command(cmd)
			if err != nil && !errors.Is(err, session.ErrStale) {
				fmt.Fprintln(lc.out, ErrorStyle.Render(api.Describe(err)))
			}
			lc.flush()
			if quit {
				return nil
			}
			continue
		}
		lc.send(line, nil)
	}
}

func isAbort(err error) bool {
	return errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF)
}

// send posts a message and prints the reply.
func (lc *lineChat) send(text string, file *api.Attachment) {
	fmt.Fprintln(lc.out, DimStyle.Render("Bot is typing..."))
	if err := lc.ctrl.SendMessage(lc.ctx, text, file); err != nil && !api.IsUnauthorized(err) {
		lc.logger.Debug("send failed", zap.Error(err))
	}
	lc.flush()
}

// login prompts for credentials until the server accepts them.
func (lc *lineChat) login() error {
	fmt.Fprintln(lc.out, WarningStyle.Render("Login required."))
	user, err := lc.input.ReadInput("Username: ")
	if err != nil {
		return err
	}
	pass, err := lc.input.ReadPassword("Password: ")
	if err != nil {
		return err
	}
	otp, err := lc.input.ReadInput("Code (blank if none): ")
	if err != nil {
		return err
	}
	if err := lc.client.Login(lc.ctx, strings.TrimSpace(user), pass, strings.TrimSpace(otp)); err != nil {
		return err
	}
	lc.ctrl.LoggedIn()
	fmt.Fprintln(lc.out, SuccessStyle.Render("Signed in as "+strings.TrimSpace(user)+"."))
	return lc.ctrl.LoadConversations(lc.ctx)
}

// =============================================================================
// COMMANDS
// =============================================================================

func (lc *lineChat) command(cmd chat.Command) (bool, error) {
	switch cmd.Name {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		fmt.Fprintln(lc.out, lc.render.Render(chat.HelpText()))
		fmt.Fprintln(lc.out, "/list  show conversations\n/open <n>  open conversation n\n/delete <n>  delete conversation n\n/login  sign in\n/quit  leave")
		return false, nil

	case "login":
		lc.ctrl.RequireLogin()
		return false, nil

	case "logout":
		err := lc.client.Logout(lc.ctx)
		clearSession(lc.client)
		lc.ctrl.Reset()
		lc.ctrl.RequireLogin()
		lc.printed = 0
		if err != nil && !api.IsUnauthorized(err) {
			return false, err
		}
		return false, nil

	case "new":
		lc.ctrl.CreateNewConversation()
		return false, nil

	case "refresh":
		return false, lc.ctrl.LoadConversations(lc.ctx)

	case "list", "ls":
		if err := lc.ctrl.LoadConversations(lc.ctx); err != nil {
			return false, err
		}
		lc.printHistory()
		return false, nil

	case "open":
		item, err := lc.historyItem(cmd)
		if err != nil {
			return false, err
		}
		return false, lc.ctrl.Actions().Dispatch(lc.ctx, item.Select)

	case "delete", "rm":
		item, err := lc.historyItem(cmd)
		if err != nil {
			return false, err
		}
		if item.Delete == nil {
			return false, NewValidationError("conversation", cmd.Args[0], "cannot delete the new-conversation entry")
		}
		if err := lc.ctrl.Actions().Dispatch(lc.ctx, item.Delete); err != nil {
			return false, err
		}
		lc.flush()
		return false, lc.resolveConfirmation()

	case "file", "upload":
		if len(cmd.Args) == 0 {
			return false, ErrMissingArgument("path", "/file notes.txt summarize this")
		}
		file, err := api.AttachmentFromFile(cmd.Args[0], maxUploadBytes)
		if err != nil {
			return false, err
		}
		lc.send(cmd.Rest, file)
		return false, nil

	case "voice":
		lc.ctrl.AddMessage(model.SenderBot, chat.VoiceUnsupported)
		return false, nil
	}
	return false, NewValidationErrorWithExample("command", "/"+cmd.Name, "unknown command", "/help")
}

// historyItem resolves the numeric argument of /open and /delete.
func (lc *lineChat) historyItem(cmd chat.Command) (session.HistoryItem, error) {
	usage := "/" + cmd.Name + " 1"
	if len(cmd.Args) == 0 {
		return session.HistoryItem{}, ErrMissingArgument("number", usage)
	}
	n, err := strconv.Atoi(cmd.Args[0])
	items := lc.ctrl.History()
	if err != nil || n < 0 || n >= len(items) {
		return session.HistoryItem{}, NewValidationErrorWithExample("number", cmd.Args[0], "not in /list", usage)
	}
	return items[n], nil
}

// resolveConfirmation answers the open delete prompt from the keyboard.
func (lc *lineChat) resolveConfirmation() error {
	transcript := lc.ctrl.Transcript()
	for i := len(transcript) - 1; i >= 0; i-- {
		cf := transcript[i].Confirm
		if cf == nil || cf.Resolved {
			continue
		}
		answer, err := lc.input.ReadInput("Delete? [y/N] ")
		if err != nil && !isAbort(err) {
			return err
		}
		if ok, _ := ParseBoolString(answer); ok {
			return lc.ctrl.Actions().Dispatch(lc.ctx, cf.Confirm)
		}
		return lc.ctrl.Actions().Dispatch(lc.ctx, cf.Cancel)
	}
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// flush prints transcript entries not yet shown. A replaced transcript
// (another conversation, or a reset) is printed from the start.
func (lc *lineChat) flush() {
	state := lc.ctrl.Snapshot()
	if state.ActiveID != lc.activeID || len(state.Transcript) < lc.printed {
		lc.printed = 0
		lc.activeID = state.ActiveID
		fmt.Fprintln(lc.out, RenderSeparator())
	}
	for _, e := range state.Transcript[lc.printed:] {
		lc.printEntry(e)
	}
	lc.printed = len(state.Transcript)
}

func (lc *lineChat) printEntry(e session.Entry) {
	if e.Kind == session.EntryConfirm {
		if !e.Confirm.Resolved {
			fmt.Fprintln(lc.out, WarningStyle.Render(e.Confirm.Prompt))
		}
		return
	}
	label := BotStyle.Render(e.Message.Sender.DisplayName() + ":")
	if e.Message.IsUser() {
		label = UserStyle.Render(e.Message.Sender.DisplayName() + ":")
	}
	fmt.Fprintln(lc.out, label+" "+lc.render.Render(e.Message.Text))
}

func (lc *lineChat) printHistory() {
	for i, item := range lc.ctrl.History() {
		marker := "  "
		if item.Active {
			marker = "> "
		}
		line := fmt.Sprintf("%s%2d  %s", marker, i, util.TruncateWidth(item.Label, GetTerminalWidth()-8))
		if item.Active {
			line = SuccessStyle.Render(line)
		}
		fmt.Fprintln(lc.out, line)
	}
}
