// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the chat session state: the active conversation, the
// rendered history and the transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/model"
)

// Controller errors.
var (
	// ErrDeleteInProgress is returned when the conversation is already
	// being deleted.
	ErrDeleteInProgress = errors.New("conversation deletion in progress")

	// ErrStale is returned when a result arrived after the active
	// conversation changed and was discarded.
	ErrStale = errors.New("result discarded: active conversation changed")

	// ErrEmptyMessage is returned by SendMessage with neither text nor file.
	ErrEmptyMessage = errors.New("message or file required")
)

// Backend is the subset of the API client the controller needs.
type Backend interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	GetChat(ctx context.Context, id model.ConversationID) ([]model.Message, error)
	SendMessage(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	DeleteConversation(ctx context.Context, id model.ConversationID) error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the single owner of session state. All methods are safe for
// concurrent use; network calls run without holding the lock.
//
// Ordering policy for interleaved operations:
//   - every change of the active conversation bumps an epoch, and replies
//     started under an older epoch never touch the transcript;
//   - each list fetch takes a sequence number and older results are dropped;
//   - a conversation being deleted cannot be deleted again, selected, or
//     sent to;
//   - a server-assigned id is adopted only if the session is still new and
//     the epoch is unchanged.
type Controller struct {
	mu sync.Mutex

	backend Backend
	logger  *zap.Logger

	route         Route
	activeID      model.ConversationID
	conversations []model.Conversation
	transcript    []Entry
	pending       map[uint64]model.Message
	pendingSeq    uint64
	typing        int

	epoch       uint64
	listSeq     uint64
	listApplied uint64
	deleting    map[model.ConversationID]bool

	version  uint64
	onChange func()

	actions *Dispatcher
}

// NewController creates a controller in the "new conversation" state.
func NewController(backend Backend) *Controller {
	c := &Controller{
		backend:  backend,
		logger:   zap.NewNop(),
		pending:  make(map[uint64]model.Message),
		deleting: make(map[model.ConversationID]bool),
	}
	c.transcript = []Entry{MessageEntry(model.NewBotMessage(Greeting))}
	c.actions = c.newDispatcher()
	return c
}

// WithLogger sets the logger.
func (c *Controller) WithLogger(logger *zap.Logger) *Controller {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithOnChange registers a callback invoked after every state change.
// It is called without the lock held.
func (c *Controller) WithOnChange(fn func()) *Controller {
	c.onChange = fn
	return c
}

// Actions returns the registry used to execute rendered actions.
func (c *Controller) Actions() *Dispatcher {
	return c.actions
}

func (c *Controller) newDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register(ActionSelect, func(ctx context.Context, a Action) error {
		act, ok := actionAs[SelectConversation](a)
		if !ok {
			return unexpectedAction(a)
		}
		return c.SetActiveConversation(ctx, act.ID)
	})
	d.Register(ActionNew, func(ctx context.Context, a Action) error {
		c.CreateNewConversation()
		return nil
	})
	d.Register(ActionRequest, func(ctx context.Context, a Action) error {
		act, ok := actionAs[RequestDelete](a)
		if !ok {
			return unexpectedAction(a)
		}
		c.ConfirmAndDelete(act.Conversation)
		return nil
	})
	d.Register(ActionDelete, func(ctx context.Context, a Action) error {
		act, ok := actionAs[DeleteConversation](a)
		if !ok {
			return unexpectedAction(a)
		}
		return c.PerformDelete(ctx, act.ID)
	})
	d.Register(ActionCancelDel, func(ctx context.Context, a Action) error {
		act, ok := actionAs[CancelDelete](a)
		if !ok {
			return unexpectedAction(a)
		}
		c.CancelDelete(act.ID)
		return nil
	})
	return d
}

// actionAs accepts an action by value or by non-nil pointer.
func actionAs[T Action](a Action) (T, bool) {
	switch v := a.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}

func unexpectedAction(a Action) error {
	return fmt.Errorf("%w: %s has type %T", ErrUnknownAction, a.Name(), a)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ActiveID returns the active conversation id; zero means a new session.
func (c *Controller) ActiveID() model.ConversationID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Route returns the screen the front end should show.
func (c *Controller) Route() Route {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}

// Typing reports whether a reply is awaited.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing > 0
}

// Transcript returns a copy of the transcript.
func (c *Controller) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked()
}

// History returns the rendered history list.
func (c *Controller) History() []HistoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyLocked()
}

// Snapshot returns the complete state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]model.Message, 0, len(c.pending))
	for seq := uint64(1); seq <= c.pendingSeq; seq++ {
		if m, ok := c.pending[seq]; ok {
			pending = append(pending, m)
		}
	}
	return State{
		Route:      c.route,
		ActiveID:   c.activeID,
		History:    c.historyLocked(),
		Transcript: c.transcriptLocked(),
		Pending:    pending,
		Typing:     c.typing > 0,
		Version:    c.version,
	}
}

func (c *Controller) transcriptLocked() []Entry {
	out := make([]Entry, len(c.transcript))
	for i, e := range c.transcript {
		if e.Confirm != nil {
			cp := *e.Confirm
			e.Confirm = &cp
		}
		out[i] = e
	}
	return out
}

// historyLocked rebuilds the history from the conversation list. The
// active marker is derived from activeID, so at most one item is active.
func (c *Controller) historyLocked() []HistoryItem {
	items := make([]HistoryItem, 0, len(c.conversations)+1)
	items = append(items, HistoryItem{
		Label:  NewConversationLabel,
		Select: NewConversation{},
	})
	for _, conv := range c.conversations {
		items = append(items, HistoryItem{
			ID:     conv.ID,
			Label:  conv.DisplayTitle(),
			Active: !c.activeID.IsZero() && conv.ID == c.activeID,
			Select: SelectConversation{ID: conv.ID},
			Delete: RequestDelete{Conversation: conv},
		})
	}
	return items
}

// changedLocked records a state change.
func (c *Controller) changedLocked() {
	c.version++
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// =============================================================================
// ROUTING
// =============================================================================

// requireLoginLocked switches to the login route. The transcript is left
// untouched.
func (c *Controller) requireLoginLocked() {
	if c.route != RouteLogin {
		c.logger.Info("session requires login")
	}
	c.route = RouteLogin
	c.changedLocked()
}

// LoggedIn returns to the chat route after a successful login.
func (c *Controller) LoggedIn() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.route = RouteChat
	c.changedLocked()
}

// RequireLogin switches to the login route, e.g. after logout.
func (c *Controller) RequireLogin() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requireLoginLocked()
}

// Reset discards all state, e.g. after logout.
func (c *Controller) Reset() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = nil
	c.listApplied = c.listSeq
	c.resetLocked()
}

// =============================================================================
// CONVERSATION LIST SYNC
// =============================================================================

// LoadConversations fetches the conversation list and rebuilds the history.
// On failure the previous history is kept.
func (c *Controller) LoadConversations(ctx context.Context) error {
	c.mu.Lock()
	c.listSeq++
	seq := c.listSeq
	c.mu.Unlock()

	convs, err := c.backend.ListConversations(ctx)

	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if api.IsUnauthorized(err) {
			c.requireLoginLocked()
			return err
		}
		c.logger.Warn("error loading conversations", zap.Error(err))
		return fmt.Errorf("load conversations: %w", err)
	}
	if seq <= c.listApplied {
		c.logger.Debug("dropping stale conversation list",
			zap.Uint64("seq", seq), zap.Uint64("applied", c.listApplied))
		return nil
	}
	c.listApplied = seq
	c.conversations = convs
	c.changedLocked()
	return nil
}

// =============================================================================
// ACTIVE CONVERSATION SELECTION
// =============================================================================

// SetActiveConversation marks id active, fetches its history and replaces
// the transcript with it. A 401 switches to the login route without
// touching the transcript.
func (c *Controller) SetActiveConversation(ctx context.Context, id model.ConversationID) error {
	if id.IsZero() {
		c.CreateNewConversation()
		return nil
	}

	c.mu.Lock()
	if c.deleting[id] {
		c.mu.Unlock()
		return ErrDeleteInProgress
	}
	c.epoch++
	epoch := c.epoch
	c.activeID = id
	c.changedLocked()
	c.mu.Unlock()
	c.notify()

	msgs, err := c.backend.GetChat(ctx, id)

	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		return ErrStale
	}
	if err != nil {
		if api.IsUnauthorized(err) {
			c.requireLoginLocked()
			return err
		}
		c.logger.Warn("error loading chat history",
			zap.String("conversation_id", id.String()), zap.Error(err))
		return fmt.Errorf("load chat %s: %w", id, err)
	}

	transcript := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		transcript = append(transcript, MessageEntry(m))
	}
	c.transcript = transcript
	c.changedLocked()
	return nil
}

// CreateNewConversation clears the active id and resets the transcript to
// the greeting. It makes no backend call.
func (c *Controller) CreateNewConversation() {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.epoch++
	c.activeID = model.NoConversation
	c.transcript = []Entry{MessageEntry(model.NewBotMessage(Greeting))}
	c.changedLocked()
}

// =============================================================================
// MESSAGE SEND / RECEIVE
// =============================================================================

// SendMessage posts text and an optional file to the active conversation.
//
// The user line is shown as pending until the request completes. On success
// it is committed with the bot reply; a new session adopts the server id and
// the list is refreshed. On failure the generic error line is appended; a
// 401 instead switches to the login route and commits nothing.
func (c *Controller) SendMessage(ctx context.Context, text string, file *api.Attachment) error {
	if text == "" && file == nil {
		return ErrEmptyMessage
	}

	echo := text
	if file != nil {
		echo = "Uploading file: " + file.Name
		if text == "" {
			text = "Summarize this document: " + file.Name
		}
	}

	c.mu.Lock()
	target := c.activeID
	epoch := c.epoch
	if !target.IsZero() && c.deleting[target] {
		c.transcript = append(c.transcript,
			MessageEntry(model.NewUserMessage(echo)),
			MessageEntry(model.NewBotMessage(GenericError)))
		c.changedLocked()
		c.mu.Unlock()
		c.notify()
		return ErrDeleteInProgress
	}
	c.pendingSeq++
	seq := c.pendingSeq
	c.pending[seq] = model.NewUserMessage(echo)
	c.typing++
	c.changedLocked()
	c.mu.Unlock()
	c.notify()

	resp, err := c.backend.SendMessage(ctx, api.ChatRequest{
		Message:        text,
		File:           file,
		ConversationID: target,
	})

	c.mu.Lock()
	delete(c.pending, seq)
	c.typing--
	c.changedLocked()

	if err != nil && api.IsUnauthorized(err) {
		c.requireLoginLocked()
		c.mu.Unlock()
		c.notify()
		return err
	}

	if epoch != c.epoch {
		c.mu.Unlock()
		c.notify()
		// A new conversation may exist server-side now.
		if err == nil && target.IsZero() {
			_ = c.LoadConversations(ctx)
		}
		return ErrStale
	}

	// Another send from the same new session already adopted an id. This
	// exchange lives in a different conversation and only shows up in the
	// refreshed history.
	if err == nil && target.IsZero() && !c.activeID.IsZero() && c.activeID != resp.ConversationID {
		c.mu.Unlock()
		c.notify()
		_ = c.LoadConversations(ctx)
		return ErrStale
	}

	c.transcript = append(c.transcript, MessageEntry(model.NewUserMessage(echo)))
	if err != nil {
		c.transcript = append(c.transcript, MessageEntry(model.NewBotMessage(GenericError)))
		c.mu.Unlock()
		c.logger.Warn("error sending message", zap.Error(err))
		c.notify()
		return fmt.Errorf("send message: %w", err)
	}

	c.transcript = append(c.transcript, MessageEntry(model.NewBotMessage(resp.Response)))
	refresh := false
	if target.IsZero() && !resp.ConversationID.IsZero() {
		refresh = true
		if c.activeID.IsZero() {
			c.activeID = resp.ConversationID
			c.logger.Debug("adopted conversation id",
				zap.String("conversation_id", resp.ConversationID.String()))
		}
	}
	c.mu.Unlock()
	c.notify()

	if refresh {
		// The reply is already shown; a failed refresh only leaves the
		// history stale.
		_ = c.LoadConversations(ctx)
	}
	return nil
}

// =============================================================================
// DELETION
// =============================================================================

// ConfirmAndDelete appends an inline confirmation for conv. Nothing is
// deleted until its Confirm action is dispatched.
func (c *Controller) ConfirmAndDelete(conv model.Conversation) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transcript = append(c.transcript, Entry{
		Kind: EntryConfirm,
		Confirm: &Confirmation{
			ConversationID: conv.ID,
			Prompt:         fmt.Sprintf("Are you sure you want to delete %q? This cannot be undone.", conv.DisplayTitle()),
			Confirm:        DeleteConversation{ID: conv.ID},
			Cancel:         CancelDelete{ID: conv.ID},
		},
	})
	c.changedLocked()
}

// CancelDelete resolves any open confirmation for id without deleting.
func (c *Controller) CancelDelete(id model.ConversationID) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveConfirmLocked(id)
}

func (c *Controller) resolveConfirmLocked(id model.ConversationID) {
	for i := range c.transcript {
		if cf := c.transcript[i].Confirm; cf != nil && cf.ConversationID == id && !cf.Resolved {
			cp := *cf
			cp.Resolved = true
			c.transcript[i].Confirm = &cp
		}
	}
	c.changedLocked()
}

// PerformDelete removes a conversation. If it was active the session resets
// to a new conversation; the list is then refreshed. Failures append
// "Error deleting chat: ..." to the transcript.
func (c *Controller) PerformDelete(ctx context.Context, id model.ConversationID) error {
	if id.IsZero() {
		return fmt.Errorf("delete: %w", model.ErrInvalidConversationID)
	}

	c.mu.Lock()
	if c.deleting[id] {
		c.mu.Unlock()
		return ErrDeleteInProgress
	}
	c.deleting[id] = true
	c.resolveConfirmLocked(id)
	c.mu.Unlock()
	c.notify()

	err := c.backend.DeleteConversation(ctx, id)

	c.mu.Lock()
	delete(c.deleting, id)
	if err != nil {
		if api.IsUnauthorized(err) {
			c.requireLoginLocked()
			c.mu.Unlock()
			c.notify()
			return err
		}
		reason := api.ErrorMessage(err)
		if reason == "" {
			reason = UnknownError
		}
		c.transcript = append(c.transcript,
			MessageEntry(model.NewBotMessage("Error deleting chat: "+reason)))
		c.changedLocked()
		c.mu.Unlock()
		c.logger.Warn("error deleting conversation",
			zap.String("conversation_id", id.String()), zap.Error(err))
		c.notify()
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}

	if c.activeID == id {
		c.resetLocked()
	}
	c.mu.Unlock()
	c.notify()

	return c.LoadConversations(ctx)
}

// =============================================================================
// RENDERING SUPPORT
// =============================================================================

// AddMessage appends a message to the transcript. Used for local notices
// such as unsupported capabilities.
func (c *Controller) AddMessage(sender model.Sender, text string) {
	defer c.notify()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, MessageEntry(model.Message{Sender: sender, Text: text}))
	c.changedLocked()
}
