// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jeranaias/chatterm/internal/model"
)

// ErrUnknownAction is returned when no handler is registered for an action.
var ErrUnknownAction = errors.New("unknown action")

// =============================================================================
// ACTIONS
// =============================================================================

// Action is a typed user intent emitted by a rendered element (a history
// entry, a confirmation prompt) and executed through a Dispatcher.
type Action interface {
	// Name is the registry key of the action kind.
	Name() string
}

// Action names.
const (
	ActionSelect    = "select_conversation"
	ActionNew       = "new_conversation"
	ActionRequest   = "request_delete"
	ActionDelete    = "delete_conversation"
	ActionCancelDel = "cancel_delete"
)

// SelectConversation makes a conversation active.
type SelectConversation struct {
	ID model.ConversationID
}

// Name implements Action.
func (SelectConversation) Name() string { return ActionSelect }

// NewConversation starts an unsaved conversation.
type NewConversation struct{}

// Name implements Action.
func (NewConversation) Name() string { return ActionNew }

// RequestDelete asks the user to confirm deletion of a conversation.
type RequestDelete struct {
	Conversation model.Conversation
}

// Name implements Action.
func (RequestDelete) Name() string { return ActionRequest }

// DeleteConversation removes a conversation. It is carried by the
// confirmation entry and only emitted once the user agrees.
type DeleteConversation struct {
	ID model.ConversationID
}

// Name implements Action.
func (DeleteConversation) Name() string { return ActionDelete }

// CancelDelete dismisses a pending confirmation.
type CancelDelete struct {
	ID model.ConversationID
}

// Name implements Action.
func (CancelDelete) Name() string { return ActionCancelDel }

// =============================================================================
// DISPATCHER
// =============================================================================

// Handler executes one kind of action.
type Handler func(ctx context.Context, a Action) error

// Dispatcher is a registry mapping action names to handlers.
// It is safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates an empty registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds h to the action name, replacing any previous handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Dispatch runs the handler registered for a.
func (d *Dispatcher) Dispatch(ctx context.Context, a Action) error {
	if a == nil {
		return fmt.Errorf("%w: nil", ErrUnknownAction)
	}
	if v := reflect.ValueOf(a); v.Kind() == reflect.Pointer && v.IsNil() {
		return fmt.Errorf("%w: nil %T", ErrUnknownAction, a)
	}
	d.mu.RLock()
	h, ok := d.handlers[a.Name()]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, a.Name())
	}
	return h(ctx, a)
}
