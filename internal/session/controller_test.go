// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/model"
)

// fakeBackend is an in-memory Backend. Hooks override the default behavior.
type fakeBackend struct {
	mu sync.Mutex

	convs    []model.Conversation
	chats    map[model.ConversationID][]model.Message
	requests []api.ChatRequest
	deleted  []model.ConversationID

	listFn   func() ([]model.Conversation, error)
	getFn    func(id model.ConversationID) ([]model.Message, error)
	sendFn   func(req api.ChatRequest) (*api.ChatResponse, error)
	deleteFn func(id model.ConversationID) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{chats: make(map[model.ConversationID][]model.Message)}
}

func (f *fakeBackend) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	if f.listFn != nil {
		return f.listFn()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Conversation, len(f.convs))
	copy(out, f.convs)
	return out, nil
}

func (f *fakeBackend) GetChat(ctx context.Context, id model.ConversationID) ([]model.Message, error) {
	if f.getFn != nil {
		return f.getFn(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[id], nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(req)
	}
	return &api.ChatResponse{Response: "ok", ConversationID: req.ConversationID}, nil
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	if f.deleteFn != nil {
		if err := f.deleteFn(id); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	kept := f.convs[:0]
	for _, c := range f.convs {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.convs = kept
	return nil
}

var errUnauthorized = &api.APIError{Status: http.StatusUnauthorized}

// activeCount returns how many history items are marked active.
func activeCount(s State) int {
	n := 0
	for _, h := range s.History {
		if h.Active {
			n++
		}
	}
	return n
}

func textsOf(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		if e.Kind == EntryMessage {
			out = append(out, e.Message.Text)
		}
	}
	return out
}

// =============================================================================
// INITIAL STATE
// =============================================================================

func TestNewController_Greeting(t *testing.T) {
	c := NewController(newFakeBackend())
	assert.True(t, c.ActiveID().IsZero())
	assert.Equal(t, []string{Greeting}, textsOf(c.Transcript()))
	assert.Equal(t, RouteChat, c.Route())
	assert.False(t, c.Typing())
}

// =============================================================================
// LIST SYNC
// =============================================================================

func TestLoadConversations_History(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "2", Title: "B"}, {ID: "1", Title: ""}}
	c := NewController(fb)

	require.NoError(t, c.LoadConversations(context.Background()))
	h := c.History()
	require.Len(t, h, 3)
	assert.True(t, h[0].IsNewControl())
	assert.Equal(t, NewConversationLabel, h[0].Label)
	assert.Nil(t, h[0].Delete)
	assert.Equal(t, "B", h[1].Label)
	assert.Equal(t, "Conversation 1", h[2].Label)
	assert.Equal(t, SelectConversation{ID: "2"}, h[1].Select)
	assert.Equal(t, RequestDelete{Conversation: model.Conversation{ID: "1"}}, h[2].Delete)
}

func TestLoadConversations_FailureKeepsStaleHistory(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "1", Title: "Trip"}}
	c := NewController(fb)
	require.NoError(t, c.LoadConversations(context.Background()))

	fb.listFn = func() ([]model.Conversation, error) { return nil, errors.New("connection refused") }
	require.Error(t, c.LoadConversations(context.Background()))

	h := c.History()
	require.Len(t, h, 2)
	assert.Equal(t, "Trip", h[1].Label)
	assert.Equal(t, []string{Greeting}, textsOf(c.Transcript()))
	assert.Equal(t, RouteChat, c.Route())
}

func TestLoadConversations_Unauthorized(t *testing.T) {
	fb := newFakeBackend()
	fb.listFn = func() ([]model.Conversation, error) { return nil, errUnauthorized }
	c := NewController(fb)

	err := c.LoadConversations(context.Background())
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, RouteLogin, c.Route())
}

func TestLoadConversations_OutOfOrderCompletion(t *testing.T) {
	fb := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	var calls int
	var mu sync.Mutex
	fb.listFn = func() ([]model.Conversation, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return []model.Conversation{{ID: "old"}}, nil
		}
		return []model.Conversation{{ID: "new"}, {ID: "old"}}, nil
	}
	c := NewController(fb)

	done := make(chan error)
	go func() { done <- c.LoadConversations(context.Background()) }()
	<-started

	require.NoError(t, c.LoadConversations(context.Background()))
	close(release)
	require.NoError(t, <-done)

	h := c.History()
	require.Len(t, h, 3, "older list must not overwrite the newer one")
	assert.Equal(t, model.ConversationID("new"), h[1].ID)
}

// =============================================================================
// SELECTION
// =============================================================================

func TestSetActiveConversation_ReplacesTranscript(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "1", Title: "Trip"}}
	fb.chats["1"] = []model.Message{model.NewUserMessage("Hi"), model.NewBotMessage("Hello!")}
	c := NewController(fb)
	require.NoError(t, c.LoadConversations(context.Background()))

	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))

	tr := c.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, model.NewUserMessage("Hi"), tr[0].Message)
	assert.Equal(t, model.NewBotMessage("Hello!"), tr[1].Message)

	s := c.Snapshot()
	assert.Equal(t, model.ConversationID("1"), s.ActiveID)
	assert.Equal(t, 1, activeCount(s))
	assert.True(t, s.History[1].Active)
}

func TestSetActiveConversation_SwitchMovesMarker(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "1"}, {ID: "2"}}
	c := NewController(fb)
	require.NoError(t, c.LoadConversations(context.Background()))

	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))
	require.NoError(t, c.SetActiveConversation(context.Background(), "2"))

	s := c.Snapshot()
	assert.Equal(t, 1, activeCount(s))
	assert.False(t, s.History[1].Active)
	assert.True(t, s.History[2].Active)
	assert.Empty(t, s.Transcript)
}

func TestSetActiveConversation_Unauthorized(t *testing.T) {
	fb := newFakeBackend()
	fb.getFn = func(id model.ConversationID) ([]model.Message, error) { return nil, errUnauthorized }
	c := NewController(fb)
	c.AddMessage(model.SenderUser, "before")
	before := c.Transcript()

	err := c.SetActiveConversation(context.Background(), "3")
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, RouteLogin, c.Route())
	assert.Equal(t, before, c.Transcript())
}

func TestSetActiveConversation_StaleReplyDropped(t *testing.T) {
	fb := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	fb.getFn = func(id model.ConversationID) ([]model.Message, error) {
		if id == "slow" {
			close(started)
			<-release
			return []model.Message{model.NewBotMessage("slow")}, nil
		}
		return []model.Message{model.NewBotMessage("fast")}, nil
	}
	c := NewController(fb)

	done := make(chan error)
	go func() { done <- c.SetActiveConversation(context.Background(), "slow") }()
	<-started
	require.NoError(t, c.SetActiveConversation(context.Background(), "fast"))
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, []string{"fast"}, textsOf(c.Transcript()))
	assert.Equal(t, model.ConversationID("fast"), c.ActiveID())
}

func TestCreateNewConversation(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "1"}}
	fb.chats["1"] = []model.Message{model.NewUserMessage("Hi")}
	c := NewController(fb)
	require.NoError(t, c.LoadConversations(context.Background()))
	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))

	c.CreateNewConversation()

	s := c.Snapshot()
	assert.True(t, s.ActiveID.IsZero())
	assert.Equal(t, 0, activeCount(s))
	assert.Equal(t, []string{Greeting}, textsOf(s.Transcript))
	assert.Empty(t, fb.requests)
}

// =============================================================================
// SEND
// =============================================================================

func TestSendMessage_NewConversationAdoptsID(t *testing.T) {
	fb := newFakeBackend()
	fb.sendFn = func(req api.ChatRequest) (*api.ChatResponse, error) {
		fb.mu.Lock()
		fb.convs = append(fb.convs, model.Conversation{ID: "9", Title: "Hello"})
		fb.mu.Unlock()
		return &api.ChatResponse{Response: "Hi there", ConversationID: "9"}, nil
	}
	c := NewController(fb)

	require.NoError(t, c.SendMessage(context.Background(), "Hello", nil))

	assert.True(t, fb.requests[0].ConversationID.IsZero())
	s := c.Snapshot()
	assert.Equal(t, model.ConversationID("9"), s.ActiveID)
	assert.Equal(t, []string{Greeting, "Hello", "Hi there"}, textsOf(s.Transcript))
	require.Len(t, s.History, 2)
	assert.Equal(t, 1, activeCount(s))
	assert.True(t, s.History[1].Active)
	assert.False(t, s.Typing)
	assert.Empty(t, s.Pending)
}

func TestSendMessage_ExistingConversation(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	require.NoError(t, c.SetActiveConversation(context.Background(), "4"))

	require.NoError(t, c.SendMessage(context.Background(), "more", nil))
	assert.Equal(t, model.ConversationID("4"), fb.requests[0].ConversationID)
	assert.Equal(t, model.ConversationID("4"), c.ActiveID())
}

func TestSendMessage_File(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)

	file := &api.Attachment{Name: "notes.txt", Data: []byte("x")}
	require.NoError(t, c.SendMessage(context.Background(), "", file))

	require.Len(t, fb.requests, 1)
	assert.Equal(t, "Summarize this document: notes.txt", fb.requests[0].Message)
	assert.Same(t, file, fb.requests[0].File)
	assert.Contains(t, textsOf(c.Transcript()), "Uploading file: notes.txt")
}

func TestSendMessage_Empty(t *testing.T) {
	c := NewController(newFakeBackend())
	assert.ErrorIs(t, c.SendMessage(context.Background(), "", nil), ErrEmptyMessage)
}

func TestSendMessage_Failure(t *testing.T) {
	fb := newFakeBackend()
	fb.sendFn = func(req api.ChatRequest) (*api.ChatResponse, error) {
		return nil, &api.APIError{Status: http.StatusInternalServerError}
	}
	c := NewController(fb)

	require.Error(t, c.SendMessage(context.Background(), "Hello", nil))
	assert.Equal(t, []string{Greeting, "Hello", GenericError}, textsOf(c.Transcript()))
	assert.False(t, c.Typing())
	assert.True(t, c.ActiveID().IsZero())
}

func TestSendMessage_Unauthorized(t *testing.T) {
	fb := newFakeBackend()
	fb.sendFn = func(req api.ChatRequest) (*api.ChatResponse, error) { return nil, errUnauthorized }
	c := NewController(fb)
	before := c.Transcript()

	err := c.SendMessage(context.Background(), "Hello", nil)
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, RouteLogin, c.Route())
	assert.Equal(t, before, c.Transcript())
	assert.Empty(t, c.Snapshot().Pending)
}

func TestSendMessage_PendingWhileInFlight(t *testing.T) {
	fb := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	fb.sendFn = func(req api.ChatRequest) (*api.ChatResponse, error) {
		close(started)
		<-release
		return &api.ChatResponse{Response: "done"}, nil
	}
	c := NewController(fb)

	done := make(chan error)
	go func() { done <- c.SendMessage(context.Background(), "Hello", nil) }()
	<-started

	s := c.Snapshot()
	assert.True(t, s.Typing)
	assert.Equal(t, []model.Message{model.NewUserMessage("Hello")}, s.Pending)
	assert.Equal(t, []string{Greeting}, textsOf(s.Transcript))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Typing())
}

func TestSendMessage_ReplyAfterSwitchIsDropped(t *testing.T) {
	fb := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	fb.sendFn = func(req api.ChatRequest) (*api.ChatResponse, error) {
		close(started)
		<-release
		return &api.ChatResponse{Response: "late", ConversationID: "5"}, nil
	}
	fb.chats["2"] = []model.Message{model.NewBotMessage("other")}
	c := NewController(fb)

	done := make(chan error)
	go func() { done <- c.SendMessage(context.Background(), "Hello", nil) }()
	<-started
	require.NoError(t, c.SetActiveConversation(context.Background(), "2"))
	close(release)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, model.ConversationID("2"), c.ActiveID())
	assert.Equal(t, []string{"other"}, textsOf(c.Transcript()))
}

func TestSendMessage_SecondNewSessionReplyNotAppended(t *testing.T) {
	fb := newFakeBackend()
	gates := map[string]chan struct{}{"first": make(chan struct{}), "second": make(chan struct{})}
	ids := map[string]model.ConversationID{"first": "1", "second": "2"}
	var started sync.WaitGroup
	started.Add(2)
	fb.sendFn = func(req api.ChatRequest) (*api.ChatResponse, error) {
		started.Done()
		<-gates[req.Message]
		id := ids[req.Message]
		fb.mu.Lock()
		fb.convs = append([]model.Conversation{{ID: id, Title: req.Message}}, fb.convs...)
		fb.chats[id] = []model.Message{model.NewUserMessage(req.Message), model.NewBotMessage("re " + req.Message)}
		fb.mu.Unlock()
		return &api.ChatResponse{Response: "re " + req.Message, ConversationID: id}, nil
	}
	c := NewController(fb)

	first := make(chan error)
	second := make(chan error)
	go func() { first <- c.SendMessage(context.Background(), "first", nil) }()
	go func() { second <- c.SendMessage(context.Background(), "second", nil) }()
	started.Wait()

	close(gates["first"])
	require.NoError(t, <-first)
	close(gates["second"])
	assert.ErrorIs(t, <-second, ErrStale)

	s := c.Snapshot()
	assert.Equal(t, model.ConversationID("1"), s.ActiveID)
	assert.Equal(t, []string{Greeting, "first", "re first"}, textsOf(s.Transcript))
	require.Len(t, s.History, 3)
	assert.Equal(t, 1, activeCount(s))

	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))
	assert.Equal(t, []string{"first", "re first"}, textsOf(c.Transcript()))
}

// =============================================================================
// DELETE
// =============================================================================

func TestConfirmAndDelete_CarriesTypedActions(t *testing.T) {
	c := NewController(newFakeBackend())
	c.ConfirmAndDelete(model.Conversation{ID: "3", Title: "Trip"})

	tr := c.Transcript()
	last := tr[len(tr)-1]
	require.Equal(t, EntryConfirm, last.Kind)
	assert.Equal(t, `Are you sure you want to delete "Trip"? This cannot be undone.`, last.Confirm.Prompt)
	assert.Equal(t, DeleteConversation{ID: "3"}, last.Confirm.Confirm)
	assert.Equal(t, CancelDelete{ID: "3"}, last.Confirm.Cancel)
	assert.False(t, last.Confirm.Resolved)
}

func TestPerformDelete_ActiveResetsSession(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "1", Title: "Trip"}, {ID: "2"}}
	fb.chats["1"] = []model.Message{model.NewUserMessage("Hi")}
	c := NewController(fb)
	require.NoError(t, c.LoadConversations(context.Background()))
	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))

	c.ConfirmAndDelete(model.Conversation{ID: "1", Title: "Trip"})
	require.NoError(t, c.Actions().Dispatch(context.Background(), DeleteConversation{ID: "1"}))

	s := c.Snapshot()
	assert.True(t, s.ActiveID.IsZero())
	assert.Equal(t, []string{Greeting}, textsOf(s.Transcript))
	require.Len(t, s.History, 2)
	assert.Equal(t, model.ConversationID("2"), s.History[1].ID)
}

func TestPerformDelete_InactiveKeepsTranscript(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "1"}, {ID: "2"}}
	fb.chats["1"] = []model.Message{model.NewUserMessage("Hi")}
	c := NewController(fb)
	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))

	c.ConfirmAndDelete(model.Conversation{ID: "2"})
	require.NoError(t, c.PerformDelete(context.Background(), "2"))

	tr := c.Transcript()
	assert.Equal(t, model.ConversationID("1"), c.ActiveID())
	assert.Equal(t, "Hi", tr[0].Message.Text)
	assert.True(t, tr[1].Confirm.Resolved)
}

func TestPerformDelete_FailureAppendsError(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)

	fb.deleteFn = func(id model.ConversationID) error {
		return &api.APIError{Status: http.StatusForbidden, Message: "Unauthorized"}
	}
	require.Error(t, c.PerformDelete(context.Background(), "1"))
	assert.Contains(t, textsOf(c.Transcript()), "Error deleting chat: Unauthorized")

	fb.deleteFn = func(id model.ConversationID) error { return errors.New("connection reset") }
	require.Error(t, c.PerformDelete(context.Background(), "1"))
	assert.Contains(t, textsOf(c.Transcript()), "Error deleting chat: "+UnknownError)
}

func TestPerformDelete_Exclusion(t *testing.T) {
	fb := newFakeBackend()
	release := make(chan struct{})
	started := make(chan struct{})
	fb.deleteFn = func(id model.ConversationID) error {
		close(started)
		<-release
		return nil
	}
	c := NewController(fb)
	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))

	done := make(chan error)
	go func() { done <- c.PerformDelete(context.Background(), "1") }()
	<-started

	assert.ErrorIs(t, c.PerformDelete(context.Background(), "1"), ErrDeleteInProgress)
	assert.ErrorIs(t, c.SetActiveConversation(context.Background(), "1"), ErrDeleteInProgress)
	assert.ErrorIs(t, c.SendMessage(context.Background(), "hi", nil), ErrDeleteInProgress)
	assert.Empty(t, fb.requests)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, c.ActiveID().IsZero())
}

func TestCancelDelete(t *testing.T) {
	fb := newFakeBackend()
	c := NewController(fb)
	c.ConfirmAndDelete(model.Conversation{ID: "3"})

	require.NoError(t, c.Actions().Dispatch(context.Background(), CancelDelete{ID: "3"}))
	tr := c.Transcript()
	assert.True(t, tr[len(tr)-1].Confirm.Resolved)
	assert.Empty(t, fb.deleted)
}

// =============================================================================
// DISPATCH / NOTIFY
// =============================================================================

func TestDispatcher_Unknown(t *testing.T) {
	d := NewDispatcher()
	assert.ErrorIs(t, d.Dispatch(context.Background(), NewConversation{}), ErrUnknownAction)
	assert.ErrorIs(t, d.Dispatch(context.Background(), nil), ErrUnknownAction)
}

func TestController_DispatchActions(t *testing.T) {
	fb := newFakeBackend()
	fb.chats["3"] = []model.Message{model.NewBotMessage("three")}
	c := NewController(fb)
	ctx := context.Background()

	require.NoError(t, c.Actions().Dispatch(ctx, &SelectConversation{ID: "3"}))
	assert.Equal(t, model.ConversationID("3"), c.ActiveID())

	require.NoError(t, c.Actions().Dispatch(ctx, NewConversation{}))
	assert.True(t, c.ActiveID().IsZero())

	conv := model.Conversation{ID: "3", Title: "Three"}
	require.NoError(t, c.Actions().Dispatch(ctx, &RequestDelete{Conversation: conv}))
	require.NoError(t, c.Actions().Dispatch(ctx, &CancelDelete{ID: "3"}))
	require.NoError(t, c.Actions().Dispatch(ctx, &DeleteConversation{ID: "3"}))
	assert.Equal(t, []model.ConversationID{"3"}, fb.deleted)
}

// otherSelect reuses a registered name with an unrelated type.
type otherSelect struct{}

func (otherSelect) Name() string { return ActionSelect }

func TestController_DispatchMismatchedAction(t *testing.T) {
	c := NewController(newFakeBackend())
	ctx := context.Background()

	var nilSelect *SelectConversation
	assert.ErrorIs(t, c.Actions().Dispatch(ctx, otherSelect{}), ErrUnknownAction)
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, c.Actions().Dispatch(ctx, nilSelect), ErrUnknownAction)
	})
}

func TestController_OnChange(t *testing.T) {
	var n int
	c := NewController(newFakeBackend()).WithOnChange(func() { n++ })
	v := c.Snapshot().Version
	c.AddMessage(model.SenderBot, "notice")
	assert.Equal(t, 1, n)
	assert.Greater(t, c.Snapshot().Version, v)
}

func TestReset(t *testing.T) {
	fb := newFakeBackend()
	fb.convs = []model.Conversation{{ID: "1"}}
	c := NewController(fb)
	require.NoError(t, c.LoadConversations(context.Background()))
	require.NoError(t, c.SetActiveConversation(context.Background(), "1"))

	c.Reset()
	s := c.Snapshot()
	assert.Len(t, s.History, 1)
	assert.True(t, s.ActiveID.IsZero())
	assert.Equal(t, []string{Greeting}, textsOf(s.Transcript))
}
