// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/responder"
	"github.com/jeranaias/chatterm/internal/storage"
)

// =============================================================================
// FIXTURES
// =============================================================================

type failingResponder struct{}

func (failingResponder) Name() string { return "failing" }
func (failingResponder) Reply(context.Context, []responder.Turn) (string, error) {
	return "", errors.New("model offline")
}

type fixture struct {
	srv   *Server
	ts    *httptest.Server
	store *storage.Store
}

func newFixture(t *testing.T, bot responder.Responder) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.RateLimit = 0
	srv := New(cfg, store, bot, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Hub().Close()
		store.Close()
	})
	return &fixture{srv: srv, ts: ts, store: store}
}

// user creates an account and returns an api client logged in as it.
func (f *fixture) user(t *testing.T, name string) *api.Client {
	t.Helper()
	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	_, err = f.store.CreateUser(context.Background(), name, hash, "")
	require.NoError(t, err)

	c, err := api.NewClient(f.ts.URL)
	require.NoError(t, err)
	require.NoError(t, c.Login(context.Background(), name, "secret", ""))
	return c
}

// =============================================================================
// AUTH
// =============================================================================

func TestUnauthenticated(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c, err := api.NewClient(f.ts.URL)
	require.NoError(t, err)

	_, err = c.ListConversations(context.Background())
	assert.True(t, api.IsUnauthorized(err))

	_, err = c.SendMessage(context.Background(), api.ChatRequest{Message: "hi"})
	assert.True(t, api.IsUnauthorized(err))
}

func TestLogin_BadPassword(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	f.user(t, "alice")

	c, err := api.NewClient(f.ts.URL)
	require.NoError(t, err)
	err = c.Login(context.Background(), "alice", "wrong", "")
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, "Invalid username or password", api.ErrorMessage(err))
}

func TestLogin_TOTP(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	hash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	enr, err := auth.EnrollTOTP("bob")
	require.NoError(t, err)
	_, err = f.store.CreateUser(context.Background(), "bob", hash, enr.Secret)
	require.NoError(t, err)

	c, err := api.NewClient(f.ts.URL)
	require.NoError(t, err)
	err = c.Login(context.Background(), "bob", "secret", "000000")
	assert.Equal(t, "Invalid one-time code", api.ErrorMessage(err))
}

func TestRegisterAndLogout(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c, err := api.NewClient(f.ts.URL)
	require.NoError(t, err)

	require.NoError(t, c.Register(context.Background(), "carol", "pw"))
	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, convs)

	err = c.Register(context.Background(), "carol", "pw")
	assert.True(t, errors.Is(err, api.ErrConflict))

	require.NoError(t, c.Logout(context.Background()))
	_, err = c.ListConversations(context.Background())
	assert.True(t, api.IsUnauthorized(err))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c, err := api.NewClient(f.ts.URL)
	require.NoError(t, err)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, Version, h.Version)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestChatFlow(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c := f.user(t, "alice")
	ctx := context.Background()

	resp, err := c.SendMessage(ctx, api.ChatRequest{Message: "Plan a trip to the mountains this summer"})
	require.NoError(t, err)
	assert.Equal(t, "**Echo:** Plan a trip to the mountains this summer", resp.Response)
	require.False(t, resp.ConversationID.IsZero())

	convs, err := c.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, resp.ConversationID, convs[0].ID)
	assert.Equal(t, "Plan a trip to the mountains t", convs[0].Title)

	_, err = c.SendMessage(ctx, api.ChatRequest{Message: "And hiking?", ConversationID: resp.ConversationID})
	require.NoError(t, err)

	msgs, err := c.GetChat(ctx, resp.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, model.SenderBot, msgs[1].Sender)
	assert.Equal(t, "And hiking?", msgs[2].Text)
}

func TestChat_FileOnly(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c := f.user(t, "alice")
	ctx := context.Background()

	resp, err := c.SendMessage(ctx, api.ChatRequest{
		File: &api.Attachment{Name: "notes.txt", Data: []byte("the launch is on friday")},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Response, "the launch is on friday")

	convs, err := c.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "notes.txt", convs[0].Title)

	msgs, err := c.GetChat(ctx, resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "File uploaded: notes.txt", msgs[0].Text)
}

func TestChat_InvalidConversationIDStartsNew(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	f.user(t, "alice")
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}
	resp, err := client.PostForm(f.ts.URL+"/login", url.Values{"username": {"alice"}, "password": {"secret"}})
	require.NoError(t, err)
	resp.Body.Close()

	for _, id := range []string{"", "null", "undefined", "abc"} {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("message", "hello")
		mw.WriteField("conversation_id", id)
		mw.Close()

		resp, err := client.Post(f.ts.URL+"/chat", mw.FormDataContentType(), &body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "id %q", id)
		resp.Body.Close()
	}

	convs, err := f.store.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, convs, 4)
}

func TestChat_OtherUsersConversation(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	alice := f.user(t, "alice")
	mallory := f.user(t, "mallory")
	ctx := context.Background()

	resp, err := alice.SendMessage(ctx, api.ChatRequest{Message: "private"})
	require.NoError(t, err)

	_, err = mallory.GetChat(ctx, resp.ConversationID)
	assert.True(t, errors.Is(err, api.ErrForbidden))
	assert.Equal(t, "Unauthorized", api.ErrorMessage(err))

	_, err = mallory.SendMessage(ctx, api.ChatRequest{Message: "x", ConversationID: resp.ConversationID})
	assert.True(t, errors.Is(err, api.ErrForbidden))

	err = mallory.DeleteConversation(ctx, resp.ConversationID)
	assert.True(t, errors.Is(err, api.ErrNotFound))
	assert.Equal(t, "Conversation not found", api.ErrorMessage(err))
}

func TestChat_ResponderFailureStoresNothing(t *testing.T) {
	f := newFixture(t, failingResponder{})
	c := f.user(t, "alice")

	_, err := c.SendMessage(context.Background(), api.ChatRequest{Message: "hi"})
	require.Error(t, err)

	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c := f.user(t, "alice")
	ctx := context.Background()

	resp, err := c.SendMessage(ctx, api.ChatRequest{Message: "bye"})
	require.NoError(t, err)
	require.NoError(t, c.DeleteConversation(ctx, resp.ConversationID))

	convs, err := c.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)

	err = c.DeleteConversation(ctx, resp.ConversationID)
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestDeleteResponseBody(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c := f.user(t, "alice")
	resp, err := c.SendMessage(context.Background(), api.ChatRequest{Message: "x"})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodDelete, f.ts.URL+"/delete_conversation/"+resp.ConversationID.String(), nil)
	u, _ := url.Parse(f.ts.URL)
	for _, ck := range c.CookieJar().Cookies(u) {
		req.AddCookie(ck)
	}
	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Conversation deleted.", body["message"])
}

// =============================================================================
// EVENTS
// =============================================================================

func TestEvents_PublishedOnCreate(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	c := f.user(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan api.Event, 4)
	go c.Subscribe(ctx, func(ev api.Event) { events <- ev })

	require.Eventually(t, func() bool { return f.srv.Hub().Subscribers(1) == 1 },
		2*time.Second, 10*time.Millisecond)

	resp, err := c.SendMessage(context.Background(), api.ChatRequest{Message: "hello"})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, api.EventConversationsChanged, ev.Type)
		assert.Equal(t, resp.ConversationID.String(), ev.ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	proxies := NewTrustedProxies(nil, zap.NewNop())
	h := RateLimitMiddleware(limiter, proxies, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	var seen string
	h := LoggingMiddleware(zap.NewNop(), NewTrustedProxies(nil, zap.NewNop()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestTrustedProxies_ClientIP(t *testing.T) {
	tp := NewTrustedProxies([]string{"10.0.0.1", "bogus"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", tp.ClientIP(req))

	req.RemoteAddr = "198.51.100.7:5555"
	assert.Equal(t, "198.51.100.7", tp.ClientIP(req))
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		doc  *responder.Document
		want string
	}{
		{"short", "Hi", nil, "Hi"},
		{"truncated", strings.Repeat("a", 40), nil, strings.Repeat("a", 30)},
		{"unicode", strings.Repeat("é", 35), nil, strings.Repeat("é", 30)},
		{"combining normalized", "e\u0301", nil, "\u00e9"},
		{"file", "  ", &responder.Document{Name: "report.md"}, "report.md"},
		{"untitled", "", nil, UntitledConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.text, tt.doc))
		})
	}
}

// =============================================================================
// LOCKOUT
// =============================================================================

func TestLockout_LocksAndExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLockout(3, 15*time.Minute)
	l.now = func() time.Time { return now }

	require.NoError(t, l.RecordAttempt("Alice", false))
	require.NoError(t, l.RecordAttempt("alice", false))
	assert.ErrorIs(t, l.RecordAttempt(" alice ", false), ErrLocked)

	remaining, err := l.Check("ALICE")
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, 15*time.Minute, remaining)

	_, err = l.Check("bob")
	assert.NoError(t, err)

	now = now.Add(16 * time.Minute)
	_, err = l.Check("alice")
	assert.NoError(t, err)
	assert.Equal(t, 1, l.Cleanup())
}

func TestLockout_SuccessResets(t *testing.T) {
	l := NewLockout(2, time.Minute)
	require.NoError(t, l.RecordAttempt("carol", false))
	require.NoError(t, l.RecordAttempt("carol", true))
	require.NoError(t, l.RecordAttempt("carol", false))
	_, err := l.Check("carol")
	assert.NoError(t, err)
}

func TestLockout_Disabled(t *testing.T) {
	l := NewLockout(0, time.Minute)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.RecordAttempt("dave", false))
	}
	_, err := l.Check("dave")
	assert.NoError(t, err)
}

func TestLogin_LockedAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t, responder.Echo{})
	f.user(t, "erin")

	c, err := api.NewClient(f.ts.URL)
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < config.Default().Server.LoginAttempts-1; i++ {
		err := c.Login(ctx, "erin", "wrong", "")
		require.True(t, api.IsUnauthorized(err))
	}

	err = c.Login(ctx, "erin", "wrong", "")
	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)

	// The right password is refused while locked.
	err = c.Login(ctx, "erin", "secret", "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}
