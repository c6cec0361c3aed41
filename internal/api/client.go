// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the chat backend.
//
// The backend exposes conversation listing, history retrieval, a multipart
// chat endpoint and deletion, plus cookie-based login. Every method maps a
// 401 (or a redirect to the login page) to ErrUnauthorized so callers can
// switch to the login screen.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/model"
)

// Configuration constants for the chat backend client.
const (
	// DefaultServerURL is where `chatterm serve` listens by default.
	DefaultServerURL = "http://127.0.0.1:5000"

	// DefaultTimeout bounds a single request. Bot replies can be slow.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024

	// LoginPath is the backend path unauthenticated requests are sent to.
	LoginPath = "/login"

	// UserAgent identifies the client to the backend.
	UserAgent = "chatterm/0.1.0"
)

// Sentinel errors for the status codes callers branch on.
var (
	// ErrUnauthorized indicates the session is missing or expired.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the conversation belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the resource already exists (registration).
	ErrConflict = errors.New("conflict")

	// ErrEmptyRequest indicates a chat request with neither text nor file.
	ErrEmptyRequest = errors.New("message or file required")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
}

// Unwrap maps the status code to a sentinel error.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return nil
	}
}

// IsUnauthorized reports whether err means the user must log in again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// ErrorMessage returns the backend-supplied message of err, if any.
func ErrorMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// Describe returns a message suitable for showing err to the user. Unlike
// ErrorMessage it is never empty for a non-nil error.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if msg := ErrorMessage(err); msg != "" {
		return msg
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("Server returned %d %s", apiErr.Status, http.StatusText(apiErr.Status))
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "The server did not respond in time."
		}
		return "Could not reach the server: " + urlErr.Err.Error()
	}
	return err.Error()
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// Attachment is a file sent with a chat message.
type Attachment struct {
	Name string
	Data []byte
}

// AttachmentFromFile reads path into an Attachment, refusing files larger
// than maxBytes (0 means no limit).
func AttachmentFromFile(path string, maxBytes int64) (*Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("attachment %s is a directory", path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, fmt.Errorf("attachment %s exceeds %d bytes", filepath.Base(path), maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return &Attachment{Name: filepath.Base(path), Data: data}, nil
}

// ChatRequest is the multipart payload of POST /chat.
type ChatRequest struct {
	// Message is optional when File is set.
	Message string

	// File is optional.
	File *Attachment

	// ConversationID is omitted from the form when zero.
	ConversationID model.ConversationID
}

// ChatResponse is the JSON reply of POST /chat.
type ChatResponse struct {
	Response       string               `json:"response"`
	ConversationID model.ConversationID `json:"conversation_id"`
}

// HealthResponse is the JSON reply of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// errorBody is the JSON error envelope used by the backend.
type errorBody struct {
	Error string `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for the backend at baseURL with an in-memory
// cookie jar.
func NewClient(baseURL string) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultServerURL
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	jar, err := NewMemoryJar()
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		logger: zap.NewNop(),
	}
	c.httpClient.CheckRedirect = c.checkRedirect
	return c, nil
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithCookieJar replaces the cookie jar, e.g. with a FileJar.
func (c *Client) WithCookieJar(jar http.CookieJar) *Client {
	c.httpClient.Jar = jar
	return c
}

// WithLogger sets the logger used for request tracing.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CookieJar returns the jar holding the session cookie.
func (c *Client) CookieJar() http.CookieJar {
	return c.httpClient.Jar
}

// checkRedirect turns a redirect to the login page into ErrUnauthorized,
// which is how form-login backends answer unauthenticated API calls.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if req.URL.Path == LoginPath && len(via) > 0 && via[0].URL.Path != LoginPath {
		return ErrUnauthorized
	}
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	return nil
}

// endpoint resolves a path against the base URL.
func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// =============================================================================
// CONVERSATION ENDPOINTS
// =============================================================================

// ListConversations fetches GET /get_conversations, in server order.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	if err := c.getJSON(ctx, "/get_conversations", &convs); err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return convs, nil
}

// GetChat fetches GET /get_chat/{id}: the full history of one conversation.
func (c *Client) GetChat(ctx context.Context, id model.ConversationID) ([]model.Message, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("get chat: %w", model.ErrInvalidConversationID)
	}
	var msgs []model.Message
	if err := c.getJSON(ctx, "/get_chat/"+url.PathEscape(id.String()), &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// SendMessage posts a multipart message to POST /chat.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Message == "" && req.File == nil {
		return nil, ErrEmptyRequest
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if req.Message != "" {
		if err := mw.WriteField("message", req.Message); err != nil {
			return nil, fmt.Errorf("failed to encode message: %w", err)
		}
	}
	if req.File != nil {
		fw, err := mw.CreateFormFile("file", req.File.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to encode file: %w", err)
		}
		if _, err := fw.Write(req.File.Data); err != nil {
			return nil, fmt.Errorf("failed to encode file: %w", err)
		}
	}
	if !req.ConversationID.IsZero() {
		if err := mw.WriteField("conversation_id", req.ConversationID.String()); err != nil {
			return nil, fmt.Errorf("failed to encode conversation id: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp ChatResponse
	if err := c.doJSON(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteConversation issues DELETE /delete_conversation/{id}.
func (c *Client) DeleteConversation(ctx context.Context, id model.ConversationID) error {
	if id.IsZero() {
		return fmt.Errorf("delete conversation: %w", model.ErrInvalidConversationID)
	}
	req, err := c.newRequest(ctx, http.MethodDelete, "/delete_conversation/"+url.PathEscape(id.String()), nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, nil)
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// Login posts credentials to POST /login. On success the session cookie is
// stored in the client's jar. otp may be empty when the account has no
// second factor.
func (c *Client) Login(ctx context.Context, username, password, otp string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	if otp != "" {
		form.Set("otp", otp)
	}
	return c.postForm(ctx, LoginPath, form)
}

// Register posts a new account to POST /register.
func (c *Client) Register(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	return c.postForm(ctx, "/register", form)
}

// Logout ends the session on the backend.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/logout", nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, nil)
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.doJSON(req, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// doJSON performs req and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) doJSON(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		if errors.Is(err, ErrUnauthorized) {
			return ErrUnauthorized
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("request_id", req.Header.Get("X-Request-ID")))

	body, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP error response to an *APIError.
func handleErrorResponse(statusCode int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return &APIError{Status: statusCode, Message: eb.Error}
	}
	return &APIError{Status: statusCode}
}
