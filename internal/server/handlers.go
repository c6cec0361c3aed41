// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/auth"
	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/responder"
	"github.com/jeranaias/chatterm/internal/storage"
	"github.com/jeranaias/chatterm/internal/util"
)

const (
	// TitleLength is the rune length of derived conversation titles.
	TitleLength = 30

	// UntitledConversation titles a conversation started with neither text
	// nor a named file.
	UntitledConversation = "Untitled Conversation"

	// maxFormBytes bounds non-file form fields.
	maxFormBytes = 1 << 20
)

// ============================================================================
// AUTH HANDLERS
// ============================================================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if remaining, err := s.lockout.Check(username); err != nil {
		s.logger.Info("login denied", zap.String("username", username), zap.String("reason", "locked"))
		writeLocked(w, remaining)
		return
	}

	user, err := s.store.UserByName(r.Context(), username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("login lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		s.loginFailed(w, username, "bad_credentials", "Invalid username or password")
		return
	}
	if user.HasTOTP() && !auth.ValidateTOTP(r.FormValue("otp"), user.TOTPSecret) {
		s.loginFailed(w, username, "bad_otp", "Invalid one-time code")
		return
	}
	_ = s.lockout.RecordAttempt(username, true)

	if err := s.startSession(w, r, user.ID); err != nil {
		s.logger.Error("create session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

// loginFailed counts a failed attempt and answers 401, or 429 once the
// username is locked.
func (s *Server) loginFailed(w http.ResponseWriter, username, reason, message string) {
	s.logger.Info("login denied", zap.String("username", username), zap.String("reason", reason))
	if err := s.lockout.RecordAttempt(username, false); errors.Is(err, ErrLocked) {
		s.logger.Warn("username locked after failed logins", zap.String("username", username))
		writeLocked(w, s.lockout.duration)
		return
	}
	writeError(w, http.StatusUnauthorized, message)
}

func writeLocked(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
	writeError(w, http.StatusTooManyRequests, "Too many failed attempts. Try again later.")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("hash password failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	user, err := s.store.CreateUser(r.Context(), username, hash, "")
	if errors.Is(err, storage.ErrUserExists) {
		writeError(w, http.StatusConflict, "Username already exists.")
		return
	}
	if err != nil {
		s.logger.Error("create user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	if err := s.startSession(w, r, user.ID); err != nil {
		s.logger.Error("create session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, successBody{Success: true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := s.store.DeleteSession(r.Context(), cookie.Value); err != nil {
			s.logger.Warn("delete session failed", zap.Error(err))
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	ttl := time.Duration(s.cfg.SessionHours) * time.Hour
	token := auth.NewSessionToken()
	if err := s.store.CreateSession(r.Context(), token, userID, ttl); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, api.HealthResponse{Status: status, Version: Version})
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	rows, err := s.store.ListConversations(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list conversations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load conversations")
		return
	}
	out := make([]model.Conversation, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.Model())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedConversation(w, r, http.StatusForbidden, "Unauthorized")
	if !ok {
		return
	}
	rows, err := s.store.Messages(r.Context(), conv.ID)
	if err != nil {
		s.logger.Error("load messages failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return
	}
	out := make([]model.Message, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.Model())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.ownedConversation(w, r, http.StatusNotFound, "Conversation not found")
	if !ok {
		return
	}
	if err := s.store.DeleteConversation(r.Context(), conv.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		s.logger.Error("delete conversation failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	s.hub.Publish(conv.UserID, api.Event{
		Type:           api.EventConversationsChanged,
		ConversationID: strconv.FormatInt(conv.ID, 10),
	})
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: "Conversation deleted."})
}

// ownedConversation resolves the {id} path value to a conversation of the
// current user. Any miss writes status with message.
func (s *Server) ownedConversation(w http.ResponseWriter, r *http.Request, status int, message string) (*storage.Conversation, bool) {
	user := CurrentUser(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return nil, false
	}
	conv, err := s.store.Conversation(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("load conversation failed", zap.Int64("conversation_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load conversation")
		return nil, false
	}
	if conv == nil || conv.UserID != user.ID {
		writeError(w, status, message)
		return nil, false
	}
	return conv, true
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

type chatResponse struct {
	Response       string               `json:"response"`
	ConversationID model.ConversationID `json:"conversation_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		return
	}

	text := strings.TrimSpace(r.FormValue("message"))
	doc, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if text == "" && doc == nil {
		writeError(w, http.StatusBadRequest, "Message or file required")
		return
	}

	var conv *storage.Conversation
	var history []model.Message
	if id, err := model.ParseConversationID(r.FormValue("conversation_id")).Int64(); err == nil {
		conv, err = s.store.Conversation(r.Context(), id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("load conversation failed", zap.Int64("conversation_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to load conversation")
			return
		}
		if conv == nil || conv.UserID != user.ID {
			writeError(w, http.StatusForbidden, "Unauthorized")
			return
		}
		rows, err := s.store.Messages(r.Context(), conv.ID)
		if err != nil {
			s.logger.Error("load messages failed", zap.Int64("conversation_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to load conversation")
			return
		}
		for _, m := range rows {
			history = append(history, m.Model())
		}
	}

	turns := responder.BuildPrompt(s.responder.SystemPrompt, history, text, doc)
	reply, err := responder.Answer(r.Context(), s.bot, responder.Fit(turns, s.responder.MaxContextTokens))
	if err != nil {
		s.logger.Error("responder failed",
			zap.String("backend", s.bot.Name()),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "Failed to generate a reply")
		return
	}

	created := conv == nil
	if created {
		conv, err = s.store.CreateConversation(r.Context(), user.ID, DeriveTitle(text, doc))
		if err != nil {
			s.logger.Error("create conversation failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to save conversation")
			return
		}
	}

	userText := text
	if userText == "" {
		userText = "File uploaded: " + doc.Name
	}
	if _, err := s.store.AddMessage(r.Context(), conv.ID, model.SenderUser, userText); err != nil {
		s.logger.Error("save message failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}
	if _, err := s.store.AddMessage(r.Context(), conv.ID, model.SenderBot, reply); err != nil {
		s.logger.Error("save reply failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save message")
		return
	}

	if created {
		s.hub.Publish(user.ID, api.Event{
			Type:           api.EventConversationsChanged,
			ConversationID: strconv.FormatInt(conv.ID, 10),
		})
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply, ConversationID: model.IDFromInt(conv.ID)})
}

// readUpload returns the optional "file" part.
func readUpload(r *http.Request) (*responder.Document, error) {
	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("invalid upload: %w", err)
	}
	return &responder.Document{Name: filepath.Base(hdr.Filename), Data: data}, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeEvents(w, r, CurrentUser(r.Context()).ID)
}

// DeriveTitle names a new conversation after its first message, else the
// uploaded file name, else UntitledConversation, cut to TitleLength runes.
func DeriveTitle(text string, doc *responder.Document) string {
	source := norm.NFC.String(strings.TrimSpace(text))
	if source == "" && doc != nil {
		source = norm.NFC.String(doc.Name)
	}
	if source == "" {
		source = UntitledConversation
	}
	return util.TruncateRunesNoEllipsis(source, TitleLength)
}
