// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for the chat backend.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/jeranaias/chatterm/internal/model"
)

// Storage errors.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUserExists indicates the username is already taken.
	ErrUserExists = errors.New("user already exists")
)

// =============================================================================
// ROW TYPES
// =============================================================================

// User is a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	// TOTPSecret is empty when the account has no second factor.
	TOTPSecret string
	CreatedAt  time.Time
}

// HasTOTP reports whether the account requires a one-time code.
func (u *User) HasTOTP() bool {
	return u.TOTPSecret != ""
}

// Conversation is a stored conversation row.
type Conversation struct {
	ID        int64
	UserID    int64
	Title     string
	CreatedAt time.Time
}

// Model converts the row to the wire type.
func (c Conversation) Model() model.Conversation {
	return model.Conversation{ID: model.IDFromInt(c.ID), Title: c.Title}
}

// Message is a stored message row.
type Message struct {
	ID             int64
	ConversationID int64
	Sender         model.Sender
	Text           string
	CreatedAt      time.Time
}

// Model converts the row to the wire type.
func (m Message) Model() model.Message {
	return model.Message{Sender: m.Sender, Text: m.Text}
}

// =============================================================================
// STORE
// =============================================================================

// Store is a SQLite-backed store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser inserts a user. totpSecret may be empty.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, totpSecret string) (*User, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, totp_secret, created_at) VALUES (?, ?, ?, ?)`,
		username, passwordHash, totpSecret, toMillis(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return &User{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		TOTPSecret:   totpSecret,
		CreatedAt:    fromMillis(toMillis(now)),
	}, nil
}

// UserByName looks up a user by username.
func (s *Store) UserByName(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, totp_secret, created_at FROM users WHERE username = ?`, username))
}

// UserByID looks up a user by id.
func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, totp_secret, created_at FROM users WHERE id = ?`, id))
}

// SetTOTPSecret enrols (or with "" removes) a second factor.
func (s *Store) SetTOTPSecret(ctx context.Context, userID int64, secret string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET totp_secret = ? WHERE id = ?`, secret, userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var created int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.TOTPSecret, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// CreateSession stores a login session token.
func (s *Store) CreateSession(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, toMillis(now), toMillis(now.Add(ttl)))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// SessionUser returns the user owning a live session token.
func (s *Store) SessionUser(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.totp_secret, u.created_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > ?`, token, toMillis(s.now()))
	return s.scanUser(row)
}

// DeleteSession removes a session token. Missing tokens are not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpiredSessions deletes expired sessions and returns how many went.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(s.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation inserts a conversation owned by userID.
func (s *Store) CreateConversation(ctx context.Context, userID int64, title string) (*Conversation, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, title, created_at) VALUES (?, ?, ?)`,
		userID, title, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation id: %w", err)
	}
	return &Conversation{ID: id, UserID: userID, Title: title, CreatedAt: fromMillis(toMillis(now))}, nil
}

// Conversation returns one conversation regardless of owner; callers check
// UserID.
func (s *Store) Conversation(ctx context.Context, id int64) (*Conversation, error) {
	var c Conversation
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.UserID, &c.Title, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// ListConversations returns a user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := []Conversation{}
	for rows.Next() {
		var c Conversation
		var created int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &created); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return requireAffected(res)
}

// =============================================================================
// MESSAGES
// =============================================================================

// AddMessage appends a message to a conversation.
func (s *Store) AddMessage(ctx context.Context, conversationID int64, sender model.Sender, text string) (*Message, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender, message, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, string(sender), text, toMillis(now))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      fromMillis(toMillis(now)),
	}, nil
}

// Messages returns a conversation's messages in insertion order.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, message, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var sender string
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = model.ParseSender(sender)
		m.CreatedAt = fromMillis(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
