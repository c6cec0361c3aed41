// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/responder"
	"github.com/jeranaias/chatterm/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// Version is reported by GET /health.
	Version = "0.1.0"

	// sessionPurgeInterval is how often expired sessions are deleted.
	sessionPurgeInterval = 10 * time.Minute
)

// ============================================================================
// SERVER
// ============================================================================

// Server is the reference chat backend.
type Server struct {
	cfg       config.ServerConfig
	responder config.ResponderConfig

	store   *storage.Store
	bot     responder.Responder
	hub     *Hub
	limiter *RateLimiter
	lockout *Lockout
	proxies *TrustedProxies
	logger  *zap.Logger

	router  *http.ServeMux
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
	cancel context.CancelFunc
}

// New creates a server over store, answering with bot. A nil logger
// discards output.
func New(cfg *config.Config, store *storage.Store, bot responder.Responder, logger *zap.Logger) *Server {
	proxies := cfg.Server.TrustedProxies
	if len(proxies) == 0 {
		proxies = DefaultTrustedProxies
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg.Server,
		responder: cfg.Responder,
		store:     store,
		bot:       bot,
		logger:    logger,
		limiter:   NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		lockout:   NewLockout(cfg.Server.LoginAttempts, time.Duration(cfg.Server.LockoutMinutes)*time.Minute),
		router:    http.NewServeMux(),
	}
	s.proxies = NewTrustedProxies(proxies, logger)
	s.hub = NewHub(logger)
	s.setupRoutes()
	return s
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /login", s.handleLogin)
	s.router.HandleFunc("POST /register", s.handleRegister)
	s.router.HandleFunc("GET /health", s.handleHealth)

	authed := RequireSession(s.store, s.logger)
	s.router.Handle("POST /logout", authed(http.HandlerFunc(s.handleLogout)))
	s.router.Handle("GET /get_conversations", authed(http.HandlerFunc(s.handleListConversations)))
	s.router.Handle("GET /get_chat/{id}", authed(http.HandlerFunc(s.handleGetChat)))
	s.router.Handle("POST /chat", authed(http.HandlerFunc(s.handleChat)))
	s.router.Handle("DELETE /delete_conversation/{id}", authed(http.HandlerFunc(s.handleDeleteConversation)))
	s.router.Handle("GET /events", authed(http.HandlerFunc(s.handleEvents)))

	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger, s.proxies),
		SecurityHeadersMiddleware(),
		RateLimitMiddleware(s.limiter, s.proxies, s.logger),
	)(s.router)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.cancel = cancel
	s.mu.Unlock()

	go s.limiter.Cleanup(ctx)
	go s.purgeSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server start", zap.String("addr", ln.Addr().String()), zap.String("version", Version))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, closes event streams and waits for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.cancel = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("server shutdown")
	cancel()

	err := multierr.Append(s.hub.Close(), srv.Shutdown(ctx))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close shuts the server down and closes the store.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return multierr.Combine(s.Shutdown(ctx), s.store.Close())
}

func (s *Server) purgeSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.PurgeExpiredSessions(ctx)
			if err != nil {
				s.logger.Warn("session purge failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Debug("purged sessions", zap.Int64("count", n))
			}
			if n := s.lockout.Cleanup(); n > 0 {
				s.logger.Debug("dropped login attempt records", zap.Int("count", n))
			}
		}
	}
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error": message} body every failure uses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
