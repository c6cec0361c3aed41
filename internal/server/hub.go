// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/api"
)

// ============================================================================
// EVENT HUB
// ============================================================================

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// subscriber is one websocket connection of a user.
type subscriber struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans conversation events out to each user's open connections.
type Hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	users  map[int64]map[*subscriber]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		users:  make(map[int64]map[*subscriber]struct{}),
	}
}

// Publish sends ev to every connection of userID. Slow connections are
// dropped rather than blocking the publisher.
func (h *Hub) Publish(userID int64, ev api.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.users[userID] {
		select {
		case sub.send <- data:
		default:
			h.removeLocked(sub)
		}
	}
}

// Subscribers returns the number of open connections of userID.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[userID])
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, subs := range h.users {
		for sub := range subs {
			h.removeLocked(sub)
		}
	}
	return nil
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	subs := h.users[sub.userID]
	if subs == nil {
		subs = make(map[*subscriber]struct{})
		h.users[sub.userID] = subs
	}
	subs[sub] = struct{}{}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *subscriber) {
	subs, ok := h.users[sub.userID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.users, sub.userID)
	}
	close(sub.send)
}

// ServeEvents upgrades the request and streams events for userID until
// the peer goes away.
func (h *Hub) ServeEvents(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	sub := &subscriber{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(sub) {
		conn.Close()
		return
	}
	h.logger.Debug("event subscriber connected",
		zap.Int64("user_id", userID),
		zap.Int("connections", h.Subscribers(userID)))
	go h.writePump(sub)
	h.readPump(sub)
}

// readPump discards client frames; it exists to process pongs and notice
// disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.conn.Close()
	}()
	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event stream read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
