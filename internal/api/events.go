// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventConversationsChanged is pushed whenever the user's conversation list
// changes on the server (created, titled or deleted).
const EventConversationsChanged = "conversations_changed"

// Event is a server push notification.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Subscribe opens the /events websocket and calls fn for every event until
// ctx is cancelled or the connection drops. The session cookie from the
// client's jar authenticates the upgrade.
func (c *Client) Subscribe(ctx context.Context, fn func(Event)) error {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimSuffix(wsURL.Path, "/") + "/events"

	header := http.Header{}
	header.Set("User-Agent", UserAgent)
	if jar := c.httpClient.Jar; jar != nil {
		for _, ck := range jar.Cookies(c.baseURL) {
			header.Add("Cookie", ck.String())
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.httpClient.Timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			c.logger.Debug("event stream closed", zap.Error(err))
			return fmt.Errorf("event stream: %w", err)
		}
		fn(ev)
	}
}
