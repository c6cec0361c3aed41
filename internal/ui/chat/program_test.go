// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatterm/internal/api"
	"github.com/jeranaias/chatterm/internal/config"
	"github.com/jeranaias/chatterm/internal/model"
	"github.com/jeranaias/chatterm/internal/session"
	"github.com/jeranaias/chatterm/internal/ui/styles"
)

// runProgram drives a headless program through msgs and quits. It fails the
// test if the event loop stops consuming messages.
func runProgram(t *testing.T, ctrl *session.Controller, msgs ...tea.Msg) {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.UI.Markdown = "plain"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := newProgram(ctx, Options{
		Client:     client,
		Controller: ctrl,
		Config:     cfg,
		Theme:      styles.NewTheme(true),
	}, tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutRenderer())

	done := make(chan error, 1)
	go func() {
		_, err := p.Run()
		done <- err
	}()

	sent := make(chan struct{})
	go func() {
		p.Send(tea.WindowSizeMsg{Width: 120, Height: 40})
		for _, msg := range msgs {
			p.Send(msg)
		}
		p.Quit()
		close(sent)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("program stopped processing messages")
	}
	<-sent
}

func TestProgram_ControllerCallsInsideUpdate(t *testing.T) {
	tests := []struct {
		name      string
		loggedOut bool
		msgs      []tea.Msg
		want      string
	}{
		{"voice", false, []tea.Msg{tea.KeyMsg{Type: tea.KeyCtrlV}}, VoiceUnsupported},
		{"login then voice", true, []tea.Msg{loginDoneMsg{}, tea.KeyMsg{Type: tea.KeyCtrlV}}, VoiceUnsupported},
		{"new chat", false, []tea.Msg{runes("/new"), tea.KeyMsg{Type: tea.KeyEnter}}, session.Greeting},
		{"help", false, []tea.Msg{runes("/help"), tea.KeyMsg{Type: tea.KeyEnter}}, HelpText()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := session.NewController(&stubBackend{
				convs: []model.Conversation{{ID: model.IDFromInt(1), Title: "Trip"}},
			})
			if tt.loggedOut {
				ctrl.RequireLogin()
			}

			runProgram(t, ctrl, tt.msgs...)

			assert.Equal(t, session.RouteChat, ctrl.Route())
			msgs := ctrl.Snapshot().Messages()
			require.NotEmpty(t, msgs)
			assert.Equal(t, tt.want, msgs[len(msgs)-1].Text)
		})
	}
}

func TestChangeNotifier_Coalesces(t *testing.T) {
	n := newChangeNotifier()
	for i := 0; i < 10; i++ {
		n.notify()
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan tea.Msg, 10)
	go n.forward(ctx, func(msg tea.Msg) { got <- msg })

	select {
	case msg := <-got:
		assert.IsType(t, stateChangedMsg{}, msg)
	case <-time.After(time.Second):
		t.Fatal("no state change forwarded")
	}
	cancel()
	assert.Len(t, got, 0)
}
