// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/chatterm/internal/config"
)

// Run starts the full-screen chat interface and blocks until the user quits
// or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Client == nil || opts.Controller == nil {
		return errors.New("chat: client and controller are required")
	}
	if opts.CopyText == nil && !clipboard.Unsupported {
		opts.CopyText = clipboard.WriteAll
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := newProgram(ctx, opts, tea.WithAltScreen(), tea.WithMouseCellMotion())

	if opts.ConfigPath != "" {
		go func() {
			err := config.Watch(ctx, opts.ConfigPath, func(cfg *config.Config, err error) {
				if err == nil {
					config.SetGlobal(cfg)
				}
				p.Send(configReloadedMsg{cfg: cfg, err: err})
			})
			if err != nil && opts.Logger != nil {
				opts.Logger.Debug("config watch stopped", zap.Error(err))
			}
		}()
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("chat ui: %w", err)
	}
	return nil
}

// newProgram wires the controller's change callback to a program running
// the chat model. Background goroutines stop when ctx is done.
func newProgram(ctx context.Context, opts Options, popts ...tea.ProgramOption) *tea.Program {
	var p *tea.Program
	send := func(msg tea.Msg) { p.Send(msg) }

	changes := newChangeNotifier()
	opts.Controller.WithOnChange(changes.notify)

	m := New(ctx, opts).WithSender(send)
	p = tea.NewProgram(m, append(popts, tea.WithContext(ctx))...)
	go changes.forward(ctx, send)
	return p
}

// =============================================================================
// CHANGE NOTIFIER
// =============================================================================

// changeNotifier turns controller callbacks into stateChangedMsg deliveries.
// notify never blocks, so controller methods may run inside Update; a burst
// of changes collapses into a single message.
type changeNotifier struct {
	ch chan struct{}
}

func newChangeNotifier() *changeNotifier {
	return &changeNotifier{ch: make(chan struct{}, 1)}
}

func (n *changeNotifier) notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n *changeNotifier) forward(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.ch:
			send(stateChangedMsg{})
		}
	}
}
