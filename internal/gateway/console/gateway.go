// Package console is a line-oriented gateway over a reader and writer,
// normally stdin and stdout.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sphexbot/internal/config"
	"sphexbot/internal/core"
)

const Channel = "console"

type Gateway struct {
	dispatcher core.Dispatcher
	logger     *slog.Logger
	sender     string
	group      string
	in         io.Reader

	mu  sync.Mutex
	out io.Writer
}

func New(cfg config.ConsoleConfig, dispatcher core.Dispatcher, in io.Reader, out io.Writer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	sender := strings.TrimSpace(cfg.Sender)
	if sender == "" {
		sender = "console"
	}
	return &Gateway{
		dispatcher: dispatcher,
		logger:     logger,
		sender:     sender,
		group:      strings.TrimSpace(cfg.Group),
		in:         in,
		out:        out,
	}
}

func (g *Gateway) Channel() string { return Channel }

// Start dispatches one message per non-empty input line. It returns at
// end of input or when ctx is done.
func (g *Gateway) Start(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(g.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	g.logger.Info("console gateway started", "sender", g.sender, "group", g.group)
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("console gateway stopped")
			return nil
		case line, ok := <-lines:
			if !ok {
				g.logger.Info("console input closed")
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read console input: %w", err)
					}
				default:
				}
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := g.dispatcher.Dispatch(ctx, g.message(text)); err != nil {
				g.logger.Error("console dispatch error", "error", err)
			}
		}
	}
}

func (g *Gateway) message(text string) core.Message {
	chatID := g.sender
	if g.group != "" {
		chatID = g.group
	}
	return core.Message{
		Channel:    Channel,
		SenderID:   g.sender,
		SenderName: g.sender,
		ChatID:     chatID,
		GroupID:    g.group,
		Text:       text,
		Timestamp:  time.Now(),
	}
}

func (g *Gateway) Emit(_ context.Context, _ core.Message, text string) error {
	return g.write(text)
}

func (g *Gateway) EmitGroup(_ context.Context, _ core.Message, text string) error {
	return g.write("* " + text)
}

func (g *Gateway) write(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := fmt.Fprintln(g.out, text)
	return err
}
