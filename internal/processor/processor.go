// Package processor defines the pluggable message processors the router
// drives, and the registry that builds them from configuration.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/httpclient"
	"sphexbot/internal/schedule"
	"sphexbot/internal/store"
)

// Processor handles passive observation and named commands for inbound
// messages. Observe runs for every message; commands only for messages
// addressed to the bot.
type Processor interface {
	Name() string
	Commands() *command.Table
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
	Observe(ctx context.Context, msg core.Message) ([]core.Reply, error)
}

// SchedulerOwner is implemented by processors that run a scheduler.
type SchedulerOwner interface {
	Scheduler() *schedule.Scheduler
}

// Base provides no-op lifecycle and observe hooks for embedding.
type Base struct{}

func (Base) Setup(context.Context) error { return nil }

func (Base) Teardown(context.Context) error { return nil }

func (Base) Observe(context.Context, core.Message) ([]core.Reply, error) { return nil, nil }

func (Base) Commands() *command.Table { return nil }

// Deps are the handles a processor is built with. Store is already scoped
// to the processor's own key prefix.
type Deps struct {
	Logger            *slog.Logger
	Store             store.Store
	HTTP              *httpclient.Client
	BotName           string
	CommandPrefix     string
	SchedulerInterval time.Duration
	Now               func() time.Time
}

// Clock returns Now or time.Now.
func (d Deps) Clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

func (d Deps) Log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// DecodeOptions unmarshals a processor's options into out. Missing or null
// options leave out untouched; unknown fields are rejected.
func DecodeOptions(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}
