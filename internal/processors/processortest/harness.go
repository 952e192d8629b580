// Package processortest drives processors through a real pipeline and
// router for tests.
package processortest

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"sphexbot/internal/core"
	"sphexbot/internal/logging"
	"sphexbot/internal/pipeline"
	"sphexbot/internal/processor"
	"sphexbot/internal/router"
	"sphexbot/internal/store"
	"sphexbot/internal/store/redisstore"
)

const BotName = "sphexbot"

// NewStore returns a store backed by an in-process Redis server.
func NewStore(t *testing.T) store.Store {
	t.Helper()
	server := miniredis.RunT(t)
	s, err := redisstore.New(context.Background(), redisstore.Config{Addr: server.Addr()})
	if err != nil {
		t.Fatalf("redisstore.New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Deps returns processor dependencies over a fresh store.
func Deps(t *testing.T) processor.Deps {
	t.Helper()
	return processor.Deps{
		Logger:        logging.Discard(),
		Store:         NewStore(t),
		BotName:       BotName,
		CommandPrefix: "!",
	}
}

type Sent struct {
	Group bool
	Text  string
}

// Recorder is an Emitter that keeps everything it is given.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) Emit(_ context.Context, _ core.Message, text string) error {
	r.add(Sent{Text: text})
	return nil
}

func (r *Recorder) EmitGroup(_ context.Context, _ core.Message, text string) error {
	r.add(Sent{Group: true, Text: text})
	return nil
}

func (r *Recorder) add(s Sent) {
	r.mu.Lock()
	r.sent = append(r.sent, s)
	r.mu.Unlock()
}

// Take returns and clears what was emitted so far.
func (r *Recorder) Take() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

type Harness struct {
	t        *testing.T
	Router   *router.Router
	Pipeline *pipeline.Pipeline
	Emitter  *Recorder
}

// New sets up the processors behind a router that prefixes direct replies
// with the sender, and tears them down when the test ends.
func New(t *testing.T, procs ...processor.Processor) *Harness {
	return build(t, true, procs)
}

// NewPlain is New without sender prefixes.
func NewPlain(t *testing.T, procs ...processor.Processor) *Harness {
	return build(t, false, procs)
}

func build(t *testing.T, withSender bool, procs []processor.Processor) *Harness {
	t.Helper()
	p, err := pipeline.New(logging.Discard(), procs...)
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	ctx := context.Background()
	if err := p.Setup(ctx); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	t.Cleanup(func() {
		if err := p.Teardown(context.Background()); err != nil {
			t.Errorf("Teardown() error = %v", err)
		}
	})

	recorder := &Recorder{}
	r := router.New(p, recorder, router.Options{
		BotName:         BotName,
		CommandPrefix:   "!",
		ReplyWithSender: withSender,
		Logger:          logging.Discard(),
	})
	return &Harness{t: t, Router: r, Pipeline: p, Emitter: recorder}
}

type MsgOption func(*core.Message)

func From(nick string) MsgOption {
	return func(m *core.Message) {
		m.SenderID = nick
		m.SenderName = nick
	}
}

func InGroup(group string) MsgOption {
	return func(m *core.Message) {
		m.GroupID = group
		m.ChatID = group
	}
}

// Message builds an inbound message from "testnick" in a private chat.
func Message(text string, opts ...MsgOption) core.Message {
	msg := core.Message{
		Channel:    "test",
		SenderID:   "testnick",
		SenderName: "testnick",
		ChatID:     "testnick",
		Text:       text,
	}
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}

// Send dispatches one message and returns what it emitted.
func (h *Harness) Send(text string, opts ...MsgOption) []Sent {
	h.t.Helper()
	if err := h.Router.Dispatch(context.Background(), Message(text, opts...)); err != nil {
		h.t.Fatalf("Dispatch(%q) error = %v", text, err)
	}
	return h.Emitter.Take()
}

// Texts returns the texts of sent replies.
func Texts(sent []Sent) []string {
	out := make([]string, 0, len(sent))
	for _, s := range sent {
		out = append(out, s.Text)
	}
	return out
}
