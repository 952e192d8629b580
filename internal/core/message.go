package core

import (
	"context"
	"strings"
	"time"
)

// Message is one inbound user message as delivered by a gateway. It is
// treated as immutable for the duration of a dispatch.
type Message struct {
	Channel    string
	SenderID   string
	SenderName string
	ChatID     string
	GroupID    string
	Text       string
	Addressed  bool
	Metadata   map[string]string
	Timestamp  time.Time
}

// Nick is the name used when talking back to the sender.
func (m Message) Nick() string {
	if name := strings.TrimSpace(m.SenderName); name != "" {
		return name
	}
	return strings.TrimSpace(m.SenderID)
}

// InGroup reports whether the message was sent to a group conversation.
func (m Message) InGroup() bool {
	return strings.TrimSpace(m.GroupID) != ""
}

// Meta returns a transport metadata value or "".
func (m Message) Meta(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// Reply is a single piece of outbound text produced by a processor.
// Group replies are addressed to the conversation rather than the sender.
type Reply struct {
	Text  string
	Group bool
}

// Text builds direct replies from plain strings.
func Text(lines ...string) []Reply {
	replies := make([]Reply, 0, len(lines))
	for _, line := range lines {
		replies = append(replies, Reply{Text: line})
	}
	return replies
}

// GroupText builds group replies from plain strings.
func GroupText(lines ...string) []Reply {
	replies := make([]Reply, 0, len(lines))
	for _, line := range lines {
		replies = append(replies, Reply{Text: line, Group: true})
	}
	return replies
}

// Emitter is the outbound half of a transport.
type Emitter interface {
	Emit(ctx context.Context, msg Message, text string) error
	EmitGroup(ctx context.Context, msg Message, text string) error
}

// Dispatcher is implemented by whatever consumes inbound messages; gateways
// hand every message they receive to one.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}
