// Package inbox keeps per-conversation lists of notes left for a nick,
// stored as JSON [sender, text] pairs.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sphexbot/internal/core"
	"sphexbot/internal/store"
)

type Note struct {
	Sender string
	Text   string
}

func (n Note) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{n.Sender, n.Text})
}

func (n *Note) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	n.Sender, n.Text = pair[0], pair[1]
	return nil
}

type Inbox struct {
	store store.Store
}

func New(s store.Store) *Inbox {
	return &Inbox{store: s}
}

// Scope is the conversation a message belongs to: the group, or the chat
// for private messages.
func Scope(msg core.Message) string {
	if msg.InGroup() {
		return msg.GroupID
	}
	return msg.ChatID
}

// Key is "<scope>:<recipient>" with the recipient case-folded.
func Key(scope, recipient string) string {
	return scope + ":" + strings.ToLower(recipient)
}

func (b *Inbox) Leave(ctx context.Context, scope, recipient string, note Note) error {
	value, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode note: %w", err)
	}
	return b.store.ListAppend(ctx, Key(scope, recipient), string(value))
}

// Peek returns the notes for recipient in insertion order.
func (b *Inbox) Peek(ctx context.Context, scope, recipient string) ([]Note, error) {
	values, err := b.store.ListRange(ctx, Key(scope, recipient))
	if err != nil {
		return nil, err
	}
	notes := make([]Note, 0, len(values))
	for _, value := range values {
		var note Note
		if err := json.Unmarshal([]byte(value), &note); err != nil {
			return nil, fmt.Errorf("decode note %q: %w", value, err)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// Collect returns the notes and removes them. Notes left while Collect
// runs stay queued for the next call.
func (b *Inbox) Collect(ctx context.Context, scope, recipient string) ([]Note, error) {
	notes, err := b.Peek(ctx, scope, recipient)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, nil
	}
	if err := store.DropFront(ctx, b.store, Key(scope, recipient), len(notes)); err != nil {
		return nil, err
	}
	return notes, nil
}
