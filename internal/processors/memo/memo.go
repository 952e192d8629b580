// Package memo leaves messages for people who are not around and delivers
// them the next time they speak in the same conversation.
package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/processor"
	"sphexbot/internal/processors/inbox"
)

const usage = "Usage: !tell <nick> <message>"

type Processor struct {
	processor.Base
	inbox    *inbox.Inbox
	logger   *slog.Logger
	commands *command.Table
}

func New(deps processor.Deps, options json.RawMessage) (processor.Processor, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("memo requires a store")
	}
	var opts struct{}
	if err := processor.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	p := &Processor{
		inbox:  inbox.New(deps.Store),
		logger: deps.Log(),
	}
	pattern := command.MustCompile(`(?P<target>\S+)\s+(?P<text>.+)$`)
	p.commands = command.MustTable(
		command.Spec{Name: "tell", Pattern: pattern, Help: usage, Handler: p.tell},
		command.Spec{Name: "ask", Pattern: pattern, Help: usage, Handler: p.tell},
	)
	return p, nil
}

func (p *Processor) Name() string { return "memo" }

func (p *Processor) Commands() *command.Table { return p.commands }

// Observe delivers pending memos for the speaker to the conversation.
func (p *Processor) Observe(ctx context.Context, msg core.Message) ([]core.Reply, error) {
	nick := msg.Nick()
	notes, err := p.inbox.Collect(ctx, inbox.Scope(msg), nick)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, nil
	}

	p.logger.Info("delivering memos", "recipient", nick, "count", len(notes))
	replies := make([]core.Reply, 0, len(notes))
	for _, note := range notes {
		replies = append(replies, core.Reply{
			Text:  fmt.Sprintf("%s, %s asked me tell you: %s", nick, note.Sender, note.Text),
			Group: true,
		})
	}
	return replies, nil
}

func (p *Processor) tell(ctx context.Context, msg core.Message, args command.Captures) ([]core.Reply, error) {
	note := inbox.Note{Sender: msg.Nick(), Text: args.Get("text")}
	if err := p.inbox.Leave(ctx, inbox.Scope(msg), args.Get("target"), note); err != nil {
		return nil, err
	}
	return core.Text("Sure thing, boss."), nil
}
