// Package coffee tracks language violations; whoever butchered the
// language owes coffee.
package coffee

import (
	"context"
	"encoding/json"
	"fmt"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/processor"
	"sphexbot/internal/processors/inbox"
)

type Processor struct {
	processor.Base
	violations *inbox.Inbox
	commands   *command.Table
}

func New(deps processor.Deps, options json.RawMessage) (processor.Processor, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("coffee requires a store")
	}
	var opts struct{}
	if err := processor.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	p := &Processor{violations: inbox.New(deps.Store)}
	p.commands = command.MustTable(
		command.Spec{
			Name:    "coffee",
			Pattern: command.MustCompile(`(?P<target>\S+)\s+(?P<violation>.+)$`),
			Help:    "Usage: !coffee <nick> <violation>",
			Handler: p.coffee,
		},
		command.Spec{
			Name:    "mycoffee",
			Pattern: command.MustCompile(`$`),
			Help:    "Usage: !mycoffee",
			Handler: p.mycoffee,
		},
	)
	return p, nil
}

func (p *Processor) Name() string { return "coffee" }

func (p *Processor) Commands() *command.Table { return p.commands }

func (p *Processor) coffee(ctx context.Context, msg core.Message, args command.Captures) ([]core.Reply, error) {
	note := inbox.Note{Sender: msg.Nick(), Text: args.Get("violation")}
	if err := p.violations.Leave(ctx, inbox.Scope(msg), args.Get("target"), note); err != nil {
		return nil, err
	}
	return core.Text("Oh boy!"), nil
}

func (p *Processor) mycoffee(ctx context.Context, msg core.Message, _ command.Captures) ([]core.Reply, error) {
	nick := msg.Nick()
	notes, err := p.violations.Collect(ctx, inbox.Scope(msg), nick)
	if err != nil {
		return nil, err
	}
	replies := make([]core.Reply, 0, len(notes))
	for _, note := range notes {
		replies = append(replies, core.Reply{
			Text: fmt.Sprintf("%s, %s says you butchered the language with: %s", nick, note.Sender, note.Text),
		})
	}
	return replies, nil
}
