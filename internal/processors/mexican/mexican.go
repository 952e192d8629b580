// Package mexican knows a couple of crowd tricks.
package mexican

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/processor"
)

const fallback = "I don't think mexicans know how to do that."

var wave = []string{
	`\o/\o/.o..o..o..o.`,
	`.o.\o/\o/.o..o..o.`,
	`.o..o.\o/\o/.o..o.`,
	`.o..o..o.\o/\o/.o.`,
	`.o..o..o..o.\o/\o/`,
}

type Processor struct {
	processor.Base
	tricks   *command.Subcommands
	commands *command.Table
}

func New(deps processor.Deps, options json.RawMessage) (processor.Processor, error) {
	var opts struct{}
	if err := processor.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}

	tricks, err := command.NewSubcommands(map[string]command.SubHandler{
		"wave":     doWave,
		"standoff": doStandoff,
	})
	if err != nil {
		return nil, fmt.Errorf("mexican tricks: %w", err)
	}

	p := &Processor{tricks: tricks}
	p.commands = command.MustTable(command.Spec{
		Name:    "mexican",
		Pattern: command.MustCompile(`(?P<trick>\w*)!?`),
		Help:    "Usage: !mexican <wave|standoff>",
		Handler: p.mexican,
	})
	return p, nil
}

func (p *Processor) Name() string { return "mexican" }

func (p *Processor) Commands() *command.Table { return p.commands }

func (p *Processor) mexican(ctx context.Context, msg core.Message, args command.Captures) ([]core.Reply, error) {
	replies, err := p.tricks.Dispatch(ctx, args.Get("trick"), msg)
	if errors.Is(err, command.ErrUnknownSubcommand) {
		return core.Text(fallback), nil
	}
	return replies, err
}

func doWave(context.Context, core.Message) ([]core.Reply, error) {
	return core.Text(wave...), nil
}

// doStandoff is an action in the room, not an answer to the sender.
func doStandoff(_ context.Context, msg core.Message) ([]core.Reply, error) {
	return core.GroupText(fmt.Sprintf("points a pistol at %s.", msg.Nick())), nil
}
