// Package misc holds small commands that do not deserve a processor of
// their own.
package misc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/processor"
	"sphexbot/internal/version"
)

type Processor struct {
	processor.Base
	started  time.Time
	now      func() time.Time
	commands *command.Table
}

func New(deps processor.Deps, options json.RawMessage) (processor.Processor, error) {
	var opts struct{}
	if err := processor.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	now := deps.Clock()
	p := &Processor{started: now(), now: now}
	p.commands = command.MustTable(
		command.Spec{Name: "ping", Pattern: command.MustCompile(``), Help: "Usage: !ping", Handler: p.ping},
		command.Spec{Name: "version", Pattern: command.MustCompile(`$`), Help: "Usage: !version", Handler: p.version},
	)
	return p, nil
}

func (p *Processor) Name() string { return "misc" }

func (p *Processor) Commands() *command.Table { return p.commands }

func (p *Processor) ping(context.Context, core.Message, command.Captures) ([]core.Reply, error) {
	return core.Text("pong."), nil
}

func (p *Processor) version(context.Context, core.Message, command.Captures) ([]core.Reply, error) {
	uptime := p.now().Sub(p.started).Truncate(time.Second)
	return core.Text(fmt.Sprintf("%s %s, up %s.", version.AppName, version.Version, uptime)), nil
}
