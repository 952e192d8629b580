package command

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"sphexbot/internal/core"
)

// ErrUnknownSubcommand is returned by Subcommands.Dispatch for names that
// were not declared.
var ErrUnknownSubcommand = errors.New("unknown subcommand")

// SubHandler handles one sub-command of a command.
type SubHandler func(ctx context.Context, msg core.Message) ([]core.Reply, error)

// Subcommands is a validated mapping from sub-command name to handler.
type Subcommands struct {
	handlers map[string]SubHandler
}

var subcommandName = regexp.MustCompile(`^\w+$`)

// NewSubcommands checks every entry when the owning processor is built, so
// a bad declaration fails at startup rather than on first use.
func NewSubcommands(handlers map[string]SubHandler) (*Subcommands, error) {
	if len(handlers) == 0 {
		return nil, errors.New("at least one subcommand is required")
	}
	validated := make(map[string]SubHandler, len(handlers))
	for name, handler := range handlers {
		if !subcommandName.MatchString(name) {
			return nil, fmt.Errorf("subcommand %q: name must be a word", name)
		}
		if handler == nil {
			return nil, fmt.Errorf("subcommand %q: handler is required", name)
		}
		validated[name] = handler
	}
	return &Subcommands{handlers: validated}, nil
}

// Dispatch runs the named sub-command.
func (s *Subcommands) Dispatch(ctx context.Context, name string, msg core.Message) ([]core.Reply, error) {
	handler, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubcommand, name)
	}
	return handler(ctx, msg)
}

// Names returns the declared sub-command names, sorted.
func (s *Subcommands) Names() []string {
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
