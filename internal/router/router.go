// Package router classifies inbound messages, drives the processor
// pipeline and emits the aggregated replies.
package router

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"sphexbot/internal/command"
	"sphexbot/internal/core"
	"sphexbot/internal/processor"
)

type Mode int

const (
	Passive Mode = iota
	Directed
	Explicit
)

func (m Mode) String() string {
	switch m {
	case Explicit:
		return "explicit"
	case Directed:
		return "directed"
	default:
		return "passive"
	}
}

// Source supplies the processors in pipeline order.
type Source interface {
	Processors() []processor.Processor
}

type Options struct {
	BotName         string
	CommandPrefix   string
	ReplyWithSender bool
	Logger          *slog.Logger
}

// Result is everything one message produced, in emission order.
type Result struct {
	Mode     Mode
	Command  string
	Replies  []core.Reply
	Failures []*ProcessorError
}

// Stats counts dispatch outcomes since start.
type Stats struct {
	Messages          int64     `json:"messages"`
	Commands          int64     `json:"commands"`
	FormatErrors      int64     `json:"format_errors"`
	ProcessorFailures int64     `json:"processor_failures"`
	Replies           int64     `json:"replies"`
	EmitFailures      int64     `json:"emit_failures"`
	LastMessage       time.Time `json:"last_message,omitempty"`
}

type Router struct {
	source  Source
	emitter core.Emitter
	opts    Options
	logger  *slog.Logger

	messages     atomic.Int64
	commands     atomic.Int64
	formatErrors atomic.Int64
	failures     atomic.Int64
	replies      atomic.Int64
	emitFailures atomic.Int64
	lastMessage  atomic.Int64
}

func New(source Source, emitter core.Emitter, opts Options) *Router {
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = "!"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		source:  source,
		emitter: emitter,
		opts:    opts,
		logger:  logger,
	}
}

// Addressing classifies msg and returns the text with any command prefix
// or "<botname>:" address stripped.
func (r *Router) Addressing(msg core.Message) (Mode, string) {
	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, r.opts.CommandPrefix) {
		return Explicit, text[len(r.opts.CommandPrefix):]
	}

	stripped, named := r.stripBotName(text)
	if (named && msg.InGroup()) || msg.Addressed {
		stripped = strings.TrimPrefix(stripped, r.opts.CommandPrefix)
		return Directed, stripped
	}
	return Passive, text
}

func (r *Router) stripBotName(text string) (string, bool) {
	name := r.opts.BotName
	if name == "" || len(text) <= len(name) {
		return text, false
	}
	if !strings.EqualFold(text[:len(name)], name) || text[len(name)] != ':' {
		return text, false
	}
	return strings.TrimSpace(text[len(name)+1:]), true
}

// Dispatch processes msg and emits its replies. Emission failures are
// logged and counted; they do not stop later replies.
func (r *Router) Dispatch(ctx context.Context, msg core.Message) error {
	if r.emitter == nil {
		return errors.New("router has no emitter")
	}
	result := r.Process(ctx, msg)
	for _, reply := range result.Replies {
		var err error
		if reply.Group {
			err = r.emitter.EmitGroup(ctx, msg, reply.Text)
		} else {
			err = r.emitter.Emit(ctx, msg, reply.Text)
		}
		if err != nil {
			r.emitFailures.Add(1)
			r.logger.Warn("emit reply failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			continue
		}
		r.replies.Add(1)
	}
	return nil
}

// Process runs msg through the pipeline and returns the rendered replies
// without emitting them. Observe hooks all run before any command.
func (r *Router) Process(ctx context.Context, msg core.Message) Result {
	r.messages.Add(1)
	r.lastMessage.Store(time.Now().UnixNano())

	mode, text := r.Addressing(msg)
	result := Result{Mode: mode}

	procs := r.source.Processors()
	outcomes := make([]outcome, len(procs))

	for i, proc := range procs {
		replies, err := r.safeObserve(ctx, proc, msg)
		outcomes[i].observed = replies
		if err != nil {
			outcomes[i].fail(&ProcessorError{Processor: proc.Name(), Phase: PhaseObserve, Err: err})
		}
	}

	if mode != Passive {
		name, remainder := command.Split(text)
		result.Command = name
		for i, proc := range procs {
			table := proc.Commands()
			if table == nil || name == "" {
				continue
			}
			spec, ok := table.Lookup(name)
			if !ok {
				continue
			}
			r.commands.Add(1)
			replies, err := r.safeInvoke(ctx, spec, msg, remainder)
			var formatErr *command.FormatError
			switch {
			case errors.As(err, &formatErr):
				r.formatErrors.Add(1)
				outcomes[i].commanded = append(replies, core.Reply{Text: formatErr.Reply()})
			case err != nil:
				outcomes[i].commanded = replies
				outcomes[i].fail(&ProcessorError{Processor: proc.Name(), Phase: PhaseCommand, Command: name, Err: err})
			default:
				outcomes[i].commanded = replies
			}
		}
	}

	for i, out := range outcomes {
		for _, reply := range out.observed {
			result.Replies = append(result.Replies, r.render(msg, reply))
		}
		for _, reply := range out.commanded {
			result.Replies = append(result.Replies, r.render(msg, reply))
		}
		if out.failure != nil {
			r.failures.Add(1)
			r.logFailure(procs[i].Name(), msg, out.failure)
			result.Failures = append(result.Failures, out.failure)
			result.Replies = append(result.Replies, r.render(msg, core.Reply{Text: out.failure.Notice()}))
		}
	}

	r.logger.Debug("message dispatched",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"mode", mode.String(),
		"command", result.Command,
		"replies", len(result.Replies),
		"failures", len(result.Failures),
	)
	return result
}

type outcome struct {
	observed  []core.Reply
	commanded []core.Reply
	failure   *ProcessorError
}

// fail records the first failure only; a processor contributes at most
// one notice per message.
func (o *outcome) fail(err *ProcessorError) {
	if o.failure == nil {
		o.failure = err
	}
}

func (r *Router) render(msg core.Message, reply core.Reply) core.Reply {
	if reply.Group || !r.opts.ReplyWithSender {
		return reply
	}
	if nick := msg.Nick(); nick != "" {
		reply.Text = nick + ": " + reply.Text
	}
	return reply
}

func (r *Router) safeObserve(ctx context.Context, proc processor.Processor, msg core.Message) (replies []core.Reply, err error) {
	defer recoverInto(&err)
	return proc.Observe(ctx, msg)
}

func (r *Router) safeInvoke(ctx context.Context, spec command.Spec, msg core.Message, remainder string) (replies []core.Reply, err error) {
	defer recoverInto(&err)
	return command.Invoke(ctx, spec, msg, remainder)
}

func recoverInto(err *error) {
	if v := recover(); v != nil {
		*err = &PanicError{Value: v, Stack: debug.Stack()}
	}
}

func (r *Router) logFailure(name string, msg core.Message, failure *ProcessorError) {
	attrs := []any{
		"processor", name,
		"phase", string(failure.Phase),
		"kind", failure.Kind(),
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"error", failure.Err,
	}
	if failure.Command != "" {
		attrs = append(attrs, "command", failure.Command)
	}
	var panicErr *PanicError
	if errors.As(failure.Err, &panicErr) {
		attrs = append(attrs, "stack", string(panicErr.Stack))
	}
	r.logger.Error("processor failed", attrs...)
}

func (r *Router) Stats() Stats {
	stats := Stats{
		Messages:          r.messages.Load(),
		Commands:          r.commands.Load(),
		FormatErrors:      r.formatErrors.Load(),
		ProcessorFailures: r.failures.Load(),
		Replies:           r.replies.Load(),
		EmitFailures:      r.emitFailures.Load(),
	}
	if last := r.lastMessage.Load(); last != 0 {
		stats.LastMessage = time.Unix(0, last)
	}
	return stats
}
