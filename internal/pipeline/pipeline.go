// Package pipeline holds the ordered set of processors a router drives and
// their setup/teardown lifecycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sphexbot/internal/config"
	"sphexbot/internal/processor"
	"sphexbot/internal/schedule"
	"sphexbot/internal/store"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateTornDown      State = "torn-down"
)

// Status is the lifecycle state of one processor.
type Status struct {
	ID    string `json:"id"`
	State State  `json:"state"`
}

type stage struct {
	id    string
	proc  processor.Processor
	state State
}

// Pipeline is fixed at construction; only lifecycle states change.
type Pipeline struct {
	mu     sync.RWMutex
	stages []*stage
	logger *slog.Logger
}

// Build constructs the configured processors in declaration order. Each
// processor gets its own logger and a store scoped to its identifier.
func Build(registry *processor.Registry, entries []config.ProcessorEntry, deps processor.Deps) (*Pipeline, error) {
	if registry == nil {
		return nil, errors.New("processor registry is required")
	}

	base := deps.Log()
	processors := make([]processor.Processor, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("processor %q configured twice", entry.ID)
		}
		seen[entry.ID] = struct{}{}

		factory, ok := registry.Lookup(entry.ID)
		if !ok {
			return nil, fmt.Errorf("unknown processor %q (known: %v)", entry.ID, registry.IDs())
		}

		procDeps := deps
		procDeps.Logger = base.With("processor", entry.ID)
		if deps.Store != nil {
			procDeps.Store = store.WithPrefix(deps.Store, entry.ID)
		}

		proc, err := factory(procDeps, entry.Options)
		if err != nil {
			return nil, fmt.Errorf("build processor %q: %w", entry.ID, err)
		}
		processors = append(processors, named{id: entry.ID, Processor: proc})
	}

	return newPipeline(base.With("component", "pipeline"), processors)
}

// New assembles a pipeline from already built processors, keyed by Name.
func New(logger *slog.Logger, processors ...processor.Processor) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return newPipeline(logger, processors)
}

func newPipeline(logger *slog.Logger, processors []processor.Processor) (*Pipeline, error) {
	stages := make([]*stage, 0, len(processors))
	seen := make(map[string]struct{}, len(processors))
	for _, proc := range processors {
		if proc == nil {
			return nil, errors.New("nil processor")
		}
		id := idOf(proc)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("processor %q added twice", id)
		}
		seen[id] = struct{}{}
		stages = append(stages, &stage{id: id, proc: proc, state: StateUninitialized})
	}
	return &Pipeline{stages: stages, logger: logger}, nil
}

// Setup readies processors one at a time in order and stops at the first
// failure. Processors already ready stay ready so Teardown releases them.
func (p *Pipeline) Setup(ctx context.Context) error {
	for _, st := range p.stages {
		if p.state(st) != StateUninitialized {
			continue
		}
		if err := st.proc.Setup(ctx); err != nil {
			p.logger.Error("processor setup failed", "processor", st.id, "error", err)
			return fmt.Errorf("setup processor %q: %w", st.id, err)
		}
		p.setState(st, StateReady)
		p.logger.Debug("processor ready", "processor", st.id)
	}
	p.logger.Info("pipeline ready", "processors", p.IDs())
	return nil
}

// Teardown releases every ready processor in reverse order. All of them
// are attempted; failures are returned joined.
func (p *Pipeline) Teardown(ctx context.Context) error {
	var errs []error
	for i := len(p.stages) - 1; i >= 0; i-- {
		st := p.stages[i]
		if p.state(st) != StateReady {
			continue
		}
		if err := st.proc.Teardown(ctx); err != nil {
			p.logger.Error("processor teardown failed", "processor", st.id, "error", err)
			errs = append(errs, fmt.Errorf("teardown processor %q: %w", st.id, err))
		}
		p.setState(st, StateTornDown)
	}
	return errors.Join(errs...)
}

// Processors returns the processors in pipeline order.
func (p *Pipeline) Processors() []processor.Processor {
	out := make([]processor.Processor, 0, len(p.stages))
	for _, st := range p.stages {
		out = append(out, st.proc)
	}
	return out
}

func (p *Pipeline) IDs() []string {
	ids := make([]string, 0, len(p.stages))
	for _, st := range p.stages {
		ids = append(ids, st.id)
	}
	return ids
}

func (p *Pipeline) States() []Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Status, 0, len(p.stages))
	for _, st := range p.stages {
		out = append(out, Status{ID: st.id, State: st.state})
	}
	return out
}

// Ready reports whether every processor finished setup.
func (p *Pipeline) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, st := range p.stages {
		if st.state != StateReady {
			return false
		}
	}
	return true
}

// Schedulers returns the schedulers owned by processors, by processor id.
func (p *Pipeline) Schedulers() map[string]*schedule.Scheduler {
	out := make(map[string]*schedule.Scheduler)
	for _, st := range p.stages {
		owner, ok := unwrap(st.proc).(processor.SchedulerOwner)
		if !ok {
			continue
		}
		if s := owner.Scheduler(); s != nil {
			out[st.id] = s
		}
	}
	return out
}

func (p *Pipeline) state(st *stage) State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return st.state
}

func (p *Pipeline) setState(st *stage, state State) {
	p.mu.Lock()
	st.state = state
	p.mu.Unlock()
}

// named pins a built processor to its configured identifier.
type named struct {
	id string
	processor.Processor
}

func (n named) Name() string { return n.id }

func idOf(proc processor.Processor) string {
	if n, ok := proc.(named); ok {
		return n.id
	}
	return proc.Name()
}

func unwrap(proc processor.Processor) processor.Processor {
	if n, ok := proc.(named); ok {
		return n.Processor
	}
	return proc
}
