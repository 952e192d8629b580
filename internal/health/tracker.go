package health

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sphexbot/internal/pipeline"
	"sphexbot/internal/router"
	"sphexbot/internal/schedule"
)

type GatewayState struct {
	Configured bool      `json:"configured"`
	Running    bool      `json:"running"`
	LastError  string    `json:"last_error,omitempty"`
	LastChange time.Time `json:"last_change"`
}

// Components reports on the running bot. Nil fields are left out of the
// status.
type Components struct {
	Router     func() router.Stats
	Processors func() []pipeline.Status
	Schedulers func() map[string]schedule.Stats
}

// Status is the body of /status.
type Status struct {
	App           string                    `json:"app"`
	Version       string                    `json:"version"`
	Ready         bool                      `json:"ready"`
	NotReady      []string                  `json:"not_ready,omitempty"`
	StartedAt     time.Time                 `json:"started_at"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Gateways      map[string]GatewayState   `json:"gateways"`
	Router        *router.Stats             `json:"router,omitempty"`
	Processors    []pipeline.Status         `json:"processors,omitempty"`
	Schedulers    map[string]schedule.Stats `json:"schedulers,omitempty"`
}

// Tracker follows gateway run states and assembles the bot's status.
type Tracker struct {
	app        string
	version    string
	components Components
	now        func() time.Time
	started    time.Time

	mu       sync.RWMutex
	gateways map[string]*GatewayState
}

func NewTracker(app, version string, components Components, gateways ...string) *Tracker {
	t := &Tracker{
		app:        app,
		version:    version,
		components: components,
		now:        time.Now,
		gateways:   make(map[string]*GatewayState, len(gateways)),
	}
	t.started = t.now()
	for _, name := range gateways {
		t.gateways[name] = &GatewayState{Configured: true, LastChange: t.started}
	}
	return t
}

func (t *Tracker) SetRunning(name string, running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(name)
	state.Running = running
	state.LastChange = t.now()
	if running {
		state.LastError = ""
	}
}

func (t *Tracker) SetError(name string, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(name)
	state.LastError = err.Error()
	state.LastChange = t.now()
}

func (t *Tracker) stateLocked(name string) *GatewayState {
	state, exists := t.gateways[name]
	if !exists {
		state = &GatewayState{Configured: true}
		t.gateways[name] = state
	}
	return state
}

func (t *Tracker) gatewayStates() map[string]GatewayState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]GatewayState, len(t.gateways))
	for name, state := range t.gateways {
		out[name] = *state
	}
	return out
}

// Ready reports whether the bot can serve messages.
func (t *Tracker) Ready() bool {
	return len(t.notReady(t.gatewayStates(), t.processors())) == 0
}

func (t *Tracker) processors() []pipeline.Status {
	if t.components.Processors == nil {
		return nil
	}
	return t.components.Processors()
}

// notReady lists what keeps the bot from being ready: processors that
// have not finished setup, and no running gateway when some are
// configured.
func (t *Tracker) notReady(gateways map[string]GatewayState, processors []pipeline.Status) []string {
	var reasons []string

	var pending []string
	for _, p := range processors {
		if p.State != pipeline.StateReady {
			pending = append(pending, fmt.Sprintf("%s (%s)", p.ID, p.State))
		}
	}
	if len(pending) > 0 {
		reasons = append(reasons, "processors not ready: "+strings.Join(pending, ", "))
	}

	var configured []string
	running := false
	for name, gw := range gateways {
		if gw.Configured {
			configured = append(configured, name)
		}
		running = running || gw.Running
	}
	if len(configured) > 0 && !running {
		sort.Strings(configured)
		reasons = append(reasons, "no gateway running: "+strings.Join(configured, ", "))
	}
	return reasons
}

// Status assembles a fresh status from the gateways and components.
func (t *Tracker) Status() Status {
	gateways := t.gatewayStates()
	processors := t.processors()
	reasons := t.notReady(gateways, processors)

	now := t.now()
	status := Status{
		App:           t.app,
		Version:       t.version,
		Ready:         len(reasons) == 0,
		NotReady:      reasons,
		StartedAt:     t.started,
		UptimeSeconds: int64(now.Sub(t.started) / time.Second),
		Gateways:      gateways,
		Processors:    processors,
	}
	if t.components.Router != nil {
		stats := t.components.Router()
		status.Router = &stats
	}
	if t.components.Schedulers != nil {
		status.Schedulers = t.components.Schedulers()
	}
	return status
}
