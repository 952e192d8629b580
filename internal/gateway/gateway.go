// Package gateway connects chat transports to the router and routes
// replies back to the transport a message came from.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sphexbot/internal/core"
)

// Gateway is one chat transport. Start delivers inbound messages to the
// dispatcher it was built with and blocks until ctx is done.
type Gateway interface {
	core.Emitter
	Channel() string
	Start(ctx context.Context) error
}

// UnknownChannelError is returned when a reply targets a channel no
// registered gateway owns.
type UnknownChannelError struct {
	Channel string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("no gateway for channel %q", e.Channel)
}

// Mux is an Emitter that hands each reply to the gateway owning the
// message's channel.
type Mux struct {
	mu       sync.RWMutex
	gateways map[string]core.Emitter
}

func NewMux() *Mux {
	return &Mux{gateways: make(map[string]core.Emitter)}
}

// Register makes emitter the owner of channel.
func (m *Mux) Register(channel string, emitter core.Emitter) error {
	if channel == "" {
		return fmt.Errorf("gateway channel is required")
	}
	if emitter == nil {
		return fmt.Errorf("gateway %q has no emitter", channel)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.gateways[channel]; exists {
		return fmt.Errorf("gateway %q registered twice", channel)
	}
	m.gateways[channel] = emitter
	return nil
}

func (m *Mux) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.gateways))
	for channel := range m.gateways {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

func (m *Mux) Emit(ctx context.Context, msg core.Message, text string) error {
	emitter, err := m.lookup(msg.Channel)
	if err != nil {
		return err
	}
	return emitter.Emit(ctx, msg, text)
}

func (m *Mux) EmitGroup(ctx context.Context, msg core.Message, text string) error {
	emitter, err := m.lookup(msg.Channel)
	if err != nil {
		return err
	}
	return emitter.EmitGroup(ctx, msg, text)
}

func (m *Mux) lookup(channel string) (core.Emitter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emitter, ok := m.gateways[channel]
	if !ok {
		return nil, &UnknownChannelError{Channel: channel}
	}
	return emitter, nil
}
