// Package hooks fans connection lifecycle events out to subscribers such as
// the gateway's event broadcaster.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/chatconn/internal/logging"
)

// Event names.
const (
	EventConnectionSet     = "connection_set"
	EventConnectionCleared = "connection_cleared"
	EventResolutionRefused = "resolution_refused"
	EventGatewayStart      = "gateway_start"
	EventGatewayStop       = "gateway_stop"
)

// AllEvents lists every event name.
var AllEvents = []string{
	EventConnectionSet,
	EventConnectionCleared,
	EventResolutionRefused,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload describes what happened. Fields not relevant to an event are zero.
type Payload struct {
	Event  string    `json:"event"`
	UserID int64     `json:"userId,omitempty"`
	ChatID int64     `json:"chatId,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Handler reacts to an event. Errors and panics are logged and never stop
// other handlers.
type Handler func(ctx context.Context, p Payload) error

type subscriber struct {
	name string
	fn   Handler
}

// Manager keeps subscriptions per event.
type Manager struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
	log  *logging.Logger
	now  func() time.Time
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		subs: make(map[string][]subscriber),
		log:  log.Sub("hooks"),
		now:  time.Now,
	}
}

// On subscribes fn to event under name.
func (m *Manager) On(event, name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[event] = append(m.subs[event], subscriber{name: name, fn: fn})
}

// Off removes every subscription named name from event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.subs[event][:0:0]
	for _, s := range m.subs[event] {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(m.subs, event)
		return
	}
	m.subs[event] = kept
}

func (m *Manager) snapshot(event string) []subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]subscriber(nil), m.subs[event]...)
}

func (m *Manager) call(ctx context.Context, s subscriber, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", p.Event).Str("handler", s.name).Str("panic", fmt.Sprint(r)).Msg("hook handler panicked")
		}
	}()
	if err := s.fn(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", s.name).Msg("hook handler failed")
	}
}

func (m *Manager) stamp(event string, p Payload) Payload {
	p.Event = event
	if p.At.IsZero() {
		p.At = m.now()
	}
	return p
}

// Emit runs the event's handlers in subscription order and waits for them.
func (m *Manager) Emit(ctx context.Context, event string, p Payload) {
	p = m.stamp(event, p)
	for _, s := range m.snapshot(event) {
		m.call(ctx, s, p)
	}
}

// EmitAsync runs each handler on its own goroutine. The returned channel is
// closed once all of them returned.
func (m *Manager) EmitAsync(ctx context.Context, event string, p Payload) <-chan struct{} {
	p = m.stamp(event, p)
	subs := m.snapshot(event)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.call(ctx, s, p)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// Count returns the number of subscriptions for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[event])
}
