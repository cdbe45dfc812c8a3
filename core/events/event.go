package events

import (
	"sync"

	"whalehub/core/types"
)

// Event represents a structured state change emitted by a module.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can be rendered into the generic
// attribute form consumed by the API stream and the indexer.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events emitted during a transaction. The host flushes it
// once the transaction commits and drops it otherwise.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func NewBuffer() *Buffer { return &Buffer{} }

// Emit implements the Emitter interface.
func (b *Buffer) Emit(e Event) {
	if e == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Mark returns a position that Truncate can roll back to.
func (b *Buffer) Mark() int { return b.Len() }

// Truncate drops every event emitted after mark.
func (b *Buffer) Truncate(mark int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mark < len(b.events) {
		b.events = b.events[:mark]
	}
}

// FlushTo forwards the buffered events to out in order and clears the buffer.
func (b *Buffer) FlushTo(out Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if out == nil {
		return
	}
	for _, e := range pending {
		out.Emit(e)
	}
}

// MultiEmitter fans events out to every registered emitter.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(e Event) {
	for _, out := range m {
		if out != nil {
			out.Emit(e)
		}
	}
}

// Render converts e into its attribute form. Events that do not implement
// Payload are rendered with their type only.
func Render(e Event) *types.Event {
	if p, ok := e.(Payload); ok {
		if ev := p.Event(); ev != nil {
			return ev
		}
	}
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{}}
}
