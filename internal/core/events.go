package core

import (
	"sync"
	"time"

	"github.com/dkeye/voicenet/internal/domain"
)

// EventKind is the transport event vocabulary shared by all backends.
type EventKind string

const (
	EventConnected         EventKind = "connected"
	EventDisconnected      EventKind = "disconnected"
	EventParticipantJoined EventKind = "participant-joined"
	EventParticipantLeft   EventKind = "participant-left"
	EventSpeakingChanged   EventKind = "speaking-changed"
	EventConnectionLost    EventKind = "connection-lost"
	EventReconnecting      EventKind = "reconnecting"
	EventReconnected       EventKind = "reconnected"
	EventError             EventKind = "error"
)

// AllEventKinds lists every kind a subscriber can register for.
var AllEventKinds = []EventKind{
	EventConnected,
	EventDisconnected,
	EventParticipantJoined,
	EventParticipantLeft,
	EventSpeakingChanged,
	EventConnectionLost,
	EventReconnecting,
	EventReconnected,
	EventError,
}

// Control names the local control an error event refers to, if any.
type Control string

const (
	ControlNone     Control = ""
	ControlMic      Control = "mic"
	ControlTransmit Control = "transmit"
	ControlDevice   Control = "device"
)

// Event is a typed transport notification.
type Event struct {
	Kind          EventKind
	Participant   domain.Participant   // participant-joined
	ParticipantID domain.ParticipantID // participant-left, speaking-changed
	Speaking      bool                 // speaking-changed
	Control       Control              // error
	Err           error                // error, connection-lost
	At            time.Time
}

type subscription struct {
	id int
	fn func(Event)
}

// EventHub dispatches events to subscribers in emit order.
// Emit is serialized, so a handler must never call Emit on the same hub.
type EventHub struct {
	emitMu sync.Mutex

	mu     sync.RWMutex
	nextID int
	subs   map[EventKind][]subscription
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[EventKind][]subscription)}
}

func (h *EventHub) Subscribe(kind EventKind, fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[kind] = append(h.subs[kind], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(kind, id) })
	}
}

func (h *EventHub) unsubscribe(kind EventKind, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[kind]
	for i, s := range list {
		if s.id == id {
			h.subs[kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (h *EventHub) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.RLock()
	handlers := make([]func(Event), 0, len(h.subs[ev.Kind]))
	for _, s := range h.subs[ev.Kind] {
		handlers = append(handlers, s.fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Subscribers reports how many handlers are registered for kind.
func (h *EventHub) Subscribers(kind EventKind) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[kind])
}
