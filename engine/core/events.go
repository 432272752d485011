package core

import (
	"sync"

	"github.com/google/uuid"
)

// EventCode identifies a kind of engine event. Application codes start at EventCodeUser.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EventApplicationQuit EventCode = iota + 1

	// A PlaybackAction started playing.
	/* Data: animation.ActionEvent */
	EventClipStarted

	// A PlaybackAction reached its end in play-once mode.
	/* Data: animation.ActionEvent */
	EventClipFinished

	// The sequencer entered a new phase.
	/* Data: PhaseChange */
	EventPhaseChanged

	// Speech playback started / ended.
	EventTalkStarted
	EventTalkEnded

	// A generated sequence was installed / ran to its end (or aborted).
	EventSequenceStarted
	EventSequenceCompleted

	// The camera mode manager switched mode.
	/* Data: string mode name */
	EventCameraModeChanged

	// Pointer moved in normalized device coordinates.
	/* Data: PointerEvent */
	EventPointerMoved

	// The current character must be rebuilt from scratch.
	EventHardResetRequested

	EventCodeUser EventCode = 0x100
)

// Event is what gets fired through the bus.
type Event struct {
	Code   EventCode
	Sender interface{}
	Data   interface{}
}

// PhaseChange is the payload of EventPhaseChanged.
type PhaseChange struct {
	From string
	To   string
}

// ListenerHandle identifies one registration and is what Unregister takes.
type ListenerHandle uuid.UUID

var NoListener = ListenerHandle(uuid.Nil)

func (h ListenerHandle) String() string {
	return uuid.UUID(h).String()
}

// Should return true if handled. A handled event is not passed to later listeners.
type FnOnEvent func(e Event) bool

type registeredEvent struct {
	handle   ListenerHandle
	callback FnOnEvent
}

// EventBus delivers events to listeners registered per code. Fire delivers
// synchronously; Post queues the event until the next Dispatch, which is how
// events raised in the middle of a mixer update reach their listeners only
// once that update has finished.
type EventBus struct {
	mu         sync.Mutex
	registered map[EventCode][]*registeredEvent
	queue      []Event
}

func NewEventBus() *EventBus {
	return &EventBus{registered: make(map[EventCode][]*registeredEvent)}
}

/**
 * Register to listen for when events are fired with the provided code.
 * @param code The event code to listen for.
 * @param onEvent The callback invoked when the event code is fired.
 * @returns the handle to pass to Unregister.
 */
func (b *EventBus) Register(code EventCode, onEvent FnOnEvent) ListenerHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := ListenerHandle(uuid.New())
	b.registered[code] = append(b.registered[code], &registeredEvent{handle: h, callback: onEvent})
	return h
}

/**
 * Unregister a listener. Returns false if the handle is not registered.
 */
func (b *EventBus) Unregister(handle ListenerHandle) bool {
	if handle == NoListener {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for code, events := range b.registered {
		for i, e := range events {
			if e.handle == handle {
				b.registered[code] = append(events[:i:i], events[i+1:]...)
				return true
			}
		}
	}
	return false
}

// ListenerCount returns how many listeners are registered for code.
func (b *EventBus) ListenerCount(code EventCode) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.registered[code])
}

/**
 * Fires an event to listeners of its code. If a handler returns true the
 * event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (b *EventBus) Fire(e Event) bool {
	b.mu.Lock()
	listeners := append([]*registeredEvent(nil), b.registered[e.Code]...)
	b.mu.Unlock()

	for _, l := range listeners {
		// a previous listener may have unregistered this one
		if !b.isRegistered(e.Code, l.handle) {
			continue
		}
		if l.callback(e) {
			return true
		}
	}
	return false
}

func (b *EventBus) isRegistered(code EventCode, h ListenerHandle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.registered[code] {
		if e.handle == h {
			return true
		}
	}
	return false
}

// Post queues an event for the next Dispatch.
func (b *EventBus) Post(e Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()
}

// Dispatch fires every queued event in order, including events posted by
// listeners while dispatching. It returns the number of events fired.
func (b *EventBus) Dispatch() int {
	n := 0
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return n
		}
		e := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.Fire(e)
		n++
	}
}

// Discard drops every queued event without delivering it.
func (b *EventBus) Discard() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}

// Shutdown removes every listener and queued event.
func (b *EventBus) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = make(map[EventCode][]*registeredEvent)
	b.queue = nil
	return nil
}
