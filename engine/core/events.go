package core

import (
	"sync"

	"github.com/spaghettifunk/anima-gfx/engine/containers"
)

// System internal event codes. Application should use codes beyond 255.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01

	// Keyboard key pressed. Data: *KeyEvent
	EVENT_CODE_KEY_PRESSED EventCode = 0x02
	// Keyboard key released. Data: *KeyEvent
	EVENT_CODE_KEY_RELEASED EventCode = 0x03

	// Mouse button pressed. Data: *MouseEvent
	EVENT_CODE_BUTTON_PRESSED EventCode = 0x04
	// Mouse button released. Data: *MouseEvent
	EVENT_CODE_BUTTON_RELEASED EventCode = 0x05
	// Mouse moved. Data: *MouseEvent with PosX and PosY
	EVENT_CODE_MOUSE_MOVED EventCode = 0x06
	// Mouse wheel. Data: *MouseEvent with Scroll
	EVENT_CODE_MOUSE_WHEEL EventCode = 0x07

	// Framebuffer resized from the OS. Data: *SystemEvent
	EVENT_CODE_RESIZED EventCode = 0x08

	// The config file changed on disk and decoded cleanly. Data: *Config
	EVENT_CODE_CONFIG_RELOADED EventCode = 0x09

	// An indexed asset was created, modified or removed. Data: *AssetEvent
	EVENT_CODE_ASSET_CHANGED EventCode = 0x0A

	MAX_EVENT_CODE EventCode = 0xFF
)

// Events posted from other goroutines wait here for the next dispatch.
const MAX_PENDING_EVENTS = 256

type KeyEvent struct {
	KeyCode KeyCode
}

type MouseEvent struct {
	Button Button
	PosX   uint16
	PosY   uint16
	Scroll int8
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type AssetEvent struct {
	// Path relative to the asset root, slash separated.
	Path    string
	Removed bool
}

type EventContext struct {
	Type EventCode
	Data interface{}
}

// Should return true if handled.
type FnOnEvent func(context EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

type eventSystemState struct {
	mu         sync.Mutex
	nextID     uint64
	registered map[EventCode][]registeredEvent
	pending    *containers.RingQueue[EventContext]
}

var eventState *eventSystemState

func EventSystemInitialize() bool {
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{
		registered: make(map[EventCode][]registeredEvent),
		pending:    containers.NewRingQueue[EventContext](MAX_PENDING_EVENTS),
	}
	return true
}

func EventSystemShutdown() error {
	// Listeners are owned by whoever registered them, only drop the references.
	eventState = nil
	return nil
}

/**
 * Register to listen for when events are fired with the provided code.
 * @param code The event code to listen for.
 * @param onEvent The callback to be invoked when the event code is fired.
 * @returns the registration id to unregister with, 0 if the system is not running.
 */
func EventRegister(code EventCode, onEvent FnOnEvent) uint64 {
	s := eventState
	if s == nil || onEvent == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.registered[code] = append(s.registered[code], registeredEvent{id: s.nextID, callback: onEvent})
	return s.nextID
}

// EventUnregister removes one registration. It returns false when id is not
// registered for code.
func EventUnregister(code EventCode, id uint64) bool {
	s := eventState
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.registered[code]
	for i := range events {
		if events[i].id == id {
			s.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code, on the calling goroutine.
 * If an event handler returns true, the event is considered handled and is
 * not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func EventFire(context EventContext) bool {
	s := eventState
	if s == nil {
		return false
	}
	s.mu.Lock()
	events := append([]registeredEvent(nil), s.registered[context.Type]...)
	s.mu.Unlock()

	for _, e := range events {
		if e.callback(context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}

// EventPost queues an event for the next EventDispatchPending. It is the only
// entry point safe to call off the main goroutine.
func EventPost(context EventContext) error {
	s := eventState
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Enqueue(context)
}

// EventDispatchPending fires every posted event in posting order and returns
// how many were fired.
func EventDispatchPending() int {
	s := eventState
	if s == nil {
		return 0
	}
	n := 0
	for {
		s.mu.Lock()
		context, err := s.pending.Dequeue()
		s.mu.Unlock()
		if err != nil {
			return n
		}
		EventFire(context)
		n++
	}
}
