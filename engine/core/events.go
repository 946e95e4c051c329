package core

import "sync"

type EventContext struct {
	// Data is event specific; see the code constants for what each one carries.
	Data interface{}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A file of a watched resource repository was created or written.
	/* Context usage:
	 * name := data.Data.(string) // repository relative name
	 */
	EVENT_CODE_RESOURCE_FILE_CHANGED SystemEventCode = 0x10

	// A file of a watched resource repository was removed or renamed.
	/* Context usage:
	 * name := data.Data.(string) // repository relative name
	 */
	EVENT_CODE_RESOURCE_FILE_REMOVED SystemEventCode = 0x11

	// An optimized depth stencil buffer was expanded to its full array.
	/* Context usage:
	 * name := data.Data.(string) // debug name of the buffer
	 */
	EVENT_CODE_DEPTH_BUFFER_EXPANDED SystemEventCode = 0x20

	// A root render resource released its native texture.
	/* Context usage:
	 * name := data.Data.(string)
	 */
	EVENT_CODE_RESOURCE_DISPOSED SystemEventCode = 0x21

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// State structure.
type eventSystemState struct {
	mutex sync.RWMutex
	// Lookup table for event codes.
	registered [MAX_MESSAGE_CODES]eventCodeEntry
}

/**
 * Event system internal state.
 */
var onceEvent sync.Once
var eventState *eventSystemState = nil

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener_inst interface{}, data EventContext) bool

// EventInitialize sets up the event system. It is safe to call more than once.
func EventInitialize() bool {
	onceEvent.Do(func() {
		eventState = &eventSystemState{}
	})
	return true
}

func EventShutdown() error {
	if eventState == nil {
		return nil
	}
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()
	// Free the events arrays. And objects pointed to should be destroyed on their own.
	for i := 0; i < MAX_MESSAGE_CODES; i++ {
		eventState.registered[i].events = nil
	}
	return nil
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be 0/NULL.
 * @param on_event The callback function pointer to be invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if eventState == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()

	for _, e := range eventState.registered[code].events {
		if e.listener == listener {
			LogWarn("event code %d already has this listener registered", code)
			return false
		}
	}
	// If at this point, no duplicate was found. Proceed with registration.
	eventState.registered[code].events = append(eventState.registered[code].events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 * @param code The event code to stop listening for.
 * @param listener A pointer to a listener instance. Can be 0/NULL.
 * @returns TRUE if the event is successfully unregistered; otherwise false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	if eventState == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	eventState.mutex.Lock()
	defer eventState.mutex.Unlock()

	events := eventState.registered[code].events
	for i, e := range events {
		if e.listener == listener {
			eventState.registered[code].events = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @param code The event code to fire.
 * @param sender A pointer to the sender. Can be 0/NULL.
 * @param data The event data.
 * @returns TRUE if handled, otherwise FALSE.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	if eventState == nil || code < 0 || int(code) >= MAX_MESSAGE_CODES {
		return false
	}
	// Callbacks may register or fire further events, so they run on a snapshot.
	eventState.mutex.RLock()
	events := append([]*registeredEvent(nil), eventState.registered[code].events...)
	eventState.mutex.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
