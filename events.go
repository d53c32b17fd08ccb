package chatsync

import "sync"

// Change notifications emitted by conversations and the directory. Payloads
// are documented per event.
const (
	// EventMessagesChanged: nil. The message store changed.
	EventMessagesChanged = "messages.changed"
	// EventTypingChanged: bool, the peer's typing flag.
	EventTypingChanged = "typing.changed"
	// EventPresenceChanged: []PresenceEntry, the new roster.
	EventPresenceChanged = "presence.changed"
	// EventConnectionChanged: RealtimeState.
	EventConnectionChanged = "connection.changed"
	// EventUploadingChanged: bool.
	EventUploadingChanged = "uploading.changed"
	// EventSendConfirmed: Message, the server version.
	EventSendConfirmed = "send.confirmed"
	// EventSendFailed: *SendError.
	EventSendFailed = "send.failed"
	// EventUsersChanged / EventGroupsChanged: nil. Directory lists changed.
	EventUsersChanged  = "users.changed"
	EventGroupsChanged = "groups.changed"
	// EventFetchFailed: error.
	EventFetchFailed = "fetch.failed"
)

// EventHandler receives change notifications.
type EventHandler func(event string, payload any)

type emitter struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

// On registers handler for event.
func (e *emitter) On(event string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]EventHandler)
	}
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *emitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

func (e *emitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}
