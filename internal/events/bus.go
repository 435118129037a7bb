// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (agent, dispatcher,
// scheduler, voice) to subscribers (the WebSocket handler feeding the
// browser UI). The bus is nil-safe: calling Publish on a nil *Bus is a
// no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the reasoning client.
	SourceAgent = "agent"
	// SourceActions identifies events from the action dispatcher.
	SourceActions = "actions"
	// SourceScheduler identifies events from the reminder scheduler.
	SourceScheduler = "scheduler"
	// SourceVoice identifies events from voice synthesis/capture.
	SourceVoice = "voice"
)

// Kind constants describe the type of event within a source.
const (
	// KindChatStart signals the beginning of a chat request.
	// Data: request_id, message_len.
	KindChatStart = "chat_start"
	// KindChatComplete signals the end of a chat request.
	// Data: request_id, actions, tokens_in, tokens_out, elapsed_ms.
	KindChatComplete = "chat_complete"

	// KindActionStart signals the start of one action execution.
	// Data: action.
	KindActionStart = "action_start"
	// KindActionDone signals completion of one action execution.
	// Data: action, ok.
	KindActionDone = "action_done"

	// KindReminderFired signals a reminder was delivered.
	// Data: reminder_id, text.
	KindReminderFired = "reminder_fired"

	// KindSpeaking signals voice synthesis started or stopped.
	// Data: active.
	KindSpeaking = "speaking"
	// KindListening signals voice capture started or stopped.
	// Data: active.
	KindListening = "listening"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept <-chan Event (the caller's view).
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Emit is a convenience wrapper that stamps the current time.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{
		Timestamp: time.Now().UTC(),
		Source:    source,
		Kind:      kind,
		Data:      data,
	})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
