// Package events is the in-process bus that carries lead lifecycle and
// follow-up notifications (lead created, stage changed, job processed)
// from the module that owns a change to the modules that react to it.
// Event types themselves are declared in internal/events.
package events

import (
	"context"
	"time"
)

// Event is a notification about something that already happened, such as a
// lead moving to hot or a follow-up being sent.
type Event interface {
	// EventName is the routing key handlers subscribe to,
	// e.g. "leads.stage.changed".
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent stamps an event with the instant of the change it reports.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler reacts to one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus fans events out to their subscribers.
type Bus interface {
	// Publish delivers event in the background; a slow subscriber never
	// holds up the webhook or follow-up sweep that published it.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers event and waits for every subscriber, returning
	// their joined errors.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers handler under eventName.
	Subscribe(eventName string, handler Handler)
}
