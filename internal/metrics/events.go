package metrics

import (
	"context"

	"leadflow_backend/internal/events"
)

// Subscribe counts lead and follow-up events published on bus.
func (m *Metrics) Subscribe(bus events.Bus) {
	if m == nil || bus == nil {
		return
	}
	bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(func(_ context.Context, event events.Event) error {
		if e, ok := event.(events.LeadCreated); ok {
			m.LeadCreated(e.Source)
		}
		return nil
	}))
	bus.Subscribe(events.LeadMessageReceived{}.EventName(), events.HandlerFunc(func(_ context.Context, event events.Event) error {
		if e, ok := event.(events.LeadMessageReceived); ok {
			m.LeadMessage(e.Channel)
		}
		return nil
	}))
	bus.Subscribe(events.FollowUpProcessed{}.EventName(), events.HandlerFunc(func(_ context.Context, event events.Event) error {
		if e, ok := event.(events.FollowUpProcessed); ok {
			m.FollowUpOutcome(e.Channel, e.Outcome)
		}
		return nil
	}))
}
