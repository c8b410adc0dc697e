package metrics

import (
	"context"
	"testing"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSubscribeCountsLeadAndFollowUpEvents(t *testing.T) {
	m := newTestMetrics()
	bus := events.NewInMemoryBus(logger.Discard())
	m.Subscribe(bus)
	ctx := context.Background()

	publish := func(e events.Event) {
		t.Helper()
		if err := bus.PublishSync(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	publish(events.LeadCreated{BaseEvent: events.NewBaseEvent(), LeadID: uuid.New(), Source: "contact_form"})
	publish(events.LeadMessageReceived{BaseEvent: events.NewBaseEvent(), LeadID: uuid.New(), Channel: "whatsapp"})
	publish(events.LeadMessageReceived{BaseEvent: events.NewBaseEvent(), LeadID: uuid.New(), Channel: "whatsapp"})
	publish(events.FollowUpProcessed{BaseEvent: events.NewBaseEvent(), JobID: uuid.New(), Channel: "email", Outcome: "delivered"})

	if got := testutil.ToFloat64(m.LeadsCreated.WithLabelValues("contact_form")); got != 1 {
		t.Fatalf("expected 1 lead created, got %v", got)
	}
	if got := testutil.ToFloat64(m.LeadMessages.WithLabelValues("whatsapp")); got != 2 {
		t.Fatalf("expected 2 lead messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.FollowUpOutcomes.WithLabelValues("email", "delivered")); got != 1 {
		t.Fatalf("expected 1 follow-up outcome, got %v", got)
	}
}

func TestSubscribeOnNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	bus := events.NewInMemoryBus(logger.Discard())
	m.Subscribe(bus)
	if err := bus.PublishSync(context.Background(), events.LeadCreated{BaseEvent: events.NewBaseEvent()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
