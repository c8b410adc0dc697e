// Package eventlog records the append-only audit trail of lead activity.
// Recording is best effort: a failed write is logged and dropped, it never
// fails the operation that produced the fact.
package eventlog

import (
	"context"
	"time"

	"leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store persists facts.
type Store interface {
	Insert(ctx context.Context, fact repository.Fact) error
}

// Sink receives facts after they were stored, e.g. a message broker.
type Sink interface {
	Publish(ctx context.Context, fact repository.Fact) error
}

// Recorder writes facts to the store and fans them out to sinks.
type Recorder struct {
	store   Store
	sinks   []Sink
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Recorder)

// WithSink adds a sink that receives every stored fact.
func WithSink(s Sink) Option {
	return func(r *Recorder) {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(store Store, log *logger.Logger, opts ...Option) *Recorder {
	r := &Recorder{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores a fact. ID, CreatedAt and Source are filled when empty.
// It returns the stored fact, or nil when the write failed.
func (r *Recorder) Record(ctx context.Context, fact repository.Fact) *repository.Fact {
	if r == nil {
		return nil
	}
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = r.now()
	}
	if fact.Source == "" {
		fact.Source = repository.SourceSystem
	}
	if fact.Payload.MessageSnippet != "" {
		fact.Payload.MessageSnippet = repository.Snippet(fact.Payload.MessageSnippet)
	}

	if err := r.store.Insert(ctx, fact); err != nil {
		r.log.WithContext(ctx).FactDropped(string(fact.Type), err)
		r.metrics.FactDropped(string(fact.Type))
		return nil
	}
	r.metrics.FactRecorded(string(fact.Type))

	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, fact); err != nil {
			r.log.WithContext(ctx).CollaboratorFailure("fact_sink", "publish", err)
			r.metrics.Error("fact_sink")
		}
	}
	return &fact
}

// LeadFact builds a fact about a lead.
func LeadFact(agencyID uuid.UUID, userID *uuid.UUID, leadID uuid.UUID, t repository.Type, source string, payload repository.Payload) repository.Fact {
	return repository.Fact{
		AgencyID: agencyID,
		UserID:   userID,
		LeadID:   &leadID,
		Type:     t,
		Source:   source,
		Payload:  payload,
	}
}
