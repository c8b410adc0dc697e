package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	automation "leadflow_backend/internal/automation/repository"
	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/followup/repository"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/ports"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	DefaultBatchSize    = 50
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 15 * time.Minute
	DefaultClaimLease   = 10 * time.Minute
)

// outcomeRetried is reported for failed attempts that were rescheduled.
const outcomeRetried = "retried"

// JobStore is the claim protocol of the follow-up job table.
type JobStore interface {
	ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]repository.Job, error)
	ClaimByID(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (repository.Job, bool, error)
	Finish(ctx context.Context, p repository.FinishParams) error
	Reschedule(ctx context.Context, p repository.RescheduleParams) error
	Release(ctx context.Context, id uuid.UUID) error
}

type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (identityrepo.User, error)
}

type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	AppendMessage(ctx context.Context, msg domain.Message) error
}

// Policy bounds batch size and retries of the processor.
type Policy struct {
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	ClaimLease   time.Duration
}

// PolicyFromConfig reads the policy, falling back to defaults for unset
// values.
func PolicyFromConfig(cfg config.FollowUpConfig) Policy {
	p := Policy{
		BatchSize:    cfg.GetFollowUpBatchSize(),
		MaxAttempts:  cfg.GetFollowUpMaxAttempts(),
		RetryBackoff: cfg.GetFollowUpRetryBackoff(),
		ClaimLease:   cfg.GetFollowUpClaimLease(),
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = DefaultRetryBackoff
	}
	if p.ClaimLease <= 0 {
		p.ClaimLease = DefaultClaimLease
	}
	return p
}

// Backoff is the delay before the next attempt after attempts failures.
func (p Policy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return p.RetryBackoff * time.Duration(attempts*attempts)
}

// Report summarizes one processing run.
type Report struct {
	Claimed   int `json:"claimed"`
	Delivered int `json:"delivered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Released  int `json:"released"`
}

func (r *Report) add(outcome string) {
	switch outcome {
	case string(repository.OutcomeDelivered):
		r.Delivered++
	case string(repository.OutcomeSkipped):
		r.Skipped++
	case string(repository.OutcomeFailed):
		r.Failed++
	case outcomeRetried:
		r.Retried++
	}
}

type ProcessorDeps struct {
	Jobs        JobStore
	Users       UserReader
	Leads       LeadStore
	Facts       ports.FactRecorder
	Bus         events.Bus
	Log         *logger.Logger
	Policy      Policy
	Dispatchers []Dispatcher
}

// Processor dispatches due follow-up jobs. Every job is claimed before it
// is dispatched, so concurrent processors never send the same job twice
// while the claim lease holds.
type Processor struct {
	jobs        JobStore
	users       UserReader
	leads       LeadStore
	facts       ports.FactRecorder
	bus         events.Bus
	log         *logger.Logger
	policy      Policy
	dispatchers map[automation.Channel]Dispatcher
	enqueuer    Enqueuer
	now         func() time.Time
}

func NewProcessor(d ProcessorDeps) *Processor {
	p := &Processor{
		jobs:        d.Jobs,
		users:       d.Users,
		leads:       d.Leads,
		facts:       d.Facts,
		bus:         d.Bus,
		log:         d.Log,
		policy:      d.Policy.withDefaults(),
		dispatchers: make(map[automation.Channel]Dispatcher, len(d.Dispatchers)),
		now:         time.Now,
	}
	for _, dispatcher := range d.Dispatchers {
		p.dispatchers[dispatcher.Channel()] = dispatcher
	}
	return p
}

func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// SetEnqueuer re-enqueues rescheduled jobs on a delayed task queue.
func (p *Processor) SetEnqueuer(e Enqueuer) {
	p.enqueuer = e
}

// ProcessDue claims up to one batch of due jobs, oldest first, and processes
// them one after another. Jobs that hit a storage error are released back
// to pending and their errors are joined into the returned error.
func (p *Processor) ProcessDue(ctx context.Context) (Report, error) {
	now := p.now()
	jobs, err := p.jobs.ClaimDue(ctx, now, now.Add(-p.policy.ClaimLease), p.policy.BatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("claim due follow-ups: %w", err)
	}

	report := Report{Claimed: len(jobs)}
	var errs []error
	for i, job := range jobs {
		if ctx.Err() != nil {
			p.releaseAll(ctx, jobs[i:], &report)
			errs = append(errs, ctx.Err())
			break
		}
		outcome, err := p.process(ctx, job)
		if err != nil {
			report.Released++
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		report.add(outcome)
	}
	return report, errors.Join(errs...)
}

// ProcessJob processes a single job when it is still due. A job that was
// already handled, or was rescheduled to a later time, is left alone.
func (p *Processor) ProcessJob(ctx context.Context, id uuid.UUID) (Report, error) {
	now := p.now()
	job, ok, err := p.jobs.ClaimByID(ctx, id, now, now.Add(-p.policy.ClaimLease))
	if err != nil {
		return Report{}, fmt.Errorf("claim follow-up %s: %w", id, err)
	}
	if !ok {
		return Report{}, nil
	}

	report := Report{Claimed: 1}
	outcome, err := p.process(ctx, job)
	if err != nil {
		report.Released++
		return report, err
	}
	report.add(outcome)
	return report, nil
}

func (p *Processor) releaseAll(ctx context.Context, jobs []repository.Job, report *Report) {
	ctx = context.WithoutCancel(ctx)
	for _, job := range jobs {
		if err := p.jobs.Release(ctx, job.ID); err != nil {
			p.log.DatabaseError("release_followup", err)
		}
		report.Released++
	}
}

func (p *Processor) release(ctx context.Context, job repository.Job, cause error) error {
	if err := p.jobs.Release(context.WithoutCancel(ctx), job.ID); err != nil {
		return errors.Join(cause, fmt.Errorf("release: %w", err))
	}
	return cause
}

func (p *Processor) process(ctx context.Context, job repository.Job) (string, error) {
	user, err := p.users.GetUser(ctx, job.UserID)
	if errors.Is(err, identityrepo.ErrNotFound) {
		return p.finish(ctx, job, job.Attempts, skipped("user not found"))
	}
	if err != nil {
		return "", p.release(ctx, job, fmt.Errorf("load user: %w", err))
	}

	lead, err := p.leads.GetByID(ctx, job.LeadID)
	if errors.Is(err, leadrepo.ErrNotFound) {
		return p.finish(ctx, job, job.Attempts, skipped("lead not found"))
	}
	if err != nil {
		return "", p.release(ctx, job, fmt.Errorf("load lead: %w", err))
	}

	dispatcher, ok := p.dispatchers[job.Channel]
	if !ok {
		return p.finish(ctx, job, job.Attempts, skipped("unsupported channel "+string(job.Channel)))
	}

	attempts := job.Attempts + 1
	res := dispatcher.Dispatch(ctx, Delivery{Job: job, Lead: lead, User: user})

	switch res.Outcome {
	case repository.OutcomeDelivered:
		p.appendBotMessage(ctx, job, lead)
		return p.finish(ctx, job, attempts, res)
	case repository.OutcomeFailed:
		if attempts < p.policy.MaxAttempts {
			return p.retry(ctx, job, attempts, res)
		}
		return p.finish(ctx, job, attempts, res)
	default:
		return p.finish(ctx, job, attempts, res)
	}
}

func (p *Processor) appendBotMessage(ctx context.Context, job repository.Job, lead domain.Lead) {
	msg := domain.Message{
		ID:        uuid.New(),
		LeadID:    lead.ID,
		Origin:    domain.OriginBot,
		Body:      job.Message,
		CreatedAt: p.now(),
	}
	// The message is already out; a failed append must not resend it.
	if err := p.leads.AppendMessage(ctx, msg); err != nil {
		p.log.DatabaseError("append_followup_message", err)
	}
}

func (p *Processor) retry(ctx context.Context, job repository.Job, attempts int, res Result) (string, error) {
	runAt := p.now().Add(p.policy.Backoff(attempts))
	err := p.jobs.Reschedule(ctx, repository.RescheduleParams{
		ID:        job.ID,
		Attempts:  attempts,
		RunAt:     runAt,
		LastError: res.Detail,
	})
	if err != nil {
		return "", p.release(ctx, job, fmt.Errorf("reschedule: %w", err))
	}
	if p.enqueuer != nil {
		if err := p.enqueuer.Enqueue(ctx, job.ID, runAt); err != nil {
			p.log.CollaboratorFailure("task_queue", "enqueue_followup", err)
		}
	}
	p.report(ctx, job, attempts, outcomeRetried, res.Detail)
	return outcomeRetried, nil
}

func (p *Processor) finish(ctx context.Context, job repository.Job, attempts int, res Result) (string, error) {
	var lastErr *string
	if res.Detail != "" {
		detail := res.Detail
		lastErr = &detail
	}
	err := p.jobs.Finish(ctx, repository.FinishParams{
		ID:        job.ID,
		Outcome:   res.Outcome,
		Attempts:  attempts,
		LastError: lastErr,
		SentAt:    p.now(),
	})
	if errors.Is(err, repository.ErrNotFound) {
		// Another processor finished the job after our lease expired.
		p.log.FollowUpOutcome(job.ID.String(), job.LeadID.String(), "already_finished", "")
		return string(res.Outcome), nil
	}
	if err != nil {
		return "", p.release(ctx, job, fmt.Errorf("finish: %w", err))
	}

	switch res.Outcome {
	case repository.OutcomeDelivered:
		p.recordFact(ctx, job, eventrepo.TypeFollowUpSent, attempts, "")
	case repository.OutcomeFailed:
		p.recordFact(ctx, job, eventrepo.TypeFollowUpFailed, attempts, res.Detail)
	}
	p.report(ctx, job, attempts, string(res.Outcome), res.Detail)
	return string(res.Outcome), nil
}

func (p *Processor) recordFact(ctx context.Context, job repository.Job, t eventrepo.Type, attempts int, detail string) {
	userID, leadID := job.UserID, job.LeadID
	p.facts.Record(ctx, eventrepo.Fact{
		AgencyID: job.AgencyID,
		UserID:   &userID,
		LeadID:   &leadID,
		Type:     t,
		Source:   eventrepo.SourceSweep,
		Payload: eventrepo.Payload{
			Channel:        string(job.Channel),
			Direction:      eventrepo.DirectionOutbound,
			MessageSnippet: job.Message,
			Notes:          detail,
			Extra: map[string]any{
				"jobId":    job.ID.String(),
				"attempts": attempts,
			},
		},
	})
}

func (p *Processor) report(ctx context.Context, job repository.Job, attempts int, outcome, detail string) {
	p.log.FollowUpOutcome(job.ID.String(), job.LeadID.String(), outcome, detail)
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, events.FollowUpProcessed{
		BaseEvent: events.NewBaseEventAt(p.now()),
		JobID:     job.ID,
		LeadID:    job.LeadID,
		Channel:   string(job.Channel),
		Outcome:   outcome,
		Attempts:  attempts,
	})
}
