// Package service schedules, dispatches and maintains follow-up jobs.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	automation "leadflow_backend/internal/automation/repository"
	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// RuleReader loads a user's automation rules.
type RuleReader interface {
	Get(ctx context.Context, userID uuid.UUID) (automation.RuleSet, error)
}

// JobWriter stores new jobs.
type JobWriter interface {
	InsertBatch(ctx context.Context, jobs []repository.Job) error
}

// Enqueuer hands a job to a delayed task queue. The sweep still picks up
// jobs whose enqueue failed.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID uuid.UUID, runAt time.Time) error
}

type Scheduler struct {
	rules    RuleReader
	jobs     JobWriter
	facts    ports.FactRecorder
	enqueuer Enqueuer
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewScheduler(rules RuleReader, jobs JobWriter, facts ports.FactRecorder, m *metrics.Metrics, log *logger.Logger) *Scheduler {
	return &Scheduler{rules: rules, jobs: jobs, facts: facts, metrics: m, log: log, now: time.Now}
}

// SetEnqueuer attaches a delayed task queue.
func (s *Scheduler) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// ScheduleForLead creates one pending job per active rule of the user. Rules
// are copied into the jobs, so later edits to the rule set do not affect
// jobs already scheduled.
func (s *Scheduler) ScheduleForLead(ctx context.Context, userID uuid.UUID, lead domain.Lead) (int, error) {
	set, err := s.rules.Get(ctx, userID)
	if errors.Is(err, automation.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load automation: %w", err)
	}
	if !set.Active() {
		return 0, nil
	}

	now := s.now()
	jobs := make([]repository.Job, 0, len(set.FollowUps))
	for _, rule := range set.FollowUps {
		jobs = append(jobs, repository.Job{
			ID:        uuid.New(),
			UserID:    userID,
			AgencyID:  lead.AgencyID,
			LeadID:    lead.ID,
			Channel:   rule.Channel,
			Message:   rule.Message,
			RunAt:     now.Add(rule.Delay()),
			Status:    repository.StatusPending,
			CreatedAt: now,
		})
	}
	if err := s.jobs.InsertBatch(ctx, jobs); err != nil {
		return 0, fmt.Errorf("insert follow-up jobs: %w", err)
	}
	s.metrics.FollowUpsScheduled(len(jobs))

	for i, job := range jobs {
		uid, leadID := userID, lead.ID
		s.facts.Record(ctx, eventrepo.Fact{
			AgencyID: lead.AgencyID,
			UserID:   &uid,
			LeadID:   &leadID,
			Type:     eventrepo.TypeFollowUpScheduled,
			Payload: eventrepo.Payload{
				Channel: string(job.Channel),
				Notes:   "delayHours=" + strconv.FormatFloat(set.FollowUps[i].DelayHours, 'f', -1, 64),
				Extra: map[string]any{
					"jobId": job.ID.String(),
					"runAt": job.RunAt.UTC().Format(time.RFC3339),
				},
			},
		})

		if s.enqueuer == nil {
			continue
		}
		if err := s.enqueuer.Enqueue(ctx, job.ID, job.RunAt); err != nil {
			s.log.CollaboratorFailure("task_queue", "enqueue_followup", err)
		}
	}

	return len(jobs), nil
}
