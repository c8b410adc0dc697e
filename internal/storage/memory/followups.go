package memory

import (
	"context"
	"sort"
	"time"

	followup "leadflow_backend/internal/followup/repository"

	"github.com/google/uuid"
)

// FollowUps implements the follow-up job repository.
type FollowUps struct {
	s *Store
}

func (r *FollowUps) InsertBatch(_ context.Context, jobs []followup.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, job := range jobs {
		job.Status = followup.StatusPending
		r.s.jobs[job.ID] = job
	}
	return nil
}

func claimable(job followup.Job, now, staleBefore time.Time) bool {
	if job.RunAt.After(now) {
		return false
	}
	switch job.Status {
	case followup.StatusPending:
		return true
	case followup.StatusProcessing:
		return job.ClaimedAt != nil && job.ClaimedAt.Before(staleBefore)
	default:
		return false
	}
}

func (r *FollowUps) ClaimDue(_ context.Context, now, staleBefore time.Time, limit int) ([]followup.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	due := make([]followup.Job, 0)
	for _, job := range r.s.jobs {
		if claimable(job, now, staleBefore) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].ID.String() < due[j].ID.String()
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = followup.StatusProcessing
		due[i].ClaimedAt = ptrTime(now)
		r.s.jobs[due[i].ID] = due[i]
	}
	return due, nil
}

func (r *FollowUps) ClaimByID(_ context.Context, id uuid.UUID, now, staleBefore time.Time) (followup.Job, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok || !claimable(job, now, staleBefore) {
		return followup.Job{}, false, nil
	}
	job.Status = followup.StatusProcessing
	job.ClaimedAt = ptrTime(now)
	r.s.jobs[id] = job
	return job, true, nil
}

func (r *FollowUps) Finish(_ context.Context, p followup.FinishParams) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[p.ID]
	if !ok || job.Status == followup.StatusSent {
		return followup.ErrNotFound
	}
	outcome := p.Outcome
	job.Status = followup.StatusSent
	job.Sent = true
	job.SentAt = ptrTime(p.SentAt)
	job.Outcome = &outcome
	job.Attempts = p.Attempts
	job.LastError = p.LastError
	job.ClaimedAt = nil
	r.s.jobs[p.ID] = job
	return nil
}

func (r *FollowUps) Reschedule(_ context.Context, p followup.RescheduleParams) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[p.ID]
	if !ok || job.Status != followup.StatusProcessing {
		return followup.ErrNotFound
	}
	lastErr := p.LastError
	job.Status = followup.StatusPending
	job.RunAt = p.RunAt
	job.Attempts = p.Attempts
	job.LastError = &lastErr
	job.ClaimedAt = nil
	r.s.jobs[p.ID] = job
	return nil
}

func (r *FollowUps) Release(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok || job.Status != followup.StatusProcessing {
		return nil
	}
	job.Status = followup.StatusPending
	job.ClaimedAt = nil
	r.s.jobs[id] = job
	return nil
}

func (r *FollowUps) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]followup.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]followup.Job, 0)
	for _, job := range r.s.jobs {
		if job.UserID == userID {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].RunAt.After(out[j].RunAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *FollowUps) DeletePendingForUser(_ context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, job := range r.s.jobs {
		if job.UserID == userID && job.Status == followup.StatusPending {
			delete(r.s.jobs, id)
			n++
		}
	}
	return n, nil
}

// Get returns a job by id. Only the in-memory store exposes this; tests
// use it to inspect job state.
func (r *FollowUps) Get(id uuid.UUID) (followup.Job, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	return job, ok
}
