package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	automation "leadflow_backend/internal/automation/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("follow-up job not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, user_id, agency_id, lead_id, channel, message, run_at, status, outcome,
	attempts, last_error, claimed_at, sent, sent_at, created_at`

func scanJob(row pgx.Row) (Job, error) {
	var job Job
	var channel, status string
	var outcome *string
	if err := row.Scan(&job.ID, &job.UserID, &job.AgencyID, &job.LeadID, &channel, &job.Message, &job.RunAt,
		&status, &outcome, &job.Attempts, &job.LastError, &job.ClaimedAt, &job.Sent, &job.SentAt, &job.CreatedAt); err != nil {
		return Job{}, err
	}
	job.Channel = automation.Channel(channel)
	job.Status = Status(status)
	if outcome != nil {
		o := Outcome(*outcome)
		job.Outcome = &o
	}
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	defer rows.Close()
	jobs := make([]Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// InsertBatch stores all jobs in one transaction.
func (r *Repository) InsertBatch(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, job := range jobs {
		batch.Queue(`
			INSERT INTO follow_up_jobs (id, user_id, agency_id, lead_id, channel, message, run_at, status, attempts, sent, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, false, $8, $8)
		`, job.ID, job.UserID, job.AgencyID, job.LeadID, string(job.Channel), job.Message, job.RunAt, job.CreatedAt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert follow-up jobs: %w", err)
	}
	return tx.Commit(ctx)
}

// ClaimDue moves up to limit due jobs to processing, oldest runAt first.
// Jobs stuck in processing since before staleBefore are reclaimed. Rows
// locked by a concurrent claimer are skipped.
func (r *Repository) ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM follow_up_jobs
			WHERE run_at <= $1
				AND (status = 'pending' OR (status = 'processing' AND claimed_at < $2))
			ORDER BY run_at ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE follow_up_jobs j
		SET status = 'processing', claimed_at = $1, updated_at = now()
		FROM due
		WHERE j.id = due.id
		RETURNING j.`+jobColumns+`
	`, now, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	sortByRunAt(jobs)
	return jobs, nil
}

// ClaimByID claims a single job if it is due and not held by someone else.
// The boolean is false when the job was not claimable.
func (r *Repository) ClaimByID(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (Job, bool, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE follow_up_jobs
		SET status = 'processing', claimed_at = $2, updated_at = now()
		WHERE id = $1 AND run_at <= $2
			AND (status = 'pending' OR (status = 'processing' AND claimed_at < $3))
		RETURNING `+jobColumns+`
	`, id, now, staleBefore))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Finish marks a job terminal. It is the only path that sets sent = true.
func (r *Repository) Finish(ctx context.Context, p FinishParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE follow_up_jobs
		SET status = 'sent', sent = true, sent_at = $2, outcome = $3, attempts = $4, last_error = $5,
			claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status <> 'sent'
	`, p.ID, p.SentAt, string(p.Outcome), p.Attempts, p.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reschedule returns a claimed job to pending with a new runAt.
func (r *Repository) Reschedule(ctx context.Context, p RescheduleParams) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE follow_up_jobs
		SET status = 'pending', run_at = $2, attempts = $3, last_error = $4, claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, p.ID, p.RunAt, p.Attempts, p.LastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Release hands a claimed job back unchanged, e.g. after a storage error.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE follow_up_jobs SET status = 'pending', claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id)
	return err
}

func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM follow_up_jobs
		WHERE user_id = $1
		ORDER BY run_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// DeletePendingForUser removes the user's jobs that have not been claimed.
func (r *Repository) DeletePendingForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM follow_up_jobs WHERE user_id = $1 AND status = 'pending'`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
