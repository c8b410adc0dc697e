// Package repository stores site visits booked for leads.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("visit not found")

// Status is the lifecycle state of a visit.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsFinal reports whether the visit can no longer change.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// TimeSlot is the part of the day a visit is planned for.
type TimeSlot string

const (
	SlotMorning   TimeSlot = "morning"
	SlotAfternoon TimeSlot = "afternoon"
	SlotEvening   TimeSlot = "evening"
)

// Visit is a property site visit booked for a lead.
type Visit struct {
	ID       uuid.UUID
	LeadID   uuid.UUID
	AgencyID uuid.UUID
	// AssignedAgentID is the lead's assignee at booking time.
	AssignedAgentID *uuid.UUID
	BookedBy        uuid.UUID
	Date            time.Time
	TimeSlot        TimeSlot
	Status          Status
	FamilyComing    bool
	PickupRequired  bool
	Notes           string
	Source          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const visitColumns = `id, lead_id, agency_id, assigned_agent_id, booked_by, visit_date, time_slot,
	status, family_coming, pickup_required, notes, source, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, v Visit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO visits (`+visitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, v.ID, v.LeadID, v.AgencyID, v.AssignedAgentID, v.BookedBy, v.Date, v.TimeSlot,
		v.Status, v.FamilyComing, v.PickupRequired, v.Notes, v.Source, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create visit: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Visit, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id)
	v, err := scanVisit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Visit{}, ErrNotFound
	}
	if err != nil {
		return Visit{}, fmt.Errorf("get visit: %w", err)
	}
	return v, nil
}

// ListByLead returns the lead's visits, latest date first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Visit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+` FROM visits
		WHERE lead_id = $1
		ORDER BY visit_date DESC, created_at DESC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	visits := make([]Visit, 0)
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// UpdateStatus moves a visit to status unless it is already final.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE visits SET status = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
	`, id, status, at)
	if err != nil {
		return fmt.Errorf("update visit status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVisit(row pgx.Row) (Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.LeadID, &v.AgencyID, &v.AssignedAgentID, &v.BookedBy, &v.Date, &v.TimeSlot,
		&v.Status, &v.FamilyComing, &v.PickupRequired, &v.Notes, &v.Source, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}
