package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a fact. Facts are never updated or deleted.
func (r *Repository) Insert(ctx context.Context, fact Fact) error {
	payloadJSON, err := json.Marshal(fact.Payload)
	if err != nil {
		return fmt.Errorf("marshal fact payload: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO event_logs (id, agency_id, user_id, lead_id, type, payload, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, fact.ID, fact.AgencyID, fact.UserID, fact.LeadID, string(fact.Type), payloadJSON, fact.Source, fact.CreatedAt)
	return err
}

// ListRecent returns the agency's newest facts created at or after since.
func (r *Repository) ListRecent(ctx context.Context, agencyID uuid.UUID, since time.Time, limit int) ([]Fact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agency_id, user_id, lead_id, type, payload, source, created_at
		FROM event_logs
		WHERE agency_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, agencyID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make([]Fact, 0)
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// ListForLead returns a lead's facts in chronological order.
func (r *Repository) ListForLead(ctx context.Context, leadID uuid.UUID, limit int) ([]Fact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agency_id, user_id, lead_id, type, payload, source, created_at
		FROM event_logs
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make([]Fact, 0)
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	return facts, rows.Err()
}

// CountByType counts the agency's facts per type since the given time.
func (r *Repository) CountByType(ctx context.Context, agencyID uuid.UUID, since time.Time) (map[Type]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT type, COUNT(*)
		FROM event_logs
		WHERE agency_id = $1 AND created_at >= $2
		GROUP BY type
	`, agencyID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Type]int)
	for rows.Next() {
		var factType string
		var count int
		if err := rows.Scan(&factType, &count); err != nil {
			return nil, err
		}
		counts[Type(factType)] = count
	}
	return counts, rows.Err()
}

// factRowScanner is satisfied by pgx.Rows and pgx.Row.
type factRowScanner interface {
	Scan(dest ...any) error
}

// scanFact expects columns: id, agency_id, user_id, lead_id, type, payload, source, created_at.
func scanFact(s factRowScanner) (Fact, error) {
	var fact Fact
	var factType string
	var payloadJSON []byte
	if err := s.Scan(&fact.ID, &fact.AgencyID, &fact.UserID, &fact.LeadID, &factType, &payloadJSON, &fact.Source, &fact.CreatedAt); err != nil {
		return Fact{}, err
	}
	fact.Type = Type(factType)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &fact.Payload); err != nil {
			return Fact{}, fmt.Errorf("decode fact payload: %w", err)
		}
	}
	return fact, nil
}
