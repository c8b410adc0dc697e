package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("lead not found")
	ErrVersionConflict = errors.New("lead was modified concurrently")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, agency_id, user_id, phone, name, email, source, stage, qualification_level,
	budget, timeline, use_case, ai_notes, ai_intent, ai_urgency, ai_tags,
	score, will_respond_score, will_buy_score, priority_level, engagement_notes,
	is_fake, fake_reason, last_message, assigned_to, is_converted, converted_at,
	version, created_at, updated_at`

// leadRowScanner is satisfied by pgx.Rows and pgx.Row.
type leadRowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s leadRowScanner) (domain.Lead, error) {
	var lead domain.Lead
	var stage, level string
	var priority *string
	err := s.Scan(
		&lead.ID, &lead.AgencyID, &lead.UserID, &lead.Phone, &lead.Name, &lead.Email, &lead.Source, &stage, &level,
		&lead.Budget, &lead.Timeline, &lead.UseCase, &lead.AINotes, &lead.AIIntent, &lead.AIUrgency, &lead.AITags,
		&lead.Score, &lead.WillRespondScore, &lead.WillBuyScore, &priority, &lead.EngagementNotes,
		&lead.IsFake, &lead.FakeReason, &lead.LastMessage, &lead.AssignedTo, &lead.IsConverted, &lead.ConvertedAt,
		&lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Stage = domain.Stage(stage)
	lead.QualificationLevel = domain.QualificationLevel(level)
	if priority != nil {
		p := domain.Priority(*priority)
		lead.PriorityLevel = &p
	}
	if lead.AITags == nil {
		lead.AITags = []string{}
	}
	return lead, nil
}

// Create inserts a lead together with its first message in one transaction.
func (r *Repository) Create(ctx context.Context, lead domain.Lead, first *domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO leads (
			id, agency_id, user_id, phone, name, email, source, stage, qualification_level,
			ai_tags, last_message, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, lead.ID, lead.AgencyID, lead.UserID, lead.Phone, lead.Name, lead.Email, lead.Source,
		string(lead.Stage), string(lead.QualificationLevel), lead.AITags, lead.LastMessage,
		lead.Version, lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}

	if first != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO lead_messages (id, lead_id, origin, body, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, first.ID, first.LeadID, string(first.Origin), first.Body, first.CreatedAt); err != nil {
			return fmt.Errorf("insert first message: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// FindLatestByPhone returns the most recently created lead with the phone
// key inside the agency. Ties on created_at resolve to the highest id.
func (r *Repository) FindLatestByPhone(ctx context.Context, agencyID uuid.UUID, phoneKey string) (domain.Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE agency_id = $1 AND phone = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, agencyID, phoneKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// FillContact sets name and email only where they are still empty.
func (r *Repository) FillContact(ctx context.Context, id uuid.UUID, name, email *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET name = COALESCE(NULLIF(name, ''), $2),
			email = COALESCE(NULLIF(email, ''), $3),
			updated_at = now()
		WHERE id = $1
	`, id, name, email)
	return err
}

func (r *Repository) SavePipeline(ctx context.Context, lead domain.Lead) (int, error) {
	var priority *string
	if lead.PriorityLevel != nil {
		p := string(*lead.PriorityLevel)
		priority = &p
	}

	var version int
	err := r.pool.QueryRow(ctx, `
		UPDATE leads SET
			stage = $3, qualification_level = $4,
			budget = $5, timeline = $6, use_case = $7, ai_notes = $8, ai_intent = $9, ai_urgency = $10, ai_tags = $11,
			score = $12, will_respond_score = $13, will_buy_score = $14, priority_level = $15, engagement_notes = $16,
			is_fake = $17, fake_reason = $18, is_converted = $19, converted_at = $20,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version
	`, lead.ID, lead.Version, string(lead.Stage), string(lead.QualificationLevel),
		lead.Budget, lead.Timeline, lead.UseCase, lead.AINotes, lead.AIIntent, lead.AIUrgency, lead.AITags,
		lead.Score, lead.WillRespondScore, lead.WillBuyScore, priority, lead.EngagementNotes,
		lead.IsFake, lead.FakeReason, lead.IsConverted, lead.ConvertedAt,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1)`, lead.ID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrVersionConflict
	}
	return version, err
}

func (r *Repository) Assign(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE leads SET assigned_to = $2, updated_at = now() WHERE id = $1`, id, agentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	var stage *string
	if params.Stage != nil {
		s := string(*params.Stage)
		stage = &s
	}
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads
		WHERE agency_id = $1
			AND ($2::uuid IS NULL OR assigned_to = $2)
			AND ($3::text IS NULL OR stage = $3)
	`, params.AgencyID, params.AssignedTo, stage).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE agency_id = $1
			AND ($2::uuid IS NULL OR assigned_to = $2)
			AND ($3::text IS NULL OR stage = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, params.AgencyID, params.AssignedTo, stage, limit, params.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return leads, total, nil
}

// AppendMessage inserts a conversation entry and refreshes the lead's
// lastMessage summary. It never rewrites existing messages.
func (r *Repository) AppendMessage(ctx context.Context, msg domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_messages (id, lead_id, origin, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.LeadID, string(msg.Origin), msg.Body, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE leads SET last_message = $2, updated_at = now() WHERE id = $1`, msg.LeadID, msg.Body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListMessages(ctx context.Context, leadID uuid.UUID) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, origin, body, created_at
		FROM lead_messages
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		var origin string
		if err := rows.Scan(&msg.ID, &msg.LeadID, &origin, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Origin = domain.MessageOrigin(origin)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
