// Package repository stores users, their agencies and messaging credentials.
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

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("user already exists")
)

// Role is a user's role inside an agency.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

// AssignableRoles are the roles that receive auto-assigned leads.
var AssignableRoles = []Role{RoleOwner, RoleAgent}

// IsAssignable reports whether users with this role take part in round-robin.
func (r Role) IsAssignable() bool {
	for _, role := range AssignableRoles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID             uuid.UUID
	AgencyID       *uuid.UUID
	Name           string
	Email          string
	Role           Role
	IsActive       bool
	LastAssignedAt *time.Time
	// WhatsAppPhoneNumberID routes inbound webhooks to this user.
	WhatsAppPhoneNumberID *string
	// WhatsAppAccessToken is stored sealed, see credcrypto.
	WhatsAppAccessToken *string
	CreatedAt           time.Time
}

type Agency struct {
	ID        uuid.UUID
	Name      string
	OwnerID   uuid.UUID
	CreatedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, agency_id, name, email, role, is_active, last_assigned_at,
	whatsapp_phone_number_id, whatsapp_access_token, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.AgencyID, &u.Name, &u.Email, &role, &u.IsActive, &u.LastAssignedAt,
		&u.WhatsAppPhoneNumberID, &u.WhatsAppAccessToken, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByPhoneNumberID resolves the owner of a WhatsApp business number.
func (r *Repository) GetUserByPhoneNumberID(ctx context.Context, phoneNumberID string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE whatsapp_phone_number_id = $1`, phoneNumberID))
}

func (r *Repository) CreateUser(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, agency_id, name, email, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (email) DO NOTHING
	`, u.ID, u.AgencyID, u.Name, u.Email, string(u.Role), u.IsActive, u.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// EnsureAgency returns the agency of user, creating one named name and
// owned by the user when it has none. Concurrent callers converge on a
// single agency through the unique owner index.
func (r *Repository) EnsureAgency(ctx context.Context, userID uuid.UUID, name string, now time.Time) (Agency, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Agency{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var agencyID *uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT agency_id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&agencyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agency{}, ErrNotFound
		}
		return Agency{}, err
	}

	if agencyID == nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO agencies (id, name, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (owner_id) DO NOTHING
		`, uuid.New(), name, userID, now); err != nil {
			return Agency{}, fmt.Errorf("insert agency: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET agency_id = (SELECT id FROM agencies WHERE owner_id = $1), updated_at = now()
			WHERE id = $1
		`, userID); err != nil {
			return Agency{}, fmt.Errorf("attach agency: %w", err)
		}
	}

	var agency Agency
	err = tx.QueryRow(ctx, `
		SELECT a.id, a.name, a.owner_id, a.created_at
		FROM agencies a JOIN users u ON u.agency_id = a.id
		WHERE u.id = $1
	`, userID).Scan(&agency.ID, &agency.Name, &agency.OwnerID, &agency.CreatedAt)
	if err != nil {
		return Agency{}, err
	}

	return agency, tx.Commit(ctx)
}

// ListAssignableAgents returns the agency's active owners and agents, least
// recently assigned first. Never-assigned users come first, ties resolve by
// creation time and id.
func (r *Repository) ListAssignableAgents(ctx context.Context, agencyID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE agency_id = $1 AND is_active AND role IN ('owner', 'agent')
		ORDER BY last_assigned_at ASC NULLS FIRST, created_at ASC, id ASC
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListAgencyUsers returns every user of the agency ordered by name.
func (r *Repository) ListAgencyUsers(ctx context.Context, agencyID uuid.UUID) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users WHERE agency_id = $1 ORDER BY name ASC, id ASC
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// TouchLastAssigned advances the round-robin cursor of a user.
func (r *Repository) TouchLastAssigned(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_assigned_at = $2, updated_at = now() WHERE id = $1`, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveWhatsAppCredentials stores the business number id and sealed token.
func (r *Repository) SaveWhatsAppCredentials(ctx context.Context, userID uuid.UUID, phoneNumberID, sealedToken string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET whatsapp_phone_number_id = $2, whatsapp_access_token = $3, updated_at = now()
		WHERE id = $1
	`, userID, phoneNumberID, sealedToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
