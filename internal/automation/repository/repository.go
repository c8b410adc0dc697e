// Package repository stores per-user follow-up automation rule sets.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("automation settings not found")

// Channel is the delivery channel of a follow-up.
type Channel string

const (
	ChannelMessaging Channel = "messaging"
	ChannelEmail     Channel = "email"
)

// ParseChannel accepts the channel names used by clients. "whatsapp" is an
// alias of the messaging channel.
func ParseChannel(raw string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "messaging", "whatsapp", "":
		return ChannelMessaging, true
	case "email":
		return ChannelEmail, true
	default:
		return "", false
	}
}

// Rule is one delayed follow-up.
type Rule struct {
	DelayHours float64 `json:"delayHours"`
	Message    string  `json:"message"`
	Channel    Channel `json:"channel"`
}

// Delay converts DelayHours to a duration.
func (r Rule) Delay() time.Duration {
	return time.Duration(r.DelayHours * float64(time.Hour))
}

// RuleSet is the automation configuration of one user.
type RuleSet struct {
	UserID    uuid.UUID `json:"userId"`
	Enabled   bool      `json:"enabled"`
	FollowUps []Rule    `json:"followUps"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the rule set would schedule anything.
func (s RuleSet) Active() bool {
	return s.Enabled && len(s.FollowUps) > 0
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (RuleSet, error) {
	set := RuleSet{UserID: userID}
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT enabled, follow_ups, updated_at FROM automation_settings WHERE user_id = $1
	`, userID).Scan(&set.Enabled, &raw, &set.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleSet{}, ErrNotFound
	}
	if err != nil {
		return RuleSet{}, err
	}
	if err := json.Unmarshal(raw, &set.FollowUps); err != nil {
		return RuleSet{}, fmt.Errorf("decode follow-ups: %w", err)
	}
	return set, nil
}

// Replace stores the rule set, discarding whatever was there before.
func (r *Repository) Replace(ctx context.Context, set RuleSet) error {
	rules := set.FollowUps
	if rules == nil {
		rules = []Rule{}
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode follow-ups: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO automation_settings (user_id, enabled, follow_ups, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET enabled = EXCLUDED.enabled, follow_ups = EXCLUDED.follow_ups, updated_at = EXCLUDED.updated_at
	`, set.UserID, set.Enabled, raw, set.UpdatedAt)
	return err
}
