package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func (r *Repository) CountLeads(ctx context.Context, agencyID uuid.UUID) (LeadCounts, error) {
	var counts LeadCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE qualification_level = 'hot'),
			COUNT(*) FILTER (WHERE qualification_level = 'warm'),
			COUNT(*) FILTER (WHERE qualification_level = 'cold'),
			COUNT(*) FILTER (WHERE is_fake),
			COUNT(*) FILTER (WHERE is_converted)
		FROM leads
		WHERE agency_id = $1
	`, agencyID).Scan(&counts.Total, &counts.Hot, &counts.Warm, &counts.Cold, &counts.Fake, &counts.Converted)
	return counts, err
}

// DailyLeadCounts returns one bucket per UTC day that has activity since the
// given time. Days without leads are omitted; callers fill the gaps.
func (r *Repository) DailyLeadCounts(ctx context.Context, agencyID uuid.UUID, since time.Time) ([]DailyCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, SUM(created)::int, SUM(converted)::int
		FROM (
			SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, 1 AS created, 0 AS converted
			FROM leads WHERE agency_id = $1 AND created_at >= $2
			UNION ALL
			SELECT date_trunc('day', converted_at AT TIME ZONE 'UTC'), 0, 1
			FROM leads WHERE agency_id = $1 AND is_converted AND converted_at >= $2
		) buckets
		GROUP BY day
		ORDER BY day
	`, agencyID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DailyCount, 0)
	for rows.Next() {
		var item DailyCount
		if err := rows.Scan(&item.Day, &item.Created, &item.Converted); err != nil {
			return nil, err
		}
		item.Day = time.Date(item.Day.Year(), item.Day.Month(), item.Day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *Repository) AgentLeadStats(ctx context.Context, agencyID uuid.UUID) ([]AgentStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name,
			COUNT(l.id),
			COUNT(l.id) FILTER (WHERE l.stage = 'hot'),
			COUNT(l.id) FILTER (WHERE l.stage = 'closed')
		FROM users u
		LEFT JOIN leads l ON l.assigned_to = u.id
		WHERE u.agency_id = $1 AND u.role IN ('owner', 'agent')
		GROUP BY u.id, u.name
		ORDER BY COUNT(l.id) DESC, u.name ASC
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AgentStat, 0)
	for rows.Next() {
		var item AgentStat
		if err := rows.Scan(&item.AgentID, &item.Name, &item.Assigned, &item.Hot, &item.Closed); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
