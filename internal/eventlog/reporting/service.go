// Package reporting builds the analytics read model over leads and the
// fact log.
package reporting

import (
	"context"
	"time"

	"leadflow_backend/internal/eventlog/repository"
	leadrepo "leadflow_backend/internal/leads/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	TrendDays      = 7
	ActivityWindow = 30 * 24 * time.Hour
	RecentLimit    = 200
)

// LeadStats is the lead side of the read model.
type LeadStats interface {
	CountLeads(ctx context.Context, agencyID uuid.UUID) (leadrepo.LeadCounts, error)
	DailyLeadCounts(ctx context.Context, agencyID uuid.UUID, since time.Time) ([]leadrepo.DailyCount, error)
	AgentLeadStats(ctx context.Context, agencyID uuid.UUID) ([]leadrepo.AgentStat, error)
}

// FactReader is the fact log side of the read model.
type FactReader interface {
	ListRecent(ctx context.Context, agencyID uuid.UUID, since time.Time, limit int) ([]repository.Fact, error)
	CountByType(ctx context.Context, agencyID uuid.UUID, since time.Time) (map[repository.Type]int, error)
}

type Activity struct {
	FollowUpsScheduled int `json:"followUpsScheduled"`
	FollowUpsSent      int `json:"followUpsSent"`
	FollowUpsFailed    int `json:"followUpsFailed"`
	WhatsAppIn         int `json:"whatsappIn"`
	WhatsAppOutAI      int `json:"whatsappOutAi"`
	WhatsAppOutAgent   int `json:"whatsappOutAgent"`
	StageChanges       int `json:"stageChanges"`
}

type Summary struct {
	Totals         leadrepo.LeadCounts   `json:"totals"`
	ConversionRate float64               `json:"conversionRate"`
	Trend          []leadrepo.DailyCount `json:"trend"`
	Activity       Activity              `json:"activity"`
	Recent         []repository.Fact     `json:"recent"`
}

type Service struct {
	leads LeadStats
	facts FactReader
	now   func() time.Time
}

func New(leads LeadStats, facts FactReader) *Service {
	return &Service{leads: leads, facts: facts, now: time.Now}
}

// Summary loads the dashboard figures concurrently.
func (s *Service) Summary(ctx context.Context, agencyID uuid.UUID) (Summary, error) {
	now := s.now().UTC()
	trendStart := truncateDay(now).AddDate(0, 0, -(TrendDays - 1))
	activitySince := now.Add(-ActivityWindow)

	var (
		out    Summary
		daily  []leadrepo.DailyCount
		counts map[repository.Type]int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Totals, err = s.leads.CountLeads(gctx, agencyID)
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = s.leads.DailyLeadCounts(gctx, agencyID, trendStart)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.facts.CountByType(gctx, agencyID, activitySince)
		return err
	})
	g.Go(func() error {
		var err error
		out.Recent, err = s.facts.ListRecent(gctx, agencyID, activitySince, RecentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	if out.Totals.Total > 0 {
		out.ConversionRate = float64(out.Totals.Converted) / float64(out.Totals.Total)
	}
	out.Trend = fillTrend(trendStart, daily)
	out.Activity = Activity{
		FollowUpsScheduled: counts[repository.TypeFollowUpScheduled],
		FollowUpsSent:      counts[repository.TypeFollowUpSent],
		FollowUpsFailed:    counts[repository.TypeFollowUpFailed],
		WhatsAppIn:         counts[repository.TypeWhatsAppIn],
		WhatsAppOutAI:      counts[repository.TypeWhatsAppOutAI],
		WhatsAppOutAgent:   counts[repository.TypeWhatsAppOutAgent],
		StageChanges:       counts[repository.TypeStageChanged],
	}
	if out.Recent == nil {
		out.Recent = []repository.Fact{}
	}
	return out, nil
}

// Agents returns per-agent lead counts.
func (s *Service) Agents(ctx context.Context, agencyID uuid.UUID) ([]leadrepo.AgentStat, error) {
	stats, err := s.leads.AgentLeadStats(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []leadrepo.AgentStat{}
	}
	return stats, nil
}

// fillTrend returns one bucket per day starting at start, zero-filling days
// without leads.
func fillTrend(start time.Time, daily []leadrepo.DailyCount) []leadrepo.DailyCount {
	byDay := make(map[time.Time]leadrepo.DailyCount, len(daily))
	for _, d := range daily {
		byDay[truncateDay(d.Day.UTC())] = d
	}

	trend := make([]leadrepo.DailyCount, 0, TrendDays)
	for i := 0; i < TrendDays; i++ {
		day := start.AddDate(0, 0, i)
		bucket := byDay[day]
		bucket.Day = day
		trend = append(trend, bucket)
	}
	return trend
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
