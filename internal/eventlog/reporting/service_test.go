package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/internal/eventlog/repository"
	leadrepo "leadflow_backend/internal/leads/repository"

	"github.com/google/uuid"
)

type stubLeads struct {
	counts leadrepo.LeadCounts
	daily  []leadrepo.DailyCount
	err    error
}

func (s stubLeads) CountLeads(context.Context, uuid.UUID) (leadrepo.LeadCounts, error) {
	return s.counts, s.err
}

func (s stubLeads) DailyLeadCounts(context.Context, uuid.UUID, time.Time) ([]leadrepo.DailyCount, error) {
	return s.daily, nil
}

func (s stubLeads) AgentLeadStats(context.Context, uuid.UUID) ([]leadrepo.AgentStat, error) {
	return nil, nil
}

type stubFacts struct {
	counts map[repository.Type]int
}

func (s stubFacts) ListRecent(context.Context, uuid.UUID, time.Time, int) ([]repository.Fact, error) {
	return nil, nil
}

func (s stubFacts) CountByType(context.Context, uuid.UUID, time.Time) (map[repository.Type]int, error) {
	return s.counts, nil
}

func TestSummaryBuildsTrendAndRates(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)
	svc := New(stubLeads{
		counts: leadrepo.LeadCounts{Total: 4, Converted: 1},
		daily:  []leadrepo.DailyCount{{Day: time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC), Created: 3}},
	}, stubFacts{counts: map[repository.Type]int{repository.TypeFollowUpSent: 2, repository.TypeStageChanged: 5}})
	svc.now = func() time.Time { return now }

	sum, err := svc.Summary(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.ConversionRate != 0.25 {
		t.Fatalf("expected conversion rate 0.25, got %v", sum.ConversionRate)
	}
	if len(sum.Trend) != TrendDays {
		t.Fatalf("expected %d trend buckets, got %d", TrendDays, len(sum.Trend))
	}
	if !sum.Trend[0].Day.Equal(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first bucket %s", sum.Trend[0].Day)
	}
	if sum.Trend[5].Created != 3 || sum.Trend[6].Created != 0 {
		t.Fatalf("unexpected trend %+v", sum.Trend)
	}
	if sum.Activity.FollowUpsSent != 2 || sum.Activity.StageChanges != 5 {
		t.Fatalf("unexpected activity %+v", sum.Activity)
	}
	if sum.Recent == nil {
		t.Fatalf("recent must be an empty slice, not nil")
	}
}

func TestSummaryPropagatesErrors(t *testing.T) {
	svc := New(stubLeads{err: errors.New("boom")}, stubFacts{})
	if _, err := svc.Summary(context.Background(), uuid.New()); err == nil {
		t.Fatalf("expected error")
	}
}
