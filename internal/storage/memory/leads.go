package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	leadrepo "leadflow_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// Leads implements leadrepo.LeadRepository.
type Leads struct {
	s *Store
}

var _ leadrepo.LeadRepository = (*Leads)(nil)

func (r *Leads) Create(_ context.Context, lead domain.Lead, first *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if lead.AITags == nil {
		lead.AITags = []string{}
	}
	r.s.leads[lead.ID] = copyLead(lead)
	if first != nil {
		r.s.messages[lead.ID] = append(r.s.messages[lead.ID], *first)
	}
	return nil
}

func (r *Leads) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lead, ok := r.s.leads[id]
	if !ok {
		return domain.Lead{}, leadrepo.ErrNotFound
	}
	return copyLead(lead), nil
}

func (r *Leads) FindLatestByPhone(_ context.Context, agencyID uuid.UUID, phoneKey string) (domain.Lead, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var best *domain.Lead
	for id := range r.s.leads {
		l := r.s.leads[id]
		if l.AgencyID != agencyID || l.Phone == nil || *l.Phone != phoneKey {
			continue
		}
		if best == nil || l.CreatedAt.After(best.CreatedAt) ||
			(l.CreatedAt.Equal(best.CreatedAt) && l.ID.String() > best.ID.String()) {
			candidate := l
			best = &candidate
		}
	}
	if best == nil {
		return domain.Lead{}, leadrepo.ErrNotFound
	}
	return copyLead(*best), nil
}

func (r *Leads) List(_ context.Context, params leadrepo.ListParams) ([]domain.Lead, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := make([]domain.Lead, 0)
	for _, l := range r.s.leads {
		if l.AgencyID != params.AgencyID {
			continue
		}
		if params.AssignedTo != nil && (l.AssignedTo == nil || *l.AssignedTo != *params.AssignedTo) {
			continue
		}
		if params.Stage != nil && l.Stage != *params.Stage {
			continue
		}
		matched = append(matched, copyLead(l))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *Leads) FillContact(_ context.Context, id uuid.UUID, name, email *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lead, ok := r.s.leads[id]
	if !ok {
		return leadrepo.ErrNotFound
	}
	if name != nil && (lead.Name == nil || strings.TrimSpace(*lead.Name) == "") {
		v := *name
		lead.Name = &v
	}
	if email != nil && (lead.Email == nil || strings.TrimSpace(*lead.Email) == "") {
		v := *email
		lead.Email = &v
	}
	lead.UpdatedAt = time.Now()
	r.s.leads[id] = lead
	return nil
}

func (r *Leads) SavePipeline(_ context.Context, lead domain.Lead) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.leads[lead.ID]
	if !ok {
		return 0, leadrepo.ErrNotFound
	}
	if stored.Version != lead.Version {
		return 0, leadrepo.ErrVersionConflict
	}

	next := copyLead(lead)
	// Columns SavePipeline does not own keep their stored values.
	next.Phone, next.Name, next.Email = stored.Phone, stored.Name, stored.Email
	next.LastMessage, next.AssignedTo = stored.LastMessage, stored.AssignedTo
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now()
	r.s.leads[lead.ID] = next
	return next.Version, nil
}

func (r *Leads) Assign(_ context.Context, id uuid.UUID, agentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lead, ok := r.s.leads[id]
	if !ok {
		return leadrepo.ErrNotFound
	}
	lead.AssignedTo = &agentID
	r.s.leads[id] = lead
	return nil
}

func (r *Leads) AppendMessage(_ context.Context, msg domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lead, ok := r.s.leads[msg.LeadID]
	if !ok {
		return leadrepo.ErrNotFound
	}
	r.s.messages[msg.LeadID] = append(r.s.messages[msg.LeadID], msg)
	body := msg.Body
	lead.LastMessage = &body
	lead.UpdatedAt = time.Now()
	r.s.leads[msg.LeadID] = lead
	return nil
}

func (r *Leads) ListMessages(_ context.Context, leadID uuid.UUID) ([]domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]domain.Message{}, r.s.messages[leadID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Leads) CountLeads(_ context.Context, agencyID uuid.UUID) (leadrepo.LeadCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var c leadrepo.LeadCounts
	for _, l := range r.s.leads {
		if l.AgencyID != agencyID {
			continue
		}
		c.Total++
		switch l.QualificationLevel {
		case domain.QualificationHot:
			c.Hot++
		case domain.QualificationWarm:
			c.Warm++
		case domain.QualificationCold:
			c.Cold++
		}
		if l.IsFake {
			c.Fake++
		}
		if l.IsConverted {
			c.Converted++
		}
	}
	return c, nil
}

func (r *Leads) DailyLeadCounts(_ context.Context, agencyID uuid.UUID, since time.Time) ([]leadrepo.DailyCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	buckets := make(map[time.Time]*leadrepo.DailyCount)
	bucket := func(t time.Time) *leadrepo.DailyCount {
		t = t.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		b, ok := buckets[day]
		if !ok {
			b = &leadrepo.DailyCount{Day: day}
			buckets[day] = b
		}
		return b
	}
	for _, l := range r.s.leads {
		if l.AgencyID != agencyID {
			continue
		}
		if !l.CreatedAt.Before(since) {
			bucket(l.CreatedAt).Created++
		}
		if l.IsConverted && l.ConvertedAt != nil && !l.ConvertedAt.Before(since) {
			bucket(*l.ConvertedAt).Converted++
		}
	}

	out := make([]leadrepo.DailyCount, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (r *Leads) AgentLeadStats(_ context.Context, agencyID uuid.UUID) ([]leadrepo.AgentStat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stats := make([]leadrepo.AgentStat, 0)
	for _, u := range r.s.users {
		if u.AgencyID == nil || *u.AgencyID != agencyID || !u.Role.IsAssignable() {
			continue
		}
		stat := leadrepo.AgentStat{AgentID: u.ID, Name: u.Name}
		for _, l := range r.s.leads {
			if l.AssignedTo == nil || *l.AssignedTo != u.ID {
				continue
			}
			stat.Assigned++
			switch l.Stage {
			case domain.StageHot:
				stat.Hot++
			case domain.StageClosed:
				stat.Closed++
			}
		}
		stats = append(stats, stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Assigned == stats[j].Assigned {
			return stats[i].Name < stats[j].Name
		}
		return stats[i].Assigned > stats[j].Assigned
	})
	return stats, nil
}
