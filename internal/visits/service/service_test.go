package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/eventlog"
	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/identity/credcrypto"
	identityrepo "leadflow_backend/internal/identity/repository"
	identityservice "leadflow_backend/internal/identity/service"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/storage/memory"
	"leadflow_backend/internal/visits/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const unexpectedErrMsg = "unexpected error: %v"

type fixture struct {
	store *memory.Store
	svc   *Service
	owner identityrepo.User
	agent uuid.UUID
	lead  domain.Lead
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	owner := identityrepo.User{ID: uuid.New(), Name: "Priya", Email: "priya@example.com", Role: identityrepo.RoleOwner, IsActive: true}
	if err := store.Users().CreateUser(ctx, owner); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	sealer, err := credcrypto.New(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	identity := identityservice.New(store.Users(), sealer, logger.Discard())
	agency, err := identity.EnsureAgency(ctx, owner)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	phone := "919876543210"
	agent := uuid.New()
	lead := domain.NewLead(agency.ID, owner.ID, &phone, domain.SourceWhatsApp, time.Now())
	lead.AssignedTo = &agent
	if err := store.Leads().Create(ctx, lead, nil); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	svc := New(Deps{
		Repo:     store.Visits(),
		Leads:    store.Leads(),
		Agencies: identity,
		Facts:    eventlog.NewRecorder(store.Facts(), logger.Discard()),
	})
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) })
	return &fixture{store: store, svc: svc, owner: owner, agent: agent, lead: lead}
}

func (f *fixture) book(t *testing.T, date string, slot string) repository.Visit {
	t.Helper()
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	v, err := f.svc.Book(context.Background(), f.owner, f.lead.ID, BookInput{Date: day, TimeSlot: slot})
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	return v
}

func TestBookCreatesPendingVisitForLeadAgent(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.Book(context.Background(), f.owner, f.lead.ID, BookInput{
		Date:           time.Date(2026, 3, 7, 15, 30, 0, 0, time.UTC),
		TimeSlot:       " Evening ",
		FamilyComing:   true,
		PickupRequired: true,
		Notes:          "  wants a corner flat ",
	})
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if v.Status != repository.StatusPending || v.TimeSlot != repository.SlotEvening {
		t.Fatalf("expected pending evening visit, got %s %s", v.Status, v.TimeSlot)
	}
	if v.AssignedAgentID == nil || *v.AssignedAgentID != f.agent {
		t.Fatalf("expected visit assigned to %s, got %v", f.agent, v.AssignedAgentID)
	}
	if v.Source != DefaultSource || v.Notes != "wants a corner flat" || !v.FamilyComing || !v.PickupRequired {
		t.Fatalf("unexpected visit %+v", v)
	}
	if got := v.Date.Format(time.DateOnly); got != "2026-03-07" {
		t.Fatalf("expected date 2026-03-07, got %s", got)
	}

	facts := f.store.Facts().OfType(eventrepo.TypeVisitBooked)
	if len(facts) != 1 || facts[0].LeadID == nil || *facts[0].LeadID != f.lead.ID {
		t.Fatalf("expected one visit_booked fact for the lead, got %+v", facts)
	}
}

func TestBookRejectsUnknownSlot(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Book(context.Background(), f.owner, f.lead.ID, BookInput{Date: time.Now(), TimeSlot: "night"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBookUnknownLeadIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Book(context.Background(), f.owner, uuid.New(), BookInput{Date: time.Now(), TimeSlot: "morning"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByLeadNewestDateFirst(t *testing.T) {
	f := newFixture(t)
	f.book(t, "2026-03-02", "morning")
	f.book(t, "2026-03-09", "afternoon")

	visits, err := f.svc.ListByLead(context.Background(), f.owner, f.lead.ID)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if len(visits) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(visits))
	}
	if visits[0].Date.Format(time.DateOnly) != "2026-03-09" {
		t.Fatalf("expected latest visit first, got %s", visits[0].Date.Format(time.DateOnly))
	}
}

func TestOtherAgencyCannotSeeVisits(t *testing.T) {
	f := newFixture(t)
	v := f.book(t, "2026-03-02", "morning")

	other := identityrepo.User{ID: uuid.New(), Name: "Rahul", Email: "rahul@example.com", Role: identityrepo.RoleOwner, IsActive: true}
	if err := f.store.Users().CreateUser(context.Background(), other); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if _, err := f.svc.ListByLead(context.Background(), other, f.lead.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found listing, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), other, v.ID, "confirmed"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found update, got %v", err)
	}
}

func TestUpdateStatusStopsAtFinalStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.book(t, "2026-03-02", "morning")

	got, err := f.svc.UpdateStatus(ctx, f.owner, v.ID, "confirmed")
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if got.Status != repository.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
	if _, err := f.svc.UpdateStatus(ctx, f.owner, v.ID, "completed"); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if _, err := f.svc.UpdateStatus(ctx, f.owner, v.ID, "cancelled"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict after completion, got %v", err)
	}
	if n := len(f.store.Facts().OfType(eventrepo.TypeVisitUpdated)); n != 2 {
		t.Fatalf("expected 2 visit_updated facts, got %d", n)
	}
}

func TestUpdateStatusCannotReturnToPending(t *testing.T) {
	f := newFixture(t)
	v := f.book(t, "2026-03-02", "morning")
	if _, err := f.svc.UpdateStatus(context.Background(), f.owner, v.ID, "confirmed"); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), f.owner, v.ID, "pending"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
