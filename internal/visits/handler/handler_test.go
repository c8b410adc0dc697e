package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow_backend/internal/eventlog"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/identity/credcrypto"
	identityrepo "leadflow_backend/internal/identity/repository"
	identityservice "leadflow_backend/internal/identity/service"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/storage/memory"
	"leadflow_backend/internal/visits"
	"leadflow_backend/internal/visits/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const unexpectedErrMsg = "unexpected error: %v"

type fixture struct {
	engine *gin.Engine
	owner  identityrepo.User
	lead   domain.Lead
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
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
	lead := domain.NewLead(agency.ID, owner.ID, &phone, domain.SourceWhatsApp, time.Now())
	lead.AssignedTo = &owner.ID
	if err := store.Leads().Create(ctx, lead, nil); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	module := visits.NewModule(visits.Deps{
		Repo:      store.Visits(),
		Leads:     store.Leads(),
		Identity:  identity,
		Facts:     eventlog.NewRecorder(store.Facts(), logger.Discard()),
		Validator: validator.New(),
	})

	engine := gin.New()
	v1 := engine.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(func(c *gin.Context) {
		if raw := c.GetHeader("X-Test-User"); raw != "" {
			c.Set(httpkit.ContextUserIDKey, uuid.MustParse(raw))
		}
		c.Next()
	})
	module.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: v1, Protected: protected})
	return &fixture{engine: engine, owner: owner, lead: lead}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			t.Fatalf(unexpectedErrMsg, err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", f.owner.ID.String())
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestBookAndListVisits(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/leads/" + f.lead.ID.String() + "/visits"

	rec := f.do(t, http.MethodPost, path, map[string]any{
		"date":         "2026-03-07",
		"timeSlot":     "morning",
		"familyComing": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	booked := decode[transport.VisitResponse](t, rec)
	if booked.Status != "pending" || booked.Date != "2026-03-07" || !booked.FamilyComing || booked.Source != "whatsapp" {
		t.Fatalf("unexpected visit %+v", booked)
	}
	if booked.AssignedAgentID == nil || *booked.AssignedAgentID != f.owner.ID {
		t.Fatalf("expected visit assigned to the lead's agent, got %v", booked.AssignedAgentID)
	}

	rec = f.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[transport.VisitListResponse](t, rec)
	if len(list.Visits) != 1 || list.Visits[0].ID != booked.ID {
		t.Fatalf("expected the booked visit, got %+v", list.Visits)
	}

	rec = f.do(t, http.MethodPatch, "/api/v1/visits/"+booked.ID.String()+"/status", map[string]string{"status": "confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[transport.VisitResponse](t, rec); got.Status != "confirmed" {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
}

func TestBookValidatesRequest(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/leads/" + f.lead.ID.String() + "/visits"

	rec := f.do(t, http.MethodPost, path, map[string]any{"date": "07/03/2026", "timeSlot": "night"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[httpkit.ErrorResponse](t, rec)
	details, ok := body.Details.(map[string]any)
	if !ok || details["date"] == nil || details["timeSlot"] == nil {
		t.Fatalf("expected date and timeSlot errors, got %+v", body.Details)
	}
}

func TestBookUnknownLeadIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/leads/"+uuid.NewString()+"/visits", map[string]any{
		"date":     "2026-03-07",
		"timeSlot": "evening",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
