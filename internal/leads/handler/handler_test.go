package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"leadflow_backend/internal/eventlog"
	eventrepo "leadflow_backend/internal/eventlog/repository"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/identity/credcrypto"
	identityrepo "leadflow_backend/internal/identity/repository"
	identityservice "leadflow_backend/internal/identity/service"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/lock"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/internal/storage/memory"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const unexpectedErrMsg = "unexpected error: %v"

type fakeMessenger struct {
	texts  []string
	audios []string
	fail   bool
}

func (m *fakeMessenger) SendText(_ context.Context, _ whatsapp.Credentials, _ string, body string) whatsapp.Result {
	if m.fail {
		return whatsapp.Result{Error: "(#131047) Re-engagement message"}
	}
	m.texts = append(m.texts, body)
	return whatsapp.Result{OK: true}
}

func (m *fakeMessenger) SendAudio(_ context.Context, _ whatsapp.Credentials, _ string, mediaID string) whatsapp.Result {
	m.audios = append(m.audios, mediaID)
	return whatsapp.Result{OK: true}
}

func (m *fakeMessenger) UploadAudio(_ context.Context, _ whatsapp.Credentials, r io.Reader, _ string, _ string) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return "media-42", nil
}

type fakeCoach struct {
	err   error
	leads []uuid.UUID
}

func (c *fakeCoach) Advise(_ context.Context, lead domain.Lead) (domain.Advice, error) {
	c.leads = append(c.leads, lead.ID)
	if c.err != nil {
		return domain.Advice{}, c.err
	}
	return domain.Advice{
		SuggestedReply: "Sir, Sunday ko site visit karein?",
		ClosingTip:     "Offer two slots.",
		Objections:     []domain.Objection{{Label: "not now", Reply: "Koi baat nahi, next week?"}},
	}, nil
}

type fixture struct {
	engine    *gin.Engine
	store     *memory.Store
	owner     identityrepo.User
	messenger *fakeMessenger
	coach     *fakeCoach
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
	if err := identity.ConnectWhatsApp(ctx, owner.ID, "111", "token"); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	messenger := &fakeMessenger{}
	coach := &fakeCoach{}
	module := leads.NewModule(leads.Deps{
		Store:     store.Leads(),
		Identity:  identity,
		Agents:    store.Users(),
		Locker:    lock.NewKeyedMutex(),
		Facts:     eventlog.NewRecorder(store.Facts(), logger.Discard()),
		Messenger: messenger,
		Coach:     coach,
		Validator: validator.New(),
		Log:       logger.Discard(),
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

	return &fixture{engine: engine, store: store, owner: owner, messenger: messenger, coach: coach}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf(unexpectedErrMsg, err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
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

func (f *fixture) submitContact(t *testing.T) transport.ContactResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/leads/contact", map[string]string{
		"name":    "Anita",
		"phone":   "98765 43210",
		"message": "Interested in a 2BHK",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[transport.ContactResponse](t, rec)
}

func TestContactCreatesLeadAndSendsWelcome(t *testing.T) {
	f := newFixture(t)

	resp := f.submitContact(t)
	if !resp.Created || !resp.Welcome || resp.Lead.Stage != string(domain.StageContacted) {
		t.Fatalf("unexpected contact response %+v", resp)
	}
	if len(f.messenger.texts) != 1 || !strings.HasPrefix(f.messenger.texts[0], "Hi Anita!") {
		t.Fatalf("unexpected welcome %v", f.messenger.texts)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/leads", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list := decode[transport.LeadListResponse](t, rec)
	if list.Total != 1 || list.Items[0].ID != resp.Lead.ID {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestContactRequiresPhoneOrEmail(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/leads/contact", map[string]string{"name": "Anita"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/leads", nil)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestReplyAppendsMessageAndRecordsFact(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead

	rec := f.do(t, http.MethodPost, "/api/v1/leads/"+lead.ID.String()+"/reply", map[string]string{"message": "Site visit on Sunday?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/leads/"+lead.ID.String()+"/messages", nil)
	conv := decode[transport.ConversationResponse](t, rec)
	last := conv.Messages[len(conv.Messages)-1]
	if last.From != string(domain.OriginAgent) || last.Text != "Site visit on Sunday?" {
		t.Fatalf("unexpected last message %+v", last)
	}
	if n := len(f.store.Facts().OfType(eventrepo.TypeWhatsAppOutAgent)); n != 1 {
		t.Fatalf("expected one whatsapp_out_agent fact, got %d", n)
	}
}

func TestReplyFailureReturnsUnavailable(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead
	f.messenger.fail = true

	rec := f.do(t, http.MethodPost, "/api/v1/leads/"+lead.ID.String()+"/reply", map[string]string{"message": "Hello"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if n := len(f.store.Facts().OfType(eventrepo.TypeWhatsAppOutAgent)); n != 0 {
		t.Fatalf("failed send must not be recorded, got %d facts", n)
	}
}

func TestVoiceNoteUploadsAndSends(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="audio"; filename="note.ogg"`},
		"Content-Type":        {"audio/ogg"},
	})
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	_, _ = part.Write([]byte("OggS fake audio"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/leads/"+lead.ID.String()+"/voice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", f.owner.ID.String())
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.messenger.audios) != 1 || f.messenger.audios[0] != "media-42" {
		t.Fatalf("unexpected audio sends %v", f.messenger.audios)
	}
}

func TestPipelineMoveAndBoard(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead

	rec := f.do(t, http.MethodPost, "/api/v1/pipeline/move", map[string]string{"leadId": lead.ID.String(), "stage": "closed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	moved := decode[transport.LeadResponse](t, rec)
	if !moved.IsConverted || moved.ConvertedAt == nil {
		t.Fatalf("closing must convert the lead, got %+v", moved)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/pipeline", nil)
	board := decode[transport.BoardResponse](t, rec)
	if len(board.Columns) != len(domain.PipelineStages) {
		t.Fatalf("expected %d columns, got %d", len(domain.PipelineStages), len(board.Columns))
	}
	for _, col := range board.Columns {
		want := 0
		if col.Stage == string(domain.StageClosed) {
			want = 1
		}
		if col.Total != want {
			t.Fatalf("column %s: expected %d leads, got %d", col.Stage, want, col.Total)
		}
	}
}

func TestPipelineMoveRejectsUnknownStage(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead

	rec := f.do(t, http.MethodPost, "/api/v1/pipeline/move", map[string]string{"leadId": lead.ID.String(), "stage": "won"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLeadsOfOtherAgenciesAreHidden(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead

	other := identityrepo.User{ID: uuid.New(), Name: "Rahul", Email: "rahul@example.com", Role: identityrepo.RoleOwner, IsActive: true, CreatedAt: time.Now()}
	if err := f.store.Users().CreateUser(context.Background(), other); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	rec := f.doAs(t, other.ID, http.MethodGet, "/api/v1/leads/"+lead.ID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func (f *fixture) doAs(t *testing.T, user uuid.UUID, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Test-User", user.String())
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestAssignSelfAndAssignedOnly(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead
	if lead.AssignedTo == nil || *lead.AssignedTo != f.owner.ID {
		t.Fatalf("the only assignable user should get the lead, got %v", lead.AssignedTo)
	}

	ctx := context.Background()
	agency, err := f.store.Users().EnsureAgency(ctx, f.owner.ID, "Priya's Agency", time.Now())
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	agent := identityrepo.User{ID: uuid.New(), AgencyID: &agency.ID, Name: "Vikram", Email: "vikram@example.com", Role: identityrepo.RoleAgent, IsActive: true}
	if err := f.store.Users().CreateUser(ctx, agent); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	rec := f.doAs(t, agent.ID, http.MethodGet, "/api/v1/leads?assignedOnly=true")
	if list := decode[transport.LeadListResponse](t, rec); list.Total != 0 {
		t.Fatalf("expected no assigned leads yet, got %d", list.Total)
	}

	rec = f.doAs(t, agent.ID, http.MethodPost, "/api/v1/leads/"+lead.ID.String()+"/assign-self")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.doAs(t, agent.ID, http.MethodGet, "/api/v1/leads?assignedOnly=true")
	if list := decode[transport.LeadListResponse](t, rec); list.Total != 1 {
		t.Fatalf("expected the assigned lead, got %d", list.Total)
	}
	rec = f.doAs(t, f.owner.ID, http.MethodGet, "/api/v1/leads?assignedOnly=true")
	if list := decode[transport.LeadListResponse](t, rec); list.Total != 0 {
		t.Fatalf("owner lost the lead, got %d", list.Total)
	}
}

func TestCoachReturnsAdvice(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead

	rec := f.do(t, http.MethodGet, "/api/v1/leads/"+lead.ID.String()+"/coach", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[transport.CoachResponse](t, rec)
	if !resp.Available || resp.Advice == nil || resp.Advice.SuggestedReply != "Sir, Sunday ko site visit karein?" {
		t.Fatalf("unexpected coach response %+v", resp)
	}
	if len(resp.Advice.ObjectionHandling) != 1 || resp.Advice.ObjectionHandling[0].Label != "not now" {
		t.Fatalf("unexpected objections %+v", resp.Advice.ObjectionHandling)
	}
	if len(f.coach.leads) != 1 || f.coach.leads[0] != lead.ID {
		t.Fatalf("coach must see the requested lead, got %v", f.coach.leads)
	}
}

func TestCoachUnavailableIsSoft(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead
	f.coach.err = errors.New("quota exceeded")

	rec := f.do(t, http.MethodGet, "/api/v1/leads/"+lead.ID.String()+"/coach", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[transport.CoachResponse](t, rec)
	if resp.Available || resp.Advice != nil || resp.Message == "" {
		t.Fatalf("expected not available, got %+v", resp)
	}
}

func TestCoachHidesOtherAgencies(t *testing.T) {
	f := newFixture(t)
	lead := f.submitContact(t).Lead

	other := identityrepo.User{ID: uuid.New(), Name: "Rahul", Email: "rahul@example.com", Role: identityrepo.RoleOwner, IsActive: true, CreatedAt: time.Now()}
	if err := f.store.Users().CreateUser(context.Background(), other); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	rec := f.doAs(t, other.ID, http.MethodGet, "/api/v1/leads/"+lead.ID.String()+"/coach")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(f.coach.leads) != 0 {
		t.Fatalf("coach must not run for foreign leads")
	}
}
