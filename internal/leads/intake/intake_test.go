package intake

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/eventlog"
	eventrepo "leadflow_backend/internal/eventlog/repository"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/lock"
	"leadflow_backend/internal/leads/pipeline"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/leads/resolver"
	"leadflow_backend/internal/storage/memory"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const unexpectedErrMsg = "unexpected error: %v"

func ptr[T any](v T) *T { return &v }

type agencies struct {
	users *memory.Users
}

func (a agencies) EnsureAgency(ctx context.Context, u identityrepo.User) (identityrepo.Agency, error) {
	return a.users.EnsureAgency(ctx, u.ID, u.Name+"'s Agency", time.Now())
}

type fakeClassifier struct {
	verdict *domain.Verdict
	err     error
	calls   int
}

func (c *fakeClassifier) Analyze(context.Context, string) (*domain.Verdict, error) {
	c.calls++
	return c.verdict, c.err
}

type fakeResponder struct {
	reply   string
	err     error
	history []domain.Message
}

func (r *fakeResponder) Reply(_ context.Context, _ domain.Lead, history []domain.Message) (string, error) {
	r.history = history
	return r.reply, r.err
}

type sent struct {
	to   string
	body string
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sent
	fail    bool
	uploads []string
	audios  []string
}

func (m *fakeMessenger) SendText(_ context.Context, _ whatsapp.Credentials, to, body string) whatsapp.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return whatsapp.Result{Error: "rate limited"}
	}
	m.sent = append(m.sent, sent{to: to, body: body})
	return whatsapp.Result{OK: true, MessageID: "wamid.1"}
}

func (m *fakeMessenger) SendAudio(_ context.Context, _ whatsapp.Credentials, to, mediaID string) whatsapp.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audios = append(m.audios, to+":"+mediaID)
	return whatsapp.Result{OK: true}
}

func (m *fakeMessenger) UploadAudio(_ context.Context, _ whatsapp.Credentials, r io.Reader, filename, mimeType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, filename+"|"+mimeType+"|"+string(data))
	return "media-1", nil
}

type fakeSpeaker struct {
	err    error
	spoken []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) (ports.Audio, error) {
	s.spoken = append(s.spoken, text)
	if s.err != nil {
		return ports.Audio{}, s.err
	}
	return ports.Audio{Data: []byte("OggS"), MIMEType: "audio/ogg", Filename: "reply.ogg"}, nil
}

type staticCreds struct{ ok bool }

func (c staticCreds) WhatsAppCredentials(identityrepo.User) (whatsapp.Credentials, bool) {
	if !c.ok {
		return whatsapp.Credentials{}, false
	}
	return whatsapp.Credentials{PhoneNumberID: "111", AccessToken: "token"}, true
}

type fixture struct {
	store      *memory.Store
	svc        *Service
	owner      identityrepo.User
	classifier *fakeClassifier
	responder  *fakeResponder
	messenger  *fakeMessenger
	speaker    *fakeSpeaker
}

type options struct {
	autoReply bool
	creds     bool
	voice     bool
}

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()
	store := memory.New()
	owner := identityrepo.User{ID: uuid.New(), Name: "Priya", Email: "priya@example.com", Role: identityrepo.RoleOwner, IsActive: true}
	if err := store.Users().CreateUser(context.Background(), owner); err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}

	tick := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}

	locker := lock.NewKeyedMutex()
	facts := eventlog.NewRecorder(store.Facts(), logger.Discard())
	res := resolver.New(resolver.Deps{
		Store:    store.Leads(),
		Agencies: agencies{users: store.Users()},
		Locker:   locker,
		Facts:    facts,
		Log:      logger.Discard(),
	})
	res.SetClock(clock)
	pipe := pipeline.New(store.Leads(), locker, facts, nil, nil)
	pipe.SetClock(clock)

	f := &fixture{
		store:      store,
		owner:      owner,
		classifier: &fakeClassifier{},
		responder:  &fakeResponder{reply: "Namaste! Which area are you looking in?"},
		messenger:  &fakeMessenger{},
		speaker:    &fakeSpeaker{},
	}
	var speaker ports.Speaker
	if opts.voice {
		speaker = f.speaker
	}
	f.svc = New(Deps{
		Resolver:     res,
		Pipeline:     pipe,
		Conversation: store.Leads(),
		Facts:        facts,
		Classifier:   f.classifier,
		Responder:    f.responder,
		Speaker:      speaker,
		Messenger:    f.messenger,
		Credentials:  staticCreds{ok: opts.creds},
		AutoReply:    opts.autoReply,
		Log:          logger.Discard(),
	})
	f.svc.SetClock(clock)
	return f
}

func inbound(text string) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{
		ID:            "wamid.in",
		PhoneNumberID: "111",
		From:          "919876543210",
		ProfileName:   "Ravi",
		Text:          text,
		ReceivedAt:    time.Unix(1_700_000_000, 0),
	}
}

func TestHandleInboundCreatesLeadAndRecordsMessage(t *testing.T) {
	f := newFixture(t, options{})
	ctx := context.Background()

	out, err := f.svc.HandleInbound(ctx, f.owner, inbound("Looking for a 3BHK"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !out.Created || out.Lead.Name == nil || *out.Lead.Name != "Ravi" || out.Lead.Source != domain.SourceWhatsApp {
		t.Fatalf("unexpected lead %+v", out.Lead)
	}
	if out.Replied {
		t.Fatalf("auto reply is disabled")
	}

	in := f.store.Facts().OfType(eventrepo.TypeWhatsAppIn)
	if len(in) != 1 || in[0].Source != eventrepo.SourceWebhook || in[0].Payload.Direction != eventrepo.DirectionInbound {
		t.Fatalf("expected one inbound message fact, got %+v", in)
	}
	if created := f.store.Facts().OfType(eventrepo.TypeLeadCreated); len(created) != 1 || created[0].Source != eventrepo.SourceWebhook {
		t.Fatalf("expected lead_created from webhook, got %+v", created)
	}

	again, err := f.svc.HandleInbound(ctx, f.owner, inbound("Budget is 80L"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if again.Created || again.Lead.ID != out.Lead.ID {
		t.Fatalf("second message must merge into %s", out.Lead.ID)
	}
	if f.classifier.calls != 2 {
		t.Fatalf("expected classifier per message, got %d", f.classifier.calls)
	}
}

func TestHandleInboundAppliesVerdict(t *testing.T) {
	f := newFixture(t, options{})
	hot := domain.QualificationHot
	f.classifier.verdict = &domain.Verdict{QualificationLevel: &hot, Budget: ptr("1.2 Cr")}

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("Need 4BHK in Gurugram, budget 1.2 Cr, buying this month"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if out.Lead.Stage != domain.StageHot || out.Lead.Budget == nil || *out.Lead.Budget != "1.2 Cr" {
		t.Fatalf("verdict not applied: %+v", out.Lead)
	}
	if changes := f.store.Facts().OfType(eventrepo.TypeStageChanged); len(changes) != 1 {
		t.Fatalf("expected one stage change, got %d", len(changes))
	}
}

func TestHandleInboundSurvivesClassifierFailure(t *testing.T) {
	f := newFixture(t, options{})
	f.classifier.err = errors.New("quota exceeded")

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("hello"))
	if err != nil {
		t.Fatalf("classifier failures must not fail intake: %v", err)
	}
	if out.Lead.Stage != domain.StageNew {
		t.Fatalf("stage must stay new, got %s", out.Lead.Stage)
	}
}

func TestHandleInboundAutoReplyMovesNewLeadToContacted(t *testing.T) {
	f := newFixture(t, options{autoReply: true, creds: true})
	ctx := context.Background()

	out, err := f.svc.HandleInbound(ctx, f.owner, inbound("Hi"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !out.Replied || out.Lead.Stage != domain.StageContacted {
		t.Fatalf("expected reply and contacted stage, got replied=%v stage=%s", out.Replied, out.Lead.Stage)
	}
	if len(f.messenger.sent) != 1 || f.messenger.sent[0].to != "919876543210" {
		t.Fatalf("unexpected sends %+v", f.messenger.sent)
	}
	if len(f.responder.history) != 1 || f.responder.history[0].Origin != domain.OriginLead {
		t.Fatalf("responder must see the inbound message, got %+v", f.responder.history)
	}

	msgs, _ := f.store.Leads().ListMessages(ctx, out.Lead.ID)
	if len(msgs) != 2 || msgs[1].Origin != domain.OriginBot {
		t.Fatalf("expected lead then bot message, got %+v", msgs)
	}
	if outAI := f.store.Facts().OfType(eventrepo.TypeWhatsAppOutAI); len(outAI) != 1 || outAI[0].Payload.Notes != "ai" {
		t.Fatalf("expected one whatsapp_out_ai fact, got %+v", outAI)
	}
}

func TestHandleInboundAutoReplyFailureKeepsStage(t *testing.T) {
	f := newFixture(t, options{autoReply: true, creds: true})
	f.messenger.fail = true
	ctx := context.Background()

	out, err := f.svc.HandleInbound(ctx, f.owner, inbound("Hi"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if out.Replied || out.Lead.Stage != domain.StageNew {
		t.Fatalf("failed send must not move the lead, got %s", out.Lead.Stage)
	}
	msgs, _ := f.store.Leads().ListMessages(ctx, out.Lead.ID)
	if len(msgs) != 1 {
		t.Fatalf("failed send must not store a bot message, got %d messages", len(msgs))
	}
	if n := len(f.store.Facts().OfType(eventrepo.TypeWhatsAppOutAI)); n != 0 {
		t.Fatalf("expected no outbound fact, got %d", n)
	}
}

func TestHandleInboundNoAutoReplyForFakeOrTerminalLeads(t *testing.T) {
	f := newFixture(t, options{autoReply: true, creds: true})
	f.classifier.verdict = &domain.Verdict{IsFake: ptr(true), FakeReason: ptr("spam")}

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("BUY FOLLOWERS CHEAP"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if out.Replied || len(f.messenger.sent) != 0 {
		t.Fatalf("fake leads must not get an auto reply")
	}
	if !out.Lead.IsFake || out.Lead.Stage != domain.StageLost {
		t.Fatalf("expected fake lost lead, got %+v", out.Lead)
	}
}

func TestHandleInboundNoAutoReplyWithoutCredentials(t *testing.T) {
	f := newFixture(t, options{autoReply: true})

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("Hi"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if out.Replied || len(f.messenger.sent) != 0 || out.Lead.Stage != domain.StageNew {
		t.Fatalf("no credentials means no reply, got %+v", out)
	}
}

func TestHandleInboundSendsVoiceNoteToHotLead(t *testing.T) {
	f := newFixture(t, options{autoReply: true, creds: true, voice: true})
	f.classifier.verdict = &domain.Verdict{QualificationLevel: ptr(domain.QualificationHot)}

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("3BHK Malviya Nagar, 90L, visit this Sunday"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !out.Replied || !out.VoiceSent {
		t.Fatalf("expected text reply and voice note, got replied=%v voice=%v", out.Replied, out.VoiceSent)
	}
	if len(f.speaker.spoken) != 1 || f.speaker.spoken[0] != f.responder.reply {
		t.Fatalf("voice note must speak the AI reply, got %v", f.speaker.spoken)
	}
	if len(f.messenger.uploads) != 1 || f.messenger.uploads[0] != "reply.ogg|audio/ogg|OggS" {
		t.Fatalf("unexpected uploads %v", f.messenger.uploads)
	}
	if len(f.messenger.audios) != 1 || f.messenger.audios[0] != "919876543210:media-1" {
		t.Fatalf("unexpected audio sends %v", f.messenger.audios)
	}

	var voice int
	for _, fact := range f.store.Facts().OfType(eventrepo.TypeWhatsAppOutAI) {
		if fact.Payload.Notes == "voice" {
			voice++
		}
	}
	if voice != 1 {
		t.Fatalf("expected one voice fact, got %d", voice)
	}
}

func TestHandleInboundSendsVoiceNoteForUrgentLead(t *testing.T) {
	f := newFixture(t, options{autoReply: true, creds: true, voice: true})
	f.classifier.verdict = &domain.Verdict{QualificationLevel: ptr(domain.QualificationWarm), AIUrgency: ptr("high")}

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("Need a flat urgently"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !out.VoiceSent || len(f.messenger.audios) != 1 {
		t.Fatalf("urgent leads get a voice note, got %+v", out)
	}
}

func TestHandleInboundSkipsVoiceNoteForColdLead(t *testing.T) {
	f := newFixture(t, options{autoReply: true, creds: true, voice: true})
	f.classifier.verdict = &domain.Verdict{QualificationLevel: ptr(domain.QualificationCold)}

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("price?"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !out.Replied || out.VoiceSent {
		t.Fatalf("expected a text reply only, got replied=%v voice=%v", out.Replied, out.VoiceSent)
	}
	if len(f.speaker.spoken) != 0 || len(f.messenger.audios) != 0 {
		t.Fatalf("cold leads must not get a voice note")
	}
}

func TestHandleInboundVoiceNoteFailureKeepsTextReply(t *testing.T) {
	f := newFixture(t, options{autoReply: true, creds: true, voice: true})
	f.classifier.verdict = &domain.Verdict{QualificationLevel: ptr(domain.QualificationHot)}
	f.speaker.err = errors.New("tts quota exceeded")

	out, err := f.svc.HandleInbound(context.Background(), f.owner, inbound("Ready to buy, 1 Cr"))
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !out.Replied || out.VoiceSent || len(f.messenger.uploads) != 0 {
		t.Fatalf("speech failure must only drop the voice note, got %+v", out)
	}
	if out.Lead.Stage != domain.StageHot {
		t.Fatalf("expected hot lead, got %s", out.Lead.Stage)
	}
}

func TestSubmitContactSendsWelcome(t *testing.T) {
	f := newFixture(t, options{creds: true})
	ctx := context.Background()

	out, err := f.svc.SubmitContact(ctx, f.owner, ContactForm{
		Name:    "Anita",
		Email:   "anita@example.com",
		Phone:   "98765 43210",
		Message: "Interested in a villa",
	})
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if !out.Created || out.Lead.Source != domain.SourceContactForm || out.Lead.Email == nil {
		t.Fatalf("unexpected lead %+v", out.Lead)
	}
	if !out.Replied || out.Lead.Stage != domain.StageContacted {
		t.Fatalf("welcome must be sent and move the lead, got %+v", out)
	}
	if len(f.messenger.sent) != 1 || !strings.HasPrefix(f.messenger.sent[0].body, "Hi Anita!") || !strings.HasSuffix(f.messenger.sent[0].body, "- Priya") {
		t.Fatalf("unexpected welcome %+v", f.messenger.sent)
	}
	created := f.store.Facts().OfType(eventrepo.TypeLeadCreated)
	if len(created) != 1 || created[0].Source != eventrepo.SourceWebForm {
		t.Fatalf("expected lead_created from the contact form, got %+v", created)
	}
	if outAI := f.store.Facts().OfType(eventrepo.TypeWhatsAppOutAI); len(outAI) != 1 || outAI[0].Payload.Notes != "welcome" {
		t.Fatalf("expected welcome fact, got %+v", outAI)
	}
}

func TestSubmitContactWithoutPhoneSkipsWelcome(t *testing.T) {
	f := newFixture(t, options{creds: true})

	out, err := f.svc.SubmitContact(context.Background(), f.owner, ContactForm{Name: "Anita", Email: "anita@example.com"})
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if out.Replied || out.Lead.HasPhone() || len(f.messenger.sent) != 0 {
		t.Fatalf("web-only lead must not be messaged, got %+v", out)
	}
	if f.classifier.calls != 0 {
		t.Fatalf("blank message must not be classified")
	}
}

func TestWelcomeText(t *testing.T) {
	if got := welcomeText("", ""); !strings.HasPrefix(got, "Hi! Thanks") || strings.Contains(got, "\n\n- ") {
		t.Fatalf("unexpected anonymous welcome %q", got)
	}
}
