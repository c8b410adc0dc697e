package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/logger"
)

const unexpectedErrMsg = "unexpected error: %v"

type scriptedGenerator struct {
	text    string
	err     error
	prompts []Prompt
}

func (g *scriptedGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	g.prompts = append(g.prompts, p)
	return g.text, g.err
}

func TestParseVerdictAcceptsFencedLenientJSON(t *testing.T) {
	raw := "```json\n" + `{
		"qualificationLevel": "HOT",
		"budget": "60L",
		"timeline": "null",
		"intent": "buying",
		"urgency": "High",
		"aiTags": "2BHK, jaipur, 2bhk",
		"score": "87.6",
		"willBuyScore": 140,
		"priorityLevel": "urgent",
		"isFake": "false"
	}` + "\n```"

	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if v.QualificationLevel == nil || *v.QualificationLevel != domain.QualificationHot {
		t.Fatalf("expected hot level, got %v", v.QualificationLevel)
	}
	if v.Budget == nil || *v.Budget != "60L" {
		t.Fatalf("expected budget 60L, got %v", v.Budget)
	}
	if v.Timeline != nil {
		t.Fatalf("expected literal null string to be dropped, got %q", *v.Timeline)
	}
	if v.AIIntent == nil || *v.AIIntent != "buying" {
		t.Fatalf("expected intent alias to be used, got %v", v.AIIntent)
	}
	if v.AIUrgency == nil || *v.AIUrgency != "high" {
		t.Fatalf("expected urgency alias to be normalized, got %v", v.AIUrgency)
	}
	if strings.Join(v.AITags, ",") != "2bhk,jaipur" {
		t.Fatalf("expected deduplicated tags, got %v", v.AITags)
	}
	if v.Score == nil || *v.Score != 88 {
		t.Fatalf("expected score 88, got %v", v.Score)
	}
	if v.WillBuyScore == nil || *v.WillBuyScore != 100 {
		t.Fatalf("expected clamped willBuyScore, got %v", v.WillBuyScore)
	}
	if v.PriorityLevel != nil {
		t.Fatalf("expected unknown priority to be dropped, got %v", *v.PriorityLevel)
	}
	if v.IsFake == nil || *v.IsFake {
		t.Fatalf("expected isFake false, got %v", v.IsFake)
	}
}

func TestParseVerdictRejectsNonJSON(t *testing.T) {
	if _, err := ParseVerdict("sorry, I cannot help with that"); !errors.Is(err, ErrMalformedVerdict) {
		t.Fatalf("expected ErrMalformedVerdict, got %v", err)
	}
	if _, err := ParseVerdict("{not json}"); !errors.Is(err, ErrMalformedVerdict) {
		t.Fatalf("expected ErrMalformedVerdict, got %v", err)
	}
}

func TestAnalyzeSkipsBlankText(t *testing.T) {
	gen := &scriptedGenerator{}
	v, err := NewAnalyzer(gen, nil).Analyze(context.Background(), "   ")
	if err != nil || v != nil {
		t.Fatalf("expected nil verdict without error, got %v, %v", v, err)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("expected no model call")
	}
}

func TestAnalyzeRequestsJSONAndWrapsErrors(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("quota exceeded")}
	_, err := NewAnalyzer(gen, nil).Analyze(context.Background(), "2bhk mansarovar budget 60 lakh")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
	if !gen.prompts[0].JSON || !strings.Contains(gen.prompts[0].User, "mansarovar") {
		t.Fatalf("unexpected prompt: %+v", gen.prompts[0])
	}
}

func TestReplyFallsBackOnModelError(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("timeout")}
	reply, err := NewResponder(gen, nil, logger.Discard()).Reply(context.Background(), domain.Lead{}, nil)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if reply != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", reply)
	}
}

func TestReplyPromptKeepsRecentHistory(t *testing.T) {
	history := make([]domain.Message, 0, 15)
	for i := 0; i < 15; i++ {
		history = append(history, domain.Message{Origin: domain.OriginLead, Body: "msg-" + string(rune('a'+i))})
	}
	gen := &scriptedGenerator{text: "Sir, weekend visit karein?"}

	reply, err := NewResponder(gen, nil, logger.Discard()).Reply(context.Background(), domain.Lead{}, history)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if reply != "Sir, weekend visit karein?" {
		t.Fatalf("unexpected reply %q", reply)
	}
	prompt := gen.prompts[0].User
	if strings.Contains(prompt, "msg-a") || !strings.Contains(prompt, "msg-o") {
		t.Fatalf("expected only the last %d messages in prompt:\n%s", historyLimit, prompt)
	}
}

func TestAdviseParsesCoaching(t *testing.T) {
	gen := &scriptedGenerator{text: "Here you go:\n" + `{
		"suggestedReply": " Sir, is weekend site visit karein? ",
		"closingTip": "Offer two visit slots.",
		"objectionHandling": [
			{"label": "too expensive", "reply": "EMI options hain, sir."},
			{"label": "", "reply": "dropped"}
		],
		"hotAlert": "Budget and timeline are clear",
		"fakeAlert": "null"
	}`}
	lead := domain.Lead{Stage: domain.StageHot, Budget: ptr("60L"), LastMessage: ptr("2bhk chahiye")}

	advice, err := NewCoach(gen, nil).Advise(context.Background(), lead)
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if advice.SuggestedReply != "Sir, is weekend site visit karein?" || advice.ClosingTip != "Offer two visit slots." {
		t.Fatalf("unexpected advice %+v", advice)
	}
	if len(advice.Objections) != 1 || advice.Objections[0].Label != "too expensive" {
		t.Fatalf("expected one usable objection, got %+v", advice.Objections)
	}
	if advice.HotAlert == nil || advice.FakeAlert != nil {
		t.Fatalf("unexpected alerts hot=%v fake=%v", advice.HotAlert, advice.FakeAlert)
	}

	prompt := gen.prompts[0]
	if !prompt.JSON || !strings.Contains(prompt.User, "2bhk chahiye") || !strings.Contains(prompt.User, "Budget: 60L") {
		t.Fatalf("unexpected prompt: %+v", prompt)
	}
}

func TestAdviseWrapsModelErrors(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("quota exceeded")}
	if _, err := NewCoach(gen, nil).Advise(context.Background(), domain.Lead{}); err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}

func TestParseAdviceRequiresSuggestedReply(t *testing.T) {
	if _, err := ParseAdvice(`{"closingTip": "call them"}`); !errors.Is(err, ErrMalformedAdvice) {
		t.Fatalf("expected ErrMalformedAdvice, got %v", err)
	}
	if _, err := ParseAdvice("no json here"); !errors.Is(err, ErrMalformedAdvice) {
		t.Fatalf("expected ErrMalformedAdvice, got %v", err)
	}
}

type fakeSynth struct {
	pcm  PCM
	err  error
	text string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (PCM, error) {
	f.text = text
	return f.pcm, f.err
}

type fakeTranscoder struct {
	got PCM
}

func (f *fakeTranscoder) Transcode(_ context.Context, pcm PCM) ([]byte, error) {
	f.got = pcm
	return []byte("OggS"), nil
}

func TestSpeakEncodesVoiceNote(t *testing.T) {
	synth := &fakeSynth{pcm: PCM{Data: []byte{1, 2, 3, 4}}}
	transcoder := &fakeTranscoder{}

	audio, err := NewSpeaker(synth, transcoder, nil).Speak(context.Background(), "Namaste sir")
	if err != nil {
		t.Fatalf(unexpectedErrMsg, err)
	}
	if audio.MIMEType != "audio/ogg" || string(audio.Data) != "OggS" || audio.Filename == "" {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if transcoder.got.SampleRate != 24000 {
		t.Fatalf("expected default sample rate, got %d", transcoder.got.SampleRate)
	}
	if !strings.HasSuffix(synth.text, "Namaste sir") {
		t.Fatalf("unexpected speech text %q", synth.text)
	}
}

func TestSpeakFailsOnSilentModel(t *testing.T) {
	transcoder := &fakeTranscoder{}
	if _, err := NewSpeaker(&fakeSynth{}, transcoder, nil).Speak(context.Background(), "hello"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if transcoder.got.Data != nil {
		t.Fatalf("transcoder must not run without audio")
	}
}

func TestSampleRate(t *testing.T) {
	cases := map[string]int{
		"audio/L16;codec=pcm;rate=16000": 16000,
		"audio/L16;codec=pcm":            24000,
		"":                               24000,
	}
	for in, want := range cases {
		if got := SampleRate(in); got != want {
			t.Fatalf("SampleRate(%q) = %d, want %d", in, got, want)
		}
	}
}

func ptr[T any](v T) *T { return &v }
