package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/metrics"
)

// ErrMalformedAdvice is returned when coaching output has no suggested reply.
var ErrMalformedAdvice = errors.New("coach returned malformed advice")

const coachSystemPrompt = `You are a WhatsApp sales coach for Indian real estate agencies.
You help human agents close more deals with short, clear messages in Hinglish (mix of Hindi and English).
Return ONLY a valid JSON object. No extra text.`

const coachInstructions = `Return a JSON object with exactly these fields:
{
  "suggestedReply": "short Hinglish reply the agent can send now (max 2 lines)",
  "closingTip": "how to move towards a visit or booking in 1-2 lines",
  "objectionHandling": [
    { "label": "too expensive", "reply": "..." },
    { "label": "not now", "reply": "..." }
  ],
  "hotAlert": null or short text if this is a HOT lead,
  "fakeAlert": null or short text if this looks like test, fake or junk
}

Rules:
- suggestedReply must be polite, sales-focused and ask one simple question.
- Keep every reply very short and WhatsApp friendly.`

// Coach produces next-step advice for agents.
type Coach struct {
	gen     Generator
	metrics *metrics.Metrics
}

func NewCoach(gen Generator, m *metrics.Metrics) *Coach {
	return &Coach{gen: gen, metrics: m}
}

// Advise asks the model for coaching on lead.
func (c *Coach) Advise(ctx context.Context, lead domain.Lead) (domain.Advice, error) {
	started := time.Now()
	raw, err := c.gen.Generate(ctx, Prompt{
		System:      coachSystemPrompt,
		User:        coachPrompt(lead) + "\n" + coachInstructions,
		JSON:        true,
		Temperature: 0.4,
		MaxTokens:   400,
	})
	if err != nil {
		c.metrics.ObserveClassifier("coach", started, err)
		return domain.Advice{}, fmt.Errorf("coach lead: %w", err)
	}

	advice, err := ParseAdvice(raw)
	c.metrics.ObserveClassifier("coach", started, err)
	return advice, err
}

func coachPrompt(lead domain.Lead) string {
	var b strings.Builder
	b.WriteString("Lead context:\n")
	fmt.Fprintf(&b, "- Latest message: %q\n", deref(lead.LastMessage))
	fmt.Fprintf(&b, "- Score: %s\n", intOrNull(lead.Score))
	fmt.Fprintf(&b, "- Intent: %s\n", orNull(lead.AIIntent))
	fmt.Fprintf(&b, "- Urgency: %s\n", orNull(lead.AIUrgency))
	fmt.Fprintf(&b, "- Budget: %s\n", orNull(lead.Budget))
	fmt.Fprintf(&b, "- Stage: %s\n", lead.Stage)
	fmt.Fprintf(&b, "- Fake flag: %t\n", lead.IsFake)
	return b.String()
}

type adviceJSON struct {
	SuggestedReply    string `json:"suggestedReply"`
	ClosingTip        string `json:"closingTip"`
	ObjectionHandling []struct {
		Label string `json:"label"`
		Reply string `json:"reply"`
	} `json:"objectionHandling"`
	HotAlert  *string `json:"hotAlert"`
	FakeAlert *string `json:"fakeAlert"`
}

// ParseAdvice decodes coaching output. Text around the JSON object is
// ignored and blank objections are dropped.
func ParseAdvice(raw string) (domain.Advice, error) {
	obj := extractObject(raw)
	if obj == "" {
		return domain.Advice{}, ErrMalformedAdvice
	}
	var a adviceJSON
	if err := json.Unmarshal([]byte(obj), &a); err != nil {
		return domain.Advice{}, fmt.Errorf("%w: %v", ErrMalformedAdvice, err)
	}
	if strings.TrimSpace(a.SuggestedReply) == "" {
		return domain.Advice{}, ErrMalformedAdvice
	}

	advice := domain.Advice{
		SuggestedReply: strings.TrimSpace(a.SuggestedReply),
		ClosingTip:     strings.TrimSpace(a.ClosingTip),
		HotAlert:       alert(a.HotAlert),
		FakeAlert:      alert(a.FakeAlert),
	}
	for _, o := range a.ObjectionHandling {
		label, reply := strings.TrimSpace(o.Label), strings.TrimSpace(o.Reply)
		if label == "" || reply == "" {
			continue
		}
		advice.Objections = append(advice.Objections, domain.Objection{Label: label, Reply: reply})
	}
	return advice, nil
}

func alert(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orNull(s *string) string {
	if s == nil || *s == "" {
		return "null"
	}
	return *s
}

func intOrNull(n *int) string {
	if n == nil {
		return "null"
	}
	return fmt.Sprint(*n)
}
