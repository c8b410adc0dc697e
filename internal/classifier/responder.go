package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/logger"
)

// FallbackReply is sent when the model cannot produce a reply.
const FallbackReply = "Thank you for your message, sir/ma'am. " +
	"Aapka requirement note kar liya, hamari team aapko best property options ke saath contact karegi."

// historyLimit bounds how many recent messages are shown to the model.
const historyLimit = 10

const replySystemPrompt = `You are a WhatsApp sales assistant for Indian real estate.
Audience: middle-class and upper-middle-class buyers and tenants in cities like Jaipur.
Language: Hinglish (simple Hindi mixed with English), clear and respectful.

Adapt the tone to the lead:
- Very serious leads (clear budget, location and timeline): be direct and propose a next step such as a visit or a call.
- Unsure or exploring leads: be soft and polite, help them clarify budget, area and BHK.
- Vague messages ("hi", "price?", "send details"): keep it very short and ask one clarifying question.

Rules:
- Reply in 1-3 short lines, WhatsApp style. No long paragraphs.
- Always end with a simple question about budget, location, BHK, timeline, a visit or a call.
- Never sound robotic.`

// Responder drafts automatic replies to leads.
type Responder struct {
	gen     Generator
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewResponder(gen Generator, m *metrics.Metrics, log *logger.Logger) *Responder {
	return &Responder{gen: gen, metrics: m, log: log}
}

// Reply never fails: model errors are logged and FallbackReply is returned.
func (r *Responder) Reply(ctx context.Context, lead domain.Lead, history []domain.Message) (string, error) {
	started := time.Now()
	text, err := r.gen.Generate(ctx, Prompt{
		System:      replySystemPrompt,
		User:        replyPrompt(lead, history),
		Temperature: 0.7,
		MaxTokens:   220,
	})
	r.metrics.ObserveClassifier("reply", started, err)
	if err != nil {
		r.log.CollaboratorFailure("classifier", "reply", err)
		return FallbackReply, nil
	}
	return text, nil
}

func replyPrompt(lead domain.Lead, history []domain.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lead: %s\n", lead.DisplayName())
	if lead.Budget != nil {
		fmt.Fprintf(&b, "Known budget: %s\n", *lead.Budget)
	}
	if lead.UseCase != nil {
		fmt.Fprintf(&b, "Looking for: %s\n", *lead.UseCase)
	}

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	b.WriteString("\nConversation so far:\n")
	for _, msg := range history {
		fmt.Fprintf(&b, "%s: %s\n", speaker(msg.Origin), msg.Body)
	}
	b.WriteString("\nWrite the next reply to the lead.")
	return b.String()
}

func speaker(origin domain.MessageOrigin) string {
	switch origin {
	case domain.OriginLead:
		return "Lead"
	case domain.OriginAgent:
		return "Agent"
	default:
		return "Assistant"
	}
}
