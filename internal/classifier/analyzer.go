package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/metrics"
)

// ErrMalformedVerdict is returned when the model output is not a JSON object.
var ErrMalformedVerdict = errors.New("classifier returned malformed verdict")

const analyzeSystemPrompt = `You are an assistant for real estate sales teams in India.
Buyers are mostly middle-class and upper-middle-class families in cities like Jaipur, Gurugram and Pune.
You analyse WhatsApp messages from property leads and return ONLY a valid JSON object. No extra text.`

const analyzeInstructions = `Infer the lead's intent and details as much as possible.
They may use Hinglish, short forms or spelling mistakes.

Return a JSON object with exactly these fields:
{
  "qualificationLevel": "hot" | "warm" | "cold",
  "budget": string | null,
  "timeline": string | null,
  "useCase": string | null,
  "aiIntent": string | null,
  "aiUrgency": "low" | "medium" | "high" | null,
  "aiNotes": string | null,
  "aiTags": string[] | null,
  "score": number | null,
  "willRespondScore": number | null,
  "willBuyScore": number | null,
  "priorityLevel": "low" | "medium" | "high",
  "engagementNotes": string | null,
  "isFake": boolean,
  "fakeReason": string | null
}

Guidelines:
- "hot": clear budget, location and a timeline within 0-3 months with strong intent to visit or buy.
- "warm": some intent but not urgent, or exploring within 3-6 months.
- "cold": vague, only checking price, or no timeline.
- isFake is true for gibberish, abuse, spam, brokers selling their own services, or messages not about property.
- Scores are 0-100. Mentions of family, schools, safe areas or metro raise willBuyScore.`

// Analyzer turns a lead message into a verdict.
type Analyzer struct {
	gen     Generator
	metrics *metrics.Metrics
}

func NewAnalyzer(gen Generator, m *metrics.Metrics) *Analyzer {
	return &Analyzer{gen: gen, metrics: m}
}

// Analyze returns nil without calling the model for blank text.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*domain.Verdict, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	started := time.Now()
	raw, err := a.gen.Generate(ctx, Prompt{
		System:      analyzeSystemPrompt,
		User:        "WhatsApp message from lead:\n\n" + text + "\n\n" + analyzeInstructions,
		JSON:        true,
		Temperature: 0.25,
		MaxTokens:   512,
	})
	if err != nil {
		a.metrics.ObserveClassifier("analyze", started, err)
		return nil, fmt.Errorf("analyze lead: %w", err)
	}

	verdict, err := ParseVerdict(raw)
	a.metrics.ObserveClassifier("analyze", started, err)
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

// ParseVerdict decodes model output leniently. Code fences and text around
// the JSON object are ignored, numbers may arrive as strings, tags as a
// comma separated string, and "urgency"/"intent" are accepted as aliases.
// Unknown enum values are dropped rather than failing the whole verdict.
func ParseVerdict(raw string) (*domain.Verdict, error) {
	obj := extractObject(raw)
	if obj == "" {
		return nil, ErrMalformedVerdict
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}

	v := &domain.Verdict{
		Budget:           str(m, "budget"),
		Timeline:         str(m, "timeline"),
		UseCase:          str(m, "useCase"),
		AIIntent:         str(m, "aiIntent", "intent"),
		AIUrgency:        lowerEnum(str(m, "aiUrgency", "urgency"), "low", "medium", "high"),
		AINotes:          str(m, "aiNotes"),
		AITags:           tags(m["aiTags"]),
		Score:            score(m["score"]),
		WillRespondScore: score(m["willRespondScore"]),
		WillBuyScore:     score(m["willBuyScore"]),
		EngagementNotes:  str(m, "engagementNotes"),
		IsFake:           boolean(m["isFake"]),
		FakeReason:       str(m, "fakeReason"),
	}
	if level := lowerEnum(str(m, "qualificationLevel"), "hot", "warm", "cold"); level != nil {
		l := domain.QualificationLevel(*level)
		v.QualificationLevel = &l
	}
	if priority := lowerEnum(str(m, "priorityLevel"), "low", "medium", "high"); priority != nil {
		p := domain.Priority(*priority)
		v.PriorityLevel = &p
	}
	return v, nil
}

func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func str(m map[string]any, keys ...string) *string {
	for _, key := range keys {
		s, ok := m[key].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		return &s
	}
	return nil
}

func lowerEnum(s *string, allowed ...string) *string {
	if s == nil {
		return nil
	}
	lower := strings.ToLower(*s)
	for _, a := range allowed {
		if lower == a {
			return &lower
		}
	}
	return nil
}

func score(v any) *int {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	out := domain.ClampScore(int(math.Round(math.Max(-1, math.Min(f, 101)))))
	return &out
}

func boolean(v any) *bool {
	switch b := v.(type) {
	case bool:
		return &b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

func tags(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(t, ",")
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
