package domain

import "strings"

// Verdict is the structured output of the lead classifier. Nil or blank
// fields were not populated and never overwrite existing lead data.
type Verdict struct {
	QualificationLevel *QualificationLevel
	Budget             *string
	Timeline           *string
	UseCase            *string
	AIIntent           *string
	AIUrgency          *string
	AINotes            *string
	AITags             []string
	Score              *int
	WillRespondScore   *int
	WillBuyScore       *int
	PriorityLevel      *Priority
	EngagementNotes    *string
	IsFake             *bool
	FakeReason         *string
}

// VerdictOutcome summarizes what ApplyVerdict changed.
type VerdictOutcome struct {
	UpdatedFields []string
	StageChange   *StageChange
	MarkedLost    bool
}

// Changed reports whether the lead was modified at all.
func (o VerdictOutcome) Changed() bool {
	return len(o.UpdatedFields) > 0 || o.StageChange != nil
}

// ApplyVerdict merges the populated verdict fields into lead and then
// applies the classification stage rules in priority order:
//
//  1. a fake lead that is not terminal moves to lost
//  2. a hot verdict moves a non-terminal lead to hot
//  3. a warm verdict moves a new lead to qualified
//
// Closed and lost are never left through classification.
func ApplyVerdict(lead *Lead, v Verdict) VerdictOutcome {
	var out VerdictOutcome
	mark := func(field string) { out.UpdatedFields = append(out.UpdatedFields, field) }

	if v.QualificationLevel != nil && *v.QualificationLevel != "" && *v.QualificationLevel != lead.QualificationLevel {
		lead.QualificationLevel = *v.QualificationLevel
		mark("qualificationLevel")
	}
	mergeString(&lead.Budget, v.Budget, "budget", mark)
	mergeString(&lead.Timeline, v.Timeline, "timeline", mark)
	mergeString(&lead.UseCase, v.UseCase, "useCase", mark)
	mergeString(&lead.AIIntent, v.AIIntent, "aiIntent", mark)
	mergeString(&lead.AIUrgency, v.AIUrgency, "aiUrgency", mark)
	mergeString(&lead.AINotes, v.AINotes, "aiNotes", mark)
	mergeString(&lead.EngagementNotes, v.EngagementNotes, "engagementNotes", mark)
	if len(v.AITags) > 0 && !equalTags(lead.AITags, v.AITags) {
		lead.AITags = append([]string(nil), v.AITags...)
		mark("aiTags")
	}
	mergeScore(&lead.Score, v.Score, "score", mark)
	mergeScore(&lead.WillRespondScore, v.WillRespondScore, "willRespondScore", mark)
	mergeScore(&lead.WillBuyScore, v.WillBuyScore, "willBuyScore", mark)
	if v.PriorityLevel != nil && *v.PriorityLevel != "" && (lead.PriorityLevel == nil || *lead.PriorityLevel != *v.PriorityLevel) {
		p := *v.PriorityLevel
		lead.PriorityLevel = &p
		mark("priorityLevel")
	}
	if v.IsFake != nil && *v.IsFake != lead.IsFake {
		lead.IsFake = *v.IsFake
		mark("isFake")
	}
	mergeString(&lead.FakeReason, v.FakeReason, "fakeReason", mark)

	from := lead.Stage
	var to Stage
	switch {
	case lead.IsFake:
		if CanTransition(from, StageLost, CauseClassification) {
			to = StageLost
			out.MarkedLost = true
		}
	case v.QualificationLevel != nil && *v.QualificationLevel == QualificationHot:
		if CanTransition(from, StageHot, CauseClassification) {
			to = StageHot
		}
	case v.QualificationLevel != nil && *v.QualificationLevel == QualificationWarm:
		if from == StageNew {
			to = StageQualified
		}
	}

	if to != "" {
		lead.Stage = to
		if to == StageLost {
			lead.IsConverted = false
			lead.ConvertedAt = nil
		}
		out.StageChange = &StageChange{From: from, To: to, Cause: CauseClassification}
	}

	return out
}

func mergeString(dst **string, src *string, field string, mark func(string)) {
	if src == nil {
		return
	}
	value := strings.TrimSpace(*src)
	if value == "" {
		return
	}
	if *dst != nil && **dst == value {
		return
	}
	*dst = &value
	mark(field)
}

func mergeScore(dst **int, src *int, field string, mark func(string)) {
	if src == nil {
		return
	}
	value := ClampScore(*src)
	if *dst != nil && **dst == value {
		return
	}
	*dst = &value
	mark(field)
}

// ClampScore bounds a score to [0, 100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
