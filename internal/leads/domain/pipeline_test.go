package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

const (
	unexpectedStageMsg  = "expected stage %q, got %q"
	unexpectedChangeMsg = "expected change %s->%s, got %+v"
)

func ptr[T any](v T) *T { return &v }

func newTestLead(stage Stage) Lead {
	lead := NewLead(uuid.New(), uuid.New(), ptr("919876543210"), SourceWhatsApp, time.Unix(0, 0))
	lead.Stage = stage
	return lead
}

func TestCanTransitionEdges(t *testing.T) {
	allowed := map[[2]Stage]bool{
		{StageNew, StageContacted}:  true,
		{StageNew, StageQualified}:  true,
		{StageNew, StageHot}:        true,
		{StageContacted, StageHot}:  true,
		{StageQualified, StageHot}:  true,
		{StageNew, StageLost}:       true,
		{StageContacted, StageLost}: true,
		{StageQualified, StageLost}: true,
		{StageHot, StageLost}:       true,
	}

	for _, from := range PipelineStages {
		for _, to := range PipelineStages {
			got := CanTransition(from, to, CauseClassification)
			if got != allowed[[2]Stage{from, to}] {
				t.Fatalf("classification %s->%s: got %v", from, to, got)
			}
		}
	}
}

func TestCanTransitionManualOnlyEdges(t *testing.T) {
	for _, from := range PipelineStages {
		if from == StageClosed {
			continue
		}
		if !CanTransition(from, StageClosed, CauseManual) {
			t.Fatalf("manual %s->closed should be allowed", from)
		}
		if CanTransition(from, StageClosed, CauseClassification) {
			t.Fatalf("classification %s->closed must not be allowed", from)
		}
	}
	if !CanTransition(StageClosed, StageLost, CauseManual) {
		t.Fatalf("manual closed->lost should be allowed")
	}
	if CanTransition(StageLost, StageHot, CauseManual) {
		t.Fatalf("lost->hot must not be allowed")
	}
	if CanTransition(StageHot, StageNew, CauseManual) {
		t.Fatalf("nothing moves back to new")
	}
}

func TestApplyVerdictHotThenFake(t *testing.T) {
	lead := newTestLead(StageNew)

	out := ApplyVerdict(&lead, Verdict{QualificationLevel: ptr(QualificationHot), IsFake: ptr(false)})
	if out.StageChange == nil || out.StageChange.From != StageNew || out.StageChange.To != StageHot {
		t.Fatalf(unexpectedChangeMsg, StageNew, StageHot, out.StageChange)
	}

	out = ApplyVerdict(&lead, Verdict{IsFake: ptr(true), FakeReason: ptr("spam")})
	if out.StageChange == nil || out.StageChange.From != StageHot || out.StageChange.To != StageLost {
		t.Fatalf(unexpectedChangeMsg, StageHot, StageLost, out.StageChange)
	}
	if !out.MarkedLost {
		t.Fatalf("expected MarkedLost")
	}

	out = ApplyVerdict(&lead, Verdict{IsFake: ptr(true), QualificationLevel: ptr(QualificationHot)})
	if out.StageChange != nil {
		t.Fatalf("fraud rule must apply once, got %+v", out.StageChange)
	}
	if lead.Stage != StageLost {
		t.Fatalf(unexpectedStageMsg, StageLost, lead.Stage)
	}
}

func TestApplyVerdictWarmOnlyQualifiesNewLeads(t *testing.T) {
	lead := newTestLead(StageNew)
	out := ApplyVerdict(&lead, Verdict{QualificationLevel: ptr(QualificationWarm)})
	if out.StageChange == nil || out.StageChange.To != StageQualified {
		t.Fatalf(unexpectedChangeMsg, StageNew, StageQualified, out.StageChange)
	}

	contacted := newTestLead(StageContacted)
	out = ApplyVerdict(&contacted, Verdict{QualificationLevel: ptr(QualificationWarm)})
	if out.StageChange != nil {
		t.Fatalf("warm verdict must not move a contacted lead, got %+v", out.StageChange)
	}
	if contacted.QualificationLevel != QualificationWarm {
		t.Fatalf("qualification level should still merge")
	}
}

func TestApplyVerdictNeverLeavesTerminalStages(t *testing.T) {
	verdicts := []Verdict{
		{QualificationLevel: ptr(QualificationHot)},
		{QualificationLevel: ptr(QualificationWarm)},
		{IsFake: ptr(true)},
		{QualificationLevel: ptr(QualificationCold), Score: ptr(5)},
	}
	for _, stage := range []Stage{StageClosed, StageLost} {
		for _, v := range verdicts {
			lead := newTestLead(stage)
			if out := ApplyVerdict(&lead, v); out.StageChange != nil {
				t.Fatalf("terminal %s changed by verdict: %+v", stage, out.StageChange)
			}
			if lead.Stage != stage {
				t.Fatalf(unexpectedStageMsg, stage, lead.Stage)
			}
		}
	}
}

func TestApplyVerdictNeverOverwritesWithEmptyValues(t *testing.T) {
	lead := newTestLead(StageContacted)
	lead.Budget = ptr("5k")
	lead.Score = ptr(70)
	lead.AITags = []string{"pricing"}

	out := ApplyVerdict(&lead, Verdict{Budget: ptr("   "), AITags: nil, Timeline: ptr("next week")})

	if *lead.Budget != "5k" {
		t.Fatalf("budget overwritten with blank: %q", *lead.Budget)
	}
	if *lead.Score != 70 || len(lead.AITags) != 1 {
		t.Fatalf("unpopulated fields must be kept")
	}
	if lead.Timeline == nil || *lead.Timeline != "next week" {
		t.Fatalf("timeline should merge")
	}
	if len(out.UpdatedFields) != 1 || out.UpdatedFields[0] != "timeline" {
		t.Fatalf("unexpected updated fields %v", out.UpdatedFields)
	}
}

func TestApplyVerdictClampsScores(t *testing.T) {
	lead := newTestLead(StageNew)
	ApplyVerdict(&lead, Verdict{Score: ptr(140), WillBuyScore: ptr(-3)})
	if *lead.Score != 100 || *lead.WillBuyScore != 0 {
		t.Fatalf("scores not clamped: %d %d", *lead.Score, *lead.WillBuyScore)
	}
}

func TestManualMoveRules(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	lead := newTestLead(StageContacted)
	change, err := ApplyManualMove(&lead, StageHot, now)
	if err != nil || change == nil {
		t.Fatalf("move to hot failed: %v", err)
	}
	if lead.QualificationLevel != QualificationHot {
		t.Fatalf("drag to hot must force qualification hot")
	}

	change, err = ApplyManualMove(&lead, StageClosed, now)
	if err != nil || change == nil {
		t.Fatalf("move to closed failed: %v", err)
	}
	if !lead.IsConverted || lead.ConvertedAt == nil || !lead.ConvertedAt.Equal(now) {
		t.Fatalf("drag to closed must record conversion")
	}

	if _, err := ApplyManualMove(&lead, StageContacted, now); err != ErrTransitionNotAllowed {
		t.Fatalf("expected ErrTransitionNotAllowed, got %v", err)
	}
}

func TestConvertAndMarkLost(t *testing.T) {
	now := time.Now()
	lead := newTestLead(StageQualified)

	if change := Convert(&lead, now); change == nil || change.To != StageClosed {
		t.Fatalf("convert should close the lead, got %+v", change)
	}
	if change := Convert(&lead, now.Add(time.Hour)); change != nil {
		t.Fatalf("second convert must not change stage")
	}
	if !lead.ConvertedAt.Equal(now) {
		t.Fatalf("convertedAt must keep the first conversion time")
	}

	change := MarkLost(&lead)
	if change == nil || change.From != StageClosed || change.To != StageLost {
		t.Fatalf(unexpectedChangeMsg, StageClosed, StageLost, change)
	}
	if lead.IsConverted || lead.ConvertedAt != nil {
		t.Fatalf("mark lost must clear conversion")
	}
}

func TestRecordOutboundReplyOnlyMovesNewLeads(t *testing.T) {
	lead := newTestLead(StageNew)
	if change := RecordOutboundReply(&lead); change == nil || change.To != StageContacted {
		t.Fatalf("expected new->contacted, got %+v", change)
	}
	if change := RecordOutboundReply(&lead); change != nil {
		t.Fatalf("second reply must not move the lead")
	}
}
