package domain

import (
	"errors"
	"time"
)

// ErrTransitionNotAllowed is returned when a manual move breaks the pipeline rules.
var ErrTransitionNotAllowed = errors.New("stage transition not allowed")

// ApplyManualMove moves a lead on the agent's request. Moving to hot forces
// the qualification level to hot; moving to closed records the conversion;
// moving to lost clears it. Moving to the current stage is a no-op.
func ApplyManualMove(lead *Lead, to Stage, now time.Time) (*StageChange, error) {
	if lead.Stage == to {
		return nil, nil
	}
	if !CanTransition(lead.Stage, to, CauseManual) {
		return nil, ErrTransitionNotAllowed
	}

	change := &StageChange{From: lead.Stage, To: to, Cause: CauseManual}
	lead.Stage = to

	switch to {
	case StageHot:
		lead.QualificationLevel = QualificationHot
	case StageClosed:
		markConverted(lead, now)
	case StageLost:
		lead.IsConverted = false
		lead.ConvertedAt = nil
	}
	return change, nil
}

// Convert closes a lead as won. Converting an already closed lead only
// backfills the conversion time.
func Convert(lead *Lead, now time.Time) *StageChange {
	if lead.Stage == StageClosed {
		markConverted(lead, now)
		return nil
	}
	change, _ := ApplyManualMove(lead, StageClosed, now)
	return change
}

// MarkLost ends a lead as lost and clears any conversion, including on
// previously closed leads.
func MarkLost(lead *Lead) *StageChange {
	lead.IsConverted = false
	lead.ConvertedAt = nil
	if lead.Stage == StageLost {
		return nil
	}
	change, _ := ApplyManualMove(lead, StageLost, time.Time{})
	return change
}

// RecordOutboundReply applies the first-contact rule: the first successful
// outbound message moves a new lead to contacted.
func RecordOutboundReply(lead *Lead) *StageChange {
	if lead.Stage != StageNew {
		return nil
	}
	lead.Stage = StageContacted
	return &StageChange{From: StageNew, To: StageContacted, Cause: CauseOutbound}
}

func markConverted(lead *Lead, now time.Time) {
	lead.IsConverted = true
	if lead.ConvertedAt == nil {
		t := now
		lead.ConvertedAt = &t
	}
}
