package domain

import "strings"

// Stage is the position of a lead in the sales pipeline.
type Stage string

const (
	StageNew       Stage = "new"
	StageContacted Stage = "contacted"
	StageQualified Stage = "qualified"
	StageHot       Stage = "hot"
	StageClosed    Stage = "closed"
	StageLost      Stage = "lost"
)

// PipelineStages lists the stages in board order.
var PipelineStages = []Stage{StageNew, StageContacted, StageQualified, StageHot, StageClosed, StageLost}

// Cause records what triggered a stage transition.
type Cause string

const (
	CauseClassification Cause = "classification"
	CauseManual         Cause = "manual"
	CauseOutbound       Cause = "outbound"
)

// ParseStage accepts a stage name in any case.
func ParseStage(raw string) (Stage, bool) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range PipelineStages {
		if s == known {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether the stage ends the pipeline.
func (s Stage) IsTerminal() bool {
	return s == StageClosed || s == StageLost
}

// CanTransition reports whether the pipeline allows moving from one stage
// to another for the given cause:
//
//	new -> contacted | qualified
//	new | contacted | qualified -> hot
//	non-terminal -> lost
//	any -> closed          (manual only)
//	closed -> lost         (manual only)
//
// Staying in place is not a transition.
func CanTransition(from, to Stage, cause Cause) bool {
	if from == to {
		return false
	}

	switch to {
	case StageContacted, StageQualified:
		return from == StageNew
	case StageHot:
		return !from.IsTerminal()
	case StageLost:
		if !from.IsTerminal() {
			return true
		}
		return cause == CauseManual && from == StageClosed
	case StageClosed:
		return cause == CauseManual
	default:
		return false
	}
}

// StageChange describes a transition that was applied to a lead.
type StageChange struct {
	From  Stage
	To    Stage
	Cause Cause
}
