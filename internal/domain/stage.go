package domain

import (
	"fmt"
	"strings"
)

// Stage is the phase of the coaching relationship a user is in.
// Stages are ordered by advancement: lead < specialist < seller < partner.
type Stage string

const (
	StageLead       Stage = "lead"
	StageSpecialist Stage = "specialist"
	StageSeller     Stage = "seller"
	StagePartner    Stage = "partner"
)

var stageOrder = []Stage{StageLead, StageSpecialist, StageSeller, StagePartner}

// Stages returns every stage in advancement order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage converts a stored or user supplied label into a Stage.
// Matching is case-insensitive and the legacy label "sdr" maps to lead.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lead", "sdr":
		return StageLead, nil
	case "specialist":
		return StageSpecialist, nil
	case "seller":
		return StageSeller, nil
	case "partner":
		return StagePartner, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// ParseStageOr is ParseStage with a fallback for empty or unknown labels.
func ParseStageOr(s string, fallback Stage) Stage {
	st, err := ParseStage(s)
	if err != nil {
		return fallback
	}
	return st
}

// Index returns the position of s in advancement order, or -1.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Index() >= 0 }

// Next returns the stage one step ahead. Partner has no successor and
// returns itself.
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 {
		return StageLead
	}
	if i+1 >= len(stageOrder) {
		return s
	}
	return stageOrder[i+1]
}

// Before reports whether s is strictly less advanced than other.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// Distance returns how many steps separate from and to. Positive values
// mean to is ahead of from.
func Distance(from, to Stage) int {
	return to.Index() - from.Index()
}
