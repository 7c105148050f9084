package stage

import (
	"fmt"
	"time"
)

// Thresholds are the tunable numbers behind detection. They are heuristic
// and exposed through configuration so they can be validated against real
// transcripts instead of being baked in.
type Thresholds struct {
	// ModerateSignals is how many keyword hits a stage needs before it is
	// considered at all.
	ModerateSignals int `koanf:"moderate_signals" json:"moderateSignals"`

	// SignalSaturation is the support count that maps to confidence 1.0.
	SignalSaturation int `koanf:"signal_saturation" json:"signalSaturation"`

	// QualifiedBANT is how many BANT dimensions mark a lead as qualified
	// enough to jump straight to seller.
	QualifiedBANT int `koanf:"qualified_bant" json:"qualifiedBant"`

	// ExplicitSignalWeight is how many signals an explicit purchase or
	// subscription statement counts for. At SignalSaturation a single
	// explicit statement reaches confidence 1.0.
	ExplicitSignalWeight int `koanf:"explicit_signal_weight" json:"explicitSignalWeight"`

	// PartnerHistoryTurns is the history length that counts as one partner
	// signal on its own.
	PartnerHistoryTurns int `koanf:"partner_history_turns" json:"partnerHistoryTurns"`

	// PainSignalLevel is the pain level that counts as a specialist signal.
	PainSignalLevel int `koanf:"pain_signal_level" json:"painSignalLevel"`

	// ShortMessageRunes is the length under which a non-negative message
	// counts as small talk.
	ShortMessageRunes int `koanf:"short_message_runes" json:"shortMessageRunes"`

	// PlanAdjustmentBonus is added to specialist confidence when the user
	// asks to change a plan.
	PlanAdjustmentBonus float64 `koanf:"plan_adjustment_bonus" json:"planAdjustmentBonus"`

	// NewClientAge and InactiveClientAge classify the client moment.
	NewClientAge      time.Duration `koanf:"new_client_age" json:"newClientAge"`
	InactiveClientAge time.Duration `koanf:"inactive_client_age" json:"inactiveClientAge"`

	// EnableHeuristics turns on the plan-intent fallback rule.
	EnableHeuristics bool `koanf:"enable_heuristics" json:"enableHeuristics"`
}

// Named defaults.
const (
	DefaultModerateSignals     = 2
	DefaultSignalSaturation    = 3
	DefaultQualifiedBANT       = 3
	DefaultExplicitWeight      = DefaultSignalSaturation
	DefaultPartnerHistoryTurns = 5
	DefaultPainSignalLevel     = 7
	DefaultShortMessageRunes   = 50
	DefaultPlanAdjustmentBonus = 0.2
	DefaultNewClientAge        = 24 * time.Hour
	DefaultInactiveClientAge   = 7 * 24 * time.Hour
)

// DefaultThresholds returns the thresholds used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ModerateSignals:      DefaultModerateSignals,
		SignalSaturation:     DefaultSignalSaturation,
		QualifiedBANT:        DefaultQualifiedBANT,
		ExplicitSignalWeight: DefaultExplicitWeight,
		PartnerHistoryTurns:  DefaultPartnerHistoryTurns,
		PainSignalLevel:      DefaultPainSignalLevel,
		ShortMessageRunes:    DefaultShortMessageRunes,
		PlanAdjustmentBonus:  DefaultPlanAdjustmentBonus,
		NewClientAge:         DefaultNewClientAge,
		InactiveClientAge:    DefaultInactiveClientAge,
		EnableHeuristics:     true,
	}
}

// Validate rejects thresholds that would make detection meaningless.
func (t Thresholds) Validate() error {
	if t.ModerateSignals < 1 {
		return fmt.Errorf("moderate_signals must be at least 1, got %d", t.ModerateSignals)
	}
	if t.SignalSaturation < 1 {
		return fmt.Errorf("signal_saturation must be at least 1, got %d", t.SignalSaturation)
	}
	if t.ExplicitSignalWeight < 1 {
		return fmt.Errorf("explicit_signal_weight must be at least 1, got %d", t.ExplicitSignalWeight)
	}
	if t.QualifiedBANT < 1 || t.QualifiedBANT > 4 {
		return fmt.Errorf("qualified_bant must be between 1 and 4, got %d", t.QualifiedBANT)
	}
	if t.PlanAdjustmentBonus < 0 || t.PlanAdjustmentBonus > 1 {
		return fmt.Errorf("plan_adjustment_bonus must be within [0,1], got %v", t.PlanAdjustmentBonus)
	}
	if t.InactiveClientAge < t.NewClientAge {
		return fmt.Errorf("inactive_client_age (%s) must not be shorter than new_client_age (%s)",
			t.InactiveClientAge, t.NewClientAge)
	}
	return nil
}
