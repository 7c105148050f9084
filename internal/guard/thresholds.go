package guard

import "fmt"

// Thresholds are the confidence levels the guard compares detections to.
type Thresholds struct {
	// FlapConfidence is the minimum confidence for any stage change.
	FlapConfidence float64 `koanf:"flap_confidence" json:"flapConfidence"`

	// OverrideConfidence is the minimum confidence for a multi-step jump
	// when the detector flagged an override.
	OverrideConfidence float64 `koanf:"override_confidence" json:"overrideConfidence"`

	// HintConfidence is the minimum confidence for suggesting the next
	// stage's prompt without changing the stage.
	HintConfidence float64 `koanf:"hint_confidence" json:"hintConfidence"`
}

const (
	DefaultFlapConfidence     = 0.5
	DefaultOverrideConfidence = 0.8
	DefaultHintConfidence     = 0.3
)

func DefaultThresholds() Thresholds {
	return Thresholds{
		FlapConfidence:     DefaultFlapConfidence,
		OverrideConfidence: DefaultOverrideConfidence,
		HintConfidence:     DefaultHintConfidence,
	}
}

// Validate requires 0 <= hint <= flap <= override <= 1.
func (t Thresholds) Validate() error {
	if t.HintConfidence < 0 || t.OverrideConfidence > 1 {
		return fmt.Errorf("guard thresholds must be within [0,1]")
	}
	if t.HintConfidence > t.FlapConfidence {
		return fmt.Errorf("hint_confidence (%v) must not exceed flap_confidence (%v)", t.HintConfidence, t.FlapConfidence)
	}
	if t.FlapConfidence > t.OverrideConfidence {
		return fmt.Errorf("flap_confidence (%v) must not exceed override_confidence (%v)", t.FlapConfidence, t.OverrideConfidence)
	}
	return nil
}
