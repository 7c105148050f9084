// Package stage classifies a conversation into a relationship stage.
//
// Detection is a pure function of its Input: the same history, message,
// profile, persisted stage and Now always yield the same Detection.
package stage

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vidasmart/coachgw/internal/domain"
)

// Rule names the detection rule that produced a result.
type Rule string

const (
	RuleSubscriptionConfirmed Rule = "subscription_confirmed"
	RulePurchaseIntent        Rule = "purchase_intent"
	RuleQualifiedBANT         Rule = "qualified_bant"
	RulePartnerSignals        Rule = "partner_signals"
	RuleSellerSignals         Rule = "seller_signals"
	RuleSpecialistSignals     Rule = "specialist_signals"
	RuleLeadSignals           Rule = "lead_signals"
	RulePlanHeuristic         Rule = "plan_heuristic"
	RuleNoSignal              Rule = "no_signal"
)

// Moment describes where the client is in their lifecycle.
type Moment string

const (
	MomentNew      Moment = "new"
	MomentInactive Moment = "inactive"
	MomentActive   Moment = "active"
)

// Metrics are the conversation measurements behind a detection.
type Metrics struct {
	Signals

	TotalTurns            int    `json:"totalTurns"`
	UserTurns             int    `json:"userTurns"`
	AssistantTurns        int    `json:"assistantTurns"`
	TurnsSinceStageChange int    `json:"turnsSinceStageChange"`
	AccountAgeDays        int    `json:"accountAgeDays"`
	Moment                Moment `json:"moment"`
}

// Detection is the detector's best guess for the current stage.
type Detection struct {
	// Stage is the proposed stage after the single-step rule was applied.
	Stage domain.Stage `json:"detectedStage"`

	// Candidate is the stage the signals point at before resolution. It
	// may be several steps ahead of Stage.
	Candidate domain.Stage `json:"candidateStage,omitempty"`

	Confidence float64 `json:"confidence"`

	// Override is set when a high-confidence rule fired and the proposal is
	// allowed to skip stages.
	Override bool `json:"override"`

	Rule    Rule    `json:"rule"`
	Reason  string  `json:"reason,omitempty"`
	Metrics Metrics `json:"metrics"`
}

// Input is everything detection depends on. Now must be supplied by the
// caller; the detector never reads the wall clock.
type Input struct {
	History   []domain.ChatMessage
	Message   string
	Profile   domain.UserProfile
	Persisted domain.Stage
	Now       time.Time
}

// Detector computes stage detections. It is safe for concurrent use and
// its thresholds can be swapped at runtime.
type Detector struct {
	thresholds atomic.Pointer[Thresholds]
	logger     *slog.Logger
	debug      bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger used for debug metrics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// WithDebugMetrics logs the signal snapshot of every detection.
func WithDebugMetrics(enabled bool) Option {
	return func(d *Detector) {
		d.debug = enabled
	}
}

// NewDetector creates a detector with the given thresholds.
func NewDetector(th Thresholds, opts ...Option) *Detector {
	d := &Detector{logger: slog.Default()}
	d.thresholds.Store(&th)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Thresholds returns the thresholds currently in effect.
func (d *Detector) Thresholds() Thresholds {
	return *d.thresholds.Load()
}

// SetThresholds replaces the thresholds for subsequent detections.
func (d *Detector) SetThresholds(th Thresholds) {
	d.thresholds.Store(&th)
}

// Detect classifies the conversation.
func (d *Detector) Detect(in Input) Detection {
	th := d.Thresholds()

	persisted := in.Persisted
	if !persisted.Valid() {
		persisted = domain.StageLead
	}

	msg := NewText(in.Message)
	metrics := d.measure(in, msg, th)

	candidate, rule, override := pickCandidate(metrics.Signals, th)

	det := Detection{
		Stage:     persisted,
		Candidate: candidate,
		Rule:      rule,
		Metrics:   metrics,
	}

	switch {
	case candidate == "":
		det.Confidence = 0
		det.Reason = "no stage reached the signal threshold"

	case !persisted.Before(candidate):
		// Forward-only: evidence for the current or an earlier stage keeps
		// the user where they are. Confidence reflects only the evidence
		// for moving on.
		det.Override = false
		det.Confidence = confidence(persisted.Next(), metrics.Signals, th)
		if persisted.Next() == persisted {
			det.Confidence = 0
		}
		det.Reason = fmt.Sprintf("hold at %s (signals point to %s)", persisted, candidate)

	case override:
		det.Stage = candidate
		det.Override = true
		det.Confidence = confidence(candidate, metrics.Signals, th)
		det.Reason = fmt.Sprintf("%s: %s -> %s", rule, persisted, candidate)

	default:
		det.Stage = persisted.Next()
		det.Confidence = confidence(candidate, metrics.Signals, th)
		det.Reason = fmt.Sprintf("%s: advance %s -> %s", rule, persisted, det.Stage)
	}

	if d.debug {
		d.logger.Debug("stage metrics",
			slog.String("preview", preview(in.Message, 120)),
			slog.String("persisted", string(persisted)),
			slog.String("detected", string(det.Stage)),
			slog.String("candidate", string(det.Candidate)),
			slog.String("rule", string(det.Rule)),
			slog.Float64("confidence", det.Confidence),
			slog.Any("signals", metrics.Signals),
		)
	}

	return det
}

func (d *Detector) measure(in Input, msg Text, th Thresholds) Metrics {
	userTurns, assistantTurns := domain.CountRoles(in.History)
	age := in.Profile.AccountAge(in.Now)

	m := Metrics{
		Signals:               scanSignals(msg, len(in.History), th),
		TotalTurns:            len(in.History),
		UserTurns:             userTurns,
		AssistantTurns:        assistantTurns,
		TurnsSinceStageChange: turnsSinceStageChange(in.History),
		AccountAgeDays:        int(age / (24 * time.Hour)),
	}

	switch {
	case age <= th.NewClientAge:
		m.Moment = MomentNew
	case age > th.InactiveClientAge && len(in.History) == 0:
		m.Moment = MomentInactive
	default:
		m.Moment = MomentActive
	}

	return m
}

// pickCandidate applies the rules strongest first.
func pickCandidate(s Signals, th Thresholds) (domain.Stage, Rule, bool) {
	switch {
	case s.SubscriptionConfirmed:
		return domain.StagePartner, RuleSubscriptionConfirmed, true
	case s.PurchaseIntent:
		return domain.StageSeller, RulePurchaseIntent, true
	case s.BANT.Count() >= th.QualifiedBANT:
		return domain.StageSeller, RuleQualifiedBANT, true
	case s.Partner >= th.ModerateSignals:
		return domain.StagePartner, RulePartnerSignals, false
	case s.Seller >= th.ModerateSignals:
		return domain.StageSeller, RuleSellerSignals, false
	case s.Specialist >= th.ModerateSignals:
		return domain.StageSpecialist, RuleSpecialistSignals, false
	case s.Lead >= th.ModerateSignals:
		return domain.StageLead, RuleLeadSignals, false
	}

	if th.EnableHeuristics &&
		(s.PlanAdjustmentIntent || (s.Specialist >= 1 && s.InterestKeywords && s.PlanKeywords)) {
		return domain.StageSpecialist, RulePlanHeuristic, false
	}

	return "", RuleNoSignal, false
}

// support counts the independent signals that agree with st.
func support(st domain.Stage, s Signals, th Thresholds) int {
	switch st {
	case domain.StagePartner:
		n := s.Partner
		if s.SubscriptionConfirmed {
			n += th.ExplicitSignalWeight
		}
		return n
	case domain.StageSeller:
		n := s.Seller + s.BANT.Count()
		if s.PurchaseIntent {
			n += th.ExplicitSignalWeight
		}
		return n
	case domain.StageSpecialist:
		n := s.Specialist
		if s.PlanAdjustmentIntent {
			n++
		}
		return n
	case domain.StageLead:
		return s.Lead
	}
	return 0
}

func confidence(st domain.Stage, s Signals, th Thresholds) float64 {
	c := float64(support(st, s, th)) / float64(th.SignalSaturation)
	if st == domain.StageSpecialist && s.PlanAdjustmentIntent {
		c += th.PlanAdjustmentBonus
	}
	return math.Min(1, c)
}

// turnsSinceStageChange counts user turns after the latest assistant
// message carrying a stage marker.
func turnsSinceStageChange(history []domain.ChatMessage) int {
	turns := 0
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role == domain.RoleAssistant && NewText(m.Content).HasAny(stageMarkers) {
			return turns
		}
		if m.Role == domain.RoleUser {
			turns++
		}
	}
	return turns
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
