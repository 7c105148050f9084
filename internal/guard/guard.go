// Package guard vets proposed stage transitions and decides whether a
// reply should be generated at all.
//
// The guard is the only component allowed to decide the next persisted
// stage. Stages only move forward, at most one step per message unless a
// high-confidence override fired.
package guard

import (
	"sync/atomic"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/stage"
)

// Action is what the orchestrator must do with the message.
type Action string

const (
	ActionProceed    Action = "proceed"
	ActionForceStage Action = "force_stage"
	ActionBlockReply Action = "block_reply"
)

// Issue tags a condition the guard noticed.
type Issue string

const (
	IssueEmergencyRisk          Issue = "emergency_risk"
	IssueAbusiveContent         Issue = "abusive_content"
	IssueRateLimited            Issue = "rate_limited"
	IssueMissingUserResponse    Issue = "missing_user_response"
	IssueRepeatedPrompt         Issue = "repeated_assistant_prompt"
	IssueStagnantStage          Issue = "stagnant_stage"
	IssueCappedStageJump        Issue = "capped_stage_jump"
	IssueHighConfidenceOverride Issue = "high_confidence_override"
	IssueRegressionIgnored      Issue = "regression_ignored"
)

// HintCode identifies advisory information for prompt selection.
type HintCode string

const (
	HintConsiderStagePrompt HintCode = "consider_stage_prompt"
	HintChangeApproach      HintCode = "change_approach"
	HintLowConfidence       HintCode = "low_confidence"
	HintAwaitUserContent    HintCode = "await_user_content"
)

// Hint is advice that never changes the stage by itself.
type Hint struct {
	Code  HintCode     `json:"code"`
	Stage domain.Stage `json:"stage,omitempty"`
	Text  string       `json:"text"`
}

// Decision is the guard's verdict for one message.
type Decision struct {
	Action Action       `json:"action"`
	Stage  domain.Stage `json:"stage"`
	Issues []Issue      `json:"issues"`
	Hints  []Hint       `json:"hints"`
}

// Has reports whether the decision carries issue.
func (d Decision) Has(issue Issue) bool {
	for _, i := range d.Issues {
		if i == issue {
			return true
		}
	}
	return false
}

// Hint returns the first hint with the given code.
func (d Decision) Hint(code HintCode) (Hint, bool) {
	for _, h := range d.Hints {
		if h.Code == code {
			return h, true
		}
	}
	return Hint{}, false
}

// Flags are conditions detected by the caller.
type Flags struct {
	Abusive     bool `json:"abusive,omitempty"`
	RateLimited bool `json:"rateLimited,omitempty"`
}

// Input is everything the guard looks at.
type Input struct {
	Detection stage.Detection
	Persisted domain.Stage
	Message   string
	History   []domain.ChatMessage
	Flags     Flags
}

// Guard evaluates detections. It is safe for concurrent use.
type Guard struct {
	thresholds atomic.Pointer[Thresholds]
}

// New creates a guard with the given thresholds.
func New(th Thresholds) *Guard {
	g := &Guard{}
	g.thresholds.Store(&th)
	return g
}

func (g *Guard) Thresholds() Thresholds { return *g.thresholds.Load() }

func (g *Guard) SetThresholds(th Thresholds) { g.thresholds.Store(&th) }

// Evaluate applies the hard stops, then the transition rules, then the
// repeated-prompt check.
func (g *Guard) Evaluate(in Input) Decision {
	th := g.Thresholds()
	persisted := normalize(in.Persisted)
	msg := stage.NewText(in.Message)

	if d, blocked := hardStop(msg, in.Flags, persisted); blocked {
		return d
	}

	d := transition(in.Detection, persisted, th)

	if repeatedAssistantPrompt(in.History) {
		d.Issues = append(d.Issues, IssueRepeatedPrompt)
		d.Hints = append(d.Hints, Hint{
			Code: HintChangeApproach,
			Text: "As duas últimas respostas foram idênticas; mude a abordagem.",
		})
		next := persisted.Next()
		if d.Action == ActionProceed && next != persisted && in.Detection.Confidence >= th.FlapConfidence {
			d.Action = ActionForceStage
			d.Stage = next
		}
	}

	return d
}

// EvaluateStage applies only the transition rules to a detection.
func (g *Guard) EvaluateStage(det stage.Detection, persisted domain.Stage) Decision {
	return transition(det, normalize(persisted), g.Thresholds())
}

func hardStop(msg stage.Text, flags Flags, persisted domain.Stage) (Decision, bool) {
	block := func(issue Issue, hints ...Hint) (Decision, bool) {
		return Decision{
			Action: ActionBlockReply,
			Stage:  persisted,
			Issues: []Issue{issue},
			Hints:  hints,
		}, true
	}

	switch {
	case msg.HasAny(emergencyPhrases) || msg.HasPrefix("suicid"):
		return block(IssueEmergencyRisk)
	case flags.Abusive || msg.HasAny(abusivePhrases):
		return block(IssueAbusiveContent)
	case flags.RateLimited:
		return block(IssueRateLimited)
	case msg.Blank():
		return block(IssueMissingUserResponse, Hint{
			Code: HintAwaitUserContent,
			Text: "Usuário não enviou conteúdo útil; aguarde antes de seguir.",
		})
	}
	return Decision{}, false
}

func transition(det stage.Detection, persisted domain.Stage, th Thresholds) Decision {
	d := Decision{Action: ActionProceed, Stage: persisted}

	target := det.Stage
	if !target.Valid() {
		target = persisted
	}

	if target.Before(persisted) {
		d.Issues = append(d.Issues, IssueRegressionIgnored)
		return d
	}

	if det.Confidence < th.FlapConfidence {
		d.Issues = append(d.Issues, IssueStagnantStage)
		d.Hints = append(d.Hints, Hint{
			Code: HintLowConfidence,
			Text: "Detecção de estágio com baixa confiança.",
		})
		if h, ok := stageHint(det, persisted, th); ok {
			d.Hints = append(d.Hints, h)
		}
		return d
	}

	switch dist := domain.Distance(persisted, target); {
	case dist == 0:
		if h, ok := stageHint(det, persisted, th); ok {
			d.Hints = append(d.Hints, h)
		}
	case dist == 1:
		d.Action = ActionForceStage
		d.Stage = target
	case det.Override && det.Confidence >= th.OverrideConfidence:
		d.Action = ActionForceStage
		d.Stage = target
		d.Issues = append(d.Issues, IssueHighConfidenceOverride)
	default:
		d.Action = ActionForceStage
		d.Stage = persisted.Next()
		d.Issues = append(d.Issues, IssueCappedStageJump)
	}

	return d
}

// stageHint suggests the next stage's prompt when the detector saw some
// evidence for moving on but not enough to change the stage.
func stageHint(det stage.Detection, persisted domain.Stage, th Thresholds) (Hint, bool) {
	next := persisted.Next()
	if det.Confidence < th.HintConfidence || next == persisted {
		return Hint{}, false
	}
	return Hint{
		Code:  HintConsiderStagePrompt,
		Stage: next,
		Text:  "Perto de avançar; considere o roteiro do estágio " + string(next) + ".",
	}, true
}

func repeatedAssistantPrompt(history []domain.ChatMessage) bool {
	last := domain.LastByRole(history, domain.RoleAssistant, 2)
	if len(last) < 2 {
		return false
	}
	a, b := stage.Fold(last[0].Content), stage.Fold(last[1].Content)
	return a != "" && a == b
}

func normalize(s domain.Stage) domain.Stage {
	if !s.Valid() {
		return domain.StageLead
	}
	return s
}
