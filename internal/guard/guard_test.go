package guard

import (
	"reflect"
	"testing"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/stage"
)

func detection(st domain.Stage, confidence float64, override bool) stage.Detection {
	return stage.Detection{Stage: st, Candidate: st, Confidence: confidence, Override: override}
}

func hintCodes(hints []Hint) []HintCode {
	var out []HintCode
	for _, h := range hints {
		out = append(out, h.Code)
	}
	return out
}

func TestGuard_Evaluate_Transitions(t *testing.T) {
	g := New(DefaultThresholds())

	tests := []struct {
		name       string
		persisted  domain.Stage
		det        stage.Detection
		wantAction Action
		wantStage  domain.Stage
		wantIssues []Issue
		wantHints  []HintCode
	}{
		{
			name:       "low confidence greeting",
			persisted:  domain.StageLead,
			det:        detection(domain.StageLead, 0, false),
			wantAction: ActionProceed,
			wantStage:  domain.StageLead,
			wantIssues: []Issue{IssueStagnantStage},
			wantHints:  []HintCode{HintLowConfidence},
		},
		{
			name:       "moderate single step",
			persisted:  domain.StageLead,
			det:        detection(domain.StageSpecialist, 0.6, false),
			wantAction: ActionForceStage,
			wantStage:  domain.StageSpecialist,
		},
		{
			name:       "high confidence override jumps",
			persisted:  domain.StageLead,
			det:        detection(domain.StageSeller, 1, true),
			wantAction: ActionForceStage,
			wantStage:  domain.StageSeller,
			wantIssues: []Issue{IssueHighConfidenceOverride},
		},
		{
			name:       "override below override confidence is capped",
			persisted:  domain.StageLead,
			det:        detection(domain.StagePartner, 0.7, true),
			wantAction: ActionForceStage,
			wantStage:  domain.StageSpecialist,
			wantIssues: []Issue{IssueCappedStageJump},
		},
		{
			name:       "jump without override is capped",
			persisted:  domain.StageSpecialist,
			det:        detection(domain.StagePartner, 0.9, false),
			wantAction: ActionForceStage,
			wantStage:  domain.StageSeller,
			wantIssues: []Issue{IssueCappedStageJump},
		},
		{
			name:       "regression ignored",
			persisted:  domain.StageSeller,
			det:        detection(domain.StageLead, 0.9, false),
			wantAction: ActionProceed,
			wantStage:  domain.StageSeller,
			wantIssues: []Issue{IssueRegressionIgnored},
		},
		{
			name:       "ahead but below flap threshold",
			persisted:  domain.StageLead,
			det:        detection(domain.StageSpecialist, 0.4, false),
			wantAction: ActionProceed,
			wantStage:  domain.StageLead,
			wantIssues: []Issue{IssueStagnantStage},
			wantHints:  []HintCode{HintLowConfidence, HintConsiderStagePrompt},
		},
		{
			name:       "hold with evidence for next stage",
			persisted:  domain.StageSpecialist,
			det:        detection(domain.StageSpecialist, 0.67, false),
			wantAction: ActionProceed,
			wantStage:  domain.StageSpecialist,
			wantHints:  []HintCode{HintConsiderStagePrompt},
		},
		{
			name:       "partner has nowhere to go",
			persisted:  domain.StagePartner,
			det:        detection(domain.StagePartner, 0.9, false),
			wantAction: ActionProceed,
			wantStage:  domain.StagePartner,
		},
		{
			name:       "unknown persisted stage is lead",
			persisted:  domain.Stage("sdr-legacy"),
			det:        detection(domain.StageSpecialist, 0.6, false),
			wantAction: ActionForceStage,
			wantStage:  domain.StageSpecialist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Evaluate(Input{Detection: tt.det, Persisted: tt.persisted, Message: "tudo certo"})

			if got.Action != tt.wantAction {
				t.Errorf("Evaluate().Action = %q, want %q", got.Action, tt.wantAction)
			}
			if got.Stage != tt.wantStage {
				t.Errorf("Evaluate().Stage = %q, want %q", got.Stage, tt.wantStage)
			}
			if !reflect.DeepEqual(got.Issues, tt.wantIssues) {
				t.Errorf("Evaluate().Issues = %v, want %v", got.Issues, tt.wantIssues)
			}
			if codes := hintCodes(got.Hints); !reflect.DeepEqual(codes, tt.wantHints) {
				t.Errorf("Evaluate().Hints = %v, want %v", codes, tt.wantHints)
			}
		})
	}
}

func TestGuard_Evaluate_HardStops(t *testing.T) {
	g := New(DefaultThresholds())
	confident := detection(domain.StageSeller, 1, true)

	tests := []struct {
		name    string
		message string
		flags   Flags
		want    Issue
	}{
		{"emergency phrase", "às vezes penso em me matar", Flags{}, IssueEmergencyRisk},
		{"emergency prefix", "tenho pensamentos suicidas", Flags{}, IssueEmergencyRisk},
		{"emergency beats rate limit", "não vejo saída", Flags{RateLimited: true}, IssueEmergencyRisk},
		{"abusive flag", "quero assinar", Flags{Abusive: true}, IssueAbusiveContent},
		{"abusive lexicon", "você é um IDIOTA", Flags{}, IssueAbusiveContent},
		{"rate limited", "quero assinar", Flags{RateLimited: true}, IssueRateLimited},
		{"blank message", "   ", Flags{}, IssueMissingUserResponse},
		{"punctuation only", "?!", Flags{}, IssueMissingUserResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Evaluate(Input{
				Detection: confident,
				Persisted: domain.StageLead,
				Message:   tt.message,
				Flags:     tt.flags,
			})

			if got.Action != ActionBlockReply {
				t.Fatalf("Evaluate().Action = %q, want %q", got.Action, ActionBlockReply)
			}
			if got.Stage != domain.StageLead {
				t.Errorf("Evaluate().Stage = %q, want lead", got.Stage)
			}
			if !got.Has(tt.want) {
				t.Errorf("Evaluate().Issues = %v, want %q", got.Issues, tt.want)
			}
		})
	}
}

func TestGuard_Evaluate_MissingHint(t *testing.T) {
	got := New(DefaultThresholds()).Evaluate(Input{Persisted: domain.StageLead})
	if _, ok := got.Hint(HintAwaitUserContent); !ok {
		t.Errorf("Evaluate() hints = %v, want %q", hintCodes(got.Hints), HintAwaitUserContent)
	}
}

func TestGuard_Evaluate_RepeatedPrompt(t *testing.T) {
	g := New(DefaultThresholds())
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "oi"},
		{Role: domain.RoleAssistant, Content: "Como posso te ajudar hoje?"},
		{Role: domain.RoleUser, Content: "hm"},
		{Role: domain.RoleAssistant, Content: "  como posso te ajudar   HOJE? "},
	}

	t.Run("escalates with confidence", func(t *testing.T) {
		got := g.Evaluate(Input{
			Detection: detection(domain.StageLead, 0.6, false),
			Persisted: domain.StageLead,
			Message:   "não sei",
			History:   history,
		})
		if got.Action != ActionForceStage || got.Stage != domain.StageSpecialist {
			t.Errorf("Evaluate() = %s/%s, want force_stage/specialist", got.Action, got.Stage)
		}
		if !got.Has(IssueRepeatedPrompt) {
			t.Errorf("Evaluate().Issues = %v, want %q", got.Issues, IssueRepeatedPrompt)
		}
		if _, ok := got.Hint(HintChangeApproach); !ok {
			t.Errorf("Evaluate() missing %q hint", HintChangeApproach)
		}
	})

	t.Run("holds without confidence", func(t *testing.T) {
		got := g.Evaluate(Input{
			Detection: detection(domain.StageLead, 0.1, false),
			Persisted: domain.StageLead,
			Message:   "não sei",
			History:   history,
		})
		if got.Action != ActionProceed || got.Stage != domain.StageLead {
			t.Errorf("Evaluate() = %s/%s, want proceed/lead", got.Action, got.Stage)
		}
		if !got.Has(IssueRepeatedPrompt) || !got.Has(IssueStagnantStage) {
			t.Errorf("Evaluate().Issues = %v", got.Issues)
		}
	})

	t.Run("distinct prompts", func(t *testing.T) {
		distinct := append([]domain.ChatMessage(nil), history...)
		distinct[3].Content = "Quer falar sobre seu treino?"
		got := g.Evaluate(Input{
			Detection: detection(domain.StageLead, 0.1, false),
			Persisted: domain.StageLead,
			Message:   "ok",
			History:   distinct,
		})
		if got.Has(IssueRepeatedPrompt) {
			t.Errorf("Evaluate().Issues = %v, want no repeated prompt", got.Issues)
		}
	})
}

func TestGuard_EvaluateStage(t *testing.T) {
	g := New(DefaultThresholds())
	got := g.EvaluateStage(detection(domain.StageSeller, 1, true), domain.StageLead)
	if got.Action != ActionForceStage || got.Stage != domain.StageSeller {
		t.Errorf("EvaluateStage() = %s/%s, want force_stage/seller", got.Action, got.Stage)
	}
}

func TestGuard_SetThresholds(t *testing.T) {
	g := New(DefaultThresholds())
	det := detection(domain.StageSpecialist, 0.6, false)

	if got := g.EvaluateStage(det, domain.StageLead); got.Action != ActionForceStage {
		t.Fatalf("EvaluateStage().Action = %q, want force_stage", got.Action)
	}

	g.SetThresholds(Thresholds{FlapConfidence: 0.7, OverrideConfidence: 0.9, HintConfidence: 0.3})
	if got := g.EvaluateStage(det, domain.StageLead); got.Action != ActionProceed {
		t.Errorf("EvaluateStage().Action = %q after raising flap_confidence, want proceed", got.Action)
	}
}

func TestThresholds_Validate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", DefaultThresholds(), false},
		{"hint above flap", Thresholds{FlapConfidence: 0.3, OverrideConfidence: 0.8, HintConfidence: 0.4}, true},
		{"flap above override", Thresholds{FlapConfidence: 0.9, OverrideConfidence: 0.8, HintConfidence: 0.1}, true},
		{"override above one", Thresholds{FlapConfidence: 0.5, OverrideConfidence: 1.5, HintConfidence: 0.1}, true},
		{"negative hint", Thresholds{FlapConfidence: 0.5, OverrideConfidence: 0.8, HintConfidence: -0.1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
