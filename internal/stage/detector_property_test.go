package stage

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/vidasmart/coachgw/internal/domain"
)

var vocabulary = []string{
	"oi", "quero", "assinar", "quanto", "custa", "preço", "agora", "treino",
	"plano", "ajustar", "dor", "muito", "já", "assinei", "consegui", "preciso",
	"de", "ajuda", "não", "8/10", "hoje", "como", "funciona", "teste", "grátis",
}

func drawMessage(rt *rapid.T, label string) string {
	words := rapid.SliceOfN(rapid.SampledFrom(vocabulary), 0, 12).Draw(rt, label)
	return strings.Join(words, " ")
}

func drawInput(rt *rapid.T) Input {
	n := rapid.IntRange(0, 8).Draw(rt, "history_len")
	history := make([]domain.ChatMessage, n)
	for i := range history {
		role := rapid.SampledFrom([]domain.Role{domain.RoleUser, domain.RoleAssistant}).Draw(rt, "role")
		history[i] = domain.ChatMessage{Role: role, Content: drawMessage(rt, "content")}
	}
	age := time.Duration(rapid.IntRange(0, 60*24).Draw(rt, "age_hours")) * time.Hour

	return Input{
		History:   history,
		Message:   drawMessage(rt, "message"),
		Profile:   domain.UserProfile{ID: "u", CreatedAt: testNow.Add(-age)},
		Persisted: rapid.SampledFrom(domain.Stages()).Draw(rt, "persisted"),
		Now:       testNow,
	}
}

func TestDetect_Deterministic(t *testing.T) {
	d := NewDetector(DefaultThresholds())

	rapid.Check(t, func(rt *rapid.T) {
		in := drawInput(rt)
		first := d.Detect(in)
		second := d.Detect(in)
		if !reflect.DeepEqual(first, second) {
			rt.Fatalf("Detect not deterministic:\n%+v\n%+v", first, second)
		}
	})
}

func TestDetect_ForwardOnlyAndBounded(t *testing.T) {
	d := NewDetector(DefaultThresholds())

	rapid.Check(t, func(rt *rapid.T) {
		in := drawInput(rt)
		got := d.Detect(in)

		if got.Stage.Before(in.Persisted) {
			rt.Fatalf("stage regressed from %s to %s", in.Persisted, got.Stage)
		}
		if !got.Override && domain.Distance(in.Persisted, got.Stage) > 1 {
			rt.Fatalf("stage jumped %s -> %s without override", in.Persisted, got.Stage)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			rt.Fatalf("confidence %v out of range", got.Confidence)
		}
	})
}
