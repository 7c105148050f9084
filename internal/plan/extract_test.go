package plan

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestExtractItems(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		planType Type
		want     []Item
	}{
		{
			name:     "physical from JSON string",
			input:    `{"workouts":[{"day":"Mon","exercises":[{"name":"Squat"}]}]}`,
			planType: TypePhysical,
			want:     []Item{{Identifier: "physical:Mon:Squat", Description: "Squat (Mon)"}},
		},
		{
			name: "physical aliases and day fallback",
			input: `{"weekly_workouts":[
				{"dayOfWeek":"Terça","exercises":[{"exercise":"Remada"},{"name":""}]},
				{"exercises":[{"name":"Prancha"}]}
			]}`,
			planType: TypePhysical,
			want: []Item{
				{Identifier: "physical:Terça:Remada", Description: "Remada (Terça)"},
				{Identifier: "physical:Dia 2:Prancha", Description: "Prancha (Dia 2)"},
			},
		},
		{
			name:     "nutritional aliases",
			input:    `{"daily_meals":[{"meal_type":"Café da manhã","description":"Ovos e fruta"},{"name":"Almoço"}]}`,
			planType: TypeNutritional,
			want: []Item{
				{Identifier: "nutritional:Café da manhã", Description: "Ovos e fruta"},
				{Identifier: "nutritional:Almoço", Description: "Almoço"},
			},
		},
		{
			name: "emotional from decoded map",
			input: map[string]any{
				"practices": []any{
					map[string]any{"title": "Respiração 4-7-8"},
					"not an object",
					map[string]any{"name": "Diário", "description": "Escreva 3 gratidões"},
				},
			},
			planType: TypeEmotional,
			want: []Item{
				{Identifier: "emotional:Respiração 4-7-8", Description: "Respiração 4-7-8"},
				{Identifier: "emotional:Diário", Description: "Escreva 3 gratidões"},
			},
		},
		{
			name:     "spiritual daily practices",
			input:    []byte(`{"daily_practices":[{"name":"Meditação"}]}`),
			planType: TypeSpiritual,
			want:     []Item{{Identifier: "spiritual:Meditação", Description: "Meditação"}},
		},
		{
			name:     "typed document",
			input:    &NutritionalPlan{Meals: []Meal{{Name: "Jantar"}}},
			planType: TypeNutritional,
			want:     []Item{{Identifier: "nutritional:Jantar", Description: "Jantar"}},
		},
		{
			name:     "double encoded JSON",
			input:    json.RawMessage(`"{\"meals\":[{\"name\":\"Lanche\"}]}"`),
			planType: TypeNutritional,
			want:     []Item{{Identifier: "nutritional:Lanche", Description: "Lanche"}},
		},
		{
			name:     "numeric day",
			input:    `{"workouts":[{"day":3,"exercises":[{"name":"Corrida"}]}]}`,
			planType: TypePhysical,
			want:     []Item{{Identifier: "physical:3:Corrida", Description: "Corrida (3)"}},
		},
		{name: "nil input", input: nil, planType: TypePhysical, want: []Item{}},
		{name: "malformed JSON", input: `{"workouts":[`, planType: TypePhysical, want: []Item{}},
		{name: "JSON array", input: `[1,2,3]`, planType: TypePhysical, want: []Item{}},
		{name: "JSON null", input: `null`, planType: TypeEmotional, want: []Item{}},
		{name: "blank string", input: "  ", planType: TypeEmotional, want: []Item{}},
		{name: "unknown type", input: `{"workouts":[]}`, planType: Type("financial"), want: []Item{}},
		{name: "wrong field types", input: `{"meals":"arroz"}`, planType: TypeNutritional, want: []Item{}},
		{name: "unsupported input", input: 42, planType: TypePhysical, want: []Item{}},
		{name: "typed nil document", input: (*PhysicalPlan)(nil), planType: TypePhysical, want: []Item{}},
		{
			name:     "document type mismatch",
			input:    &PhysicalPlan{Workouts: []Workout{{Day: "Mon", Exercises: []Exercise{{Name: "Squat"}}}}},
			planType: TypeSpiritual,
			want:     []Item{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractItems(tt.input, tt.planType)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractItems() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for _, in := range []string{"physical", "Nutritional", " emotional ", "SPIRITUAL"} {
		if _, err := ParseType(in); err != nil {
			t.Errorf("ParseType(%q) error = %v", in, err)
		}
	}
	if _, err := ParseType("financial"); err == nil {
		t.Error("ParseType(financial) error = nil, want error")
	}
}

func TestDecode_ValueDocument(t *testing.T) {
	doc, err := Decode(PracticePlan{Practices: []Practice{{Name: "Oração"}}}, TypeSpiritual)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, ok := doc.(*PracticePlan); !ok {
		t.Errorf("Decode() = %T, want *PracticePlan", doc)
	}
}
