package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errEmptyPlan = errors.New("empty plan data")

// strategies maps each plan type to the decoder for its document shape.
var strategies = map[Type]func(map[string]any) Document{
	TypePhysical:    decodePhysical,
	TypeNutritional: decodeNutritional,
	TypeEmotional:   decodePractice,
	TypeSpiritual:   decodePractice,
}

// Decode converts input into the typed document for t. Input may be a
// JSON string or byte slice, a decoded map, or a Document.
func Decode(input any, t Type) (Document, error) {
	decode, ok := strategies[t]
	if !ok {
		return nil, fmt.Errorf("unknown plan type %q", t)
	}

	switch v := input.(type) {
	case nil:
		return nil, errEmptyPlan
	case Document:
		if isNilDocument(v) {
			return nil, errEmptyPlan
		}
		if !v.accepts(t) {
			return nil, fmt.Errorf("%T cannot hold a %s plan", v, t)
		}
		return v, nil
	case PhysicalPlan:
		return Decode(&v, t)
	case NutritionalPlan:
		return Decode(&v, t)
	case PracticePlan:
		return Decode(&v, t)
	case map[string]any:
		return decode(v), nil
	case string:
		return decodeJSON([]byte(v), decode)
	case []byte:
		return decodeJSON(v, decode)
	case json.RawMessage:
		return decodeJSON(v, decode)
	}
	return nil, fmt.Errorf("unsupported plan data %T", input)
}

func isNilDocument(d Document) bool {
	switch v := d.(type) {
	case *PhysicalPlan:
		return v == nil
	case *NutritionalPlan:
		return v == nil
	case *PracticePlan:
		return v == nil
	}
	return false
}

func decodeJSON(data []byte, decode func(map[string]any) Document) (Document, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, errEmptyPlan
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse plan data: %w", err)
	}

	switch v := raw.(type) {
	case nil:
		return nil, errEmptyPlan
	case map[string]any:
		return decode(v), nil
	case string:
		// Some rows store the plan JSON encoded twice.
		return decodeJSON([]byte(v), decode)
	}
	return nil, fmt.Errorf("plan data must be an object, got %T", raw)
}

func decodePhysical(m map[string]any) Document {
	doc := &PhysicalPlan{}
	for _, w := range objects(m, "workouts", "weekly_workouts") {
		workout := Workout{Day: str(w, "day", "dayOfWeek")}
		for _, ex := range objects(w, "exercises") {
			workout.Exercises = append(workout.Exercises, Exercise{
				Name:        str(ex, "name", "exercise"),
				Description: str(ex, "description"),
			})
		}
		doc.Workouts = append(doc.Workouts, workout)
	}
	return doc
}

func decodeNutritional(m map[string]any) Document {
	doc := &NutritionalPlan{}
	for _, meal := range objects(m, "meals", "daily_meals") {
		doc.Meals = append(doc.Meals, Meal{
			Name:        str(meal, "name", "meal_type"),
			Description: str(meal, "description"),
		})
	}
	return doc
}

func decodePractice(m map[string]any) Document {
	doc := &PracticePlan{}
	for _, p := range objects(m, "practices", "daily_practices") {
		doc.Practices = append(doc.Practices, Practice{
			Name:        str(p, "name", "title"),
			Description: str(p, "description"),
		})
	}
	return doc
}

// objects returns the first non-empty list under keys, keeping only its
// object elements. Non-object elements keep their slot so positional
// fallbacks such as "Dia N" stay aligned.
func objects(m map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		list, ok := m[k].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		out := make([]map[string]any, 0, len(list))
		for _, el := range list {
			obj, _ := el.(map[string]any)
			if obj == nil {
				obj = map[string]any{}
			}
			out = append(out, obj)
		}
		return out
	}
	return nil
}

// str returns the first non-blank scalar under keys as a string.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}
