// Package plan turns wellness plan documents into addressable items.
//
// A plan arrives as loosely structured JSON produced by the plan
// generator. Decoding maps it onto one of the typed documents below,
// honouring the field aliases older generators used.
package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the plan category.
type Type string

const (
	TypePhysical    Type = "physical"
	TypeNutritional Type = "nutritional"
	TypeEmotional   Type = "emotional"
	TypeSpiritual   Type = "spiritual"
)

// Types returns every plan type.
func Types() []Type {
	return []Type{TypePhysical, TypeNutritional, TypeEmotional, TypeSpiritual}
}

// ParseType converts a label into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := strategies[t]; !ok {
		return "", fmt.Errorf("unknown plan type %q", s)
	}
	return t, nil
}

// Item is one completable unit of a plan. Identifier is stable across
// re-extraction of the same document.
type Item struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
}

// Document is one of PhysicalPlan, NutritionalPlan or PracticePlan.
type Document interface {
	items(t Type) []Item
	accepts(t Type) bool
}

// PhysicalPlan is a week of workouts.
type PhysicalPlan struct {
	Workouts []Workout `json:"workouts"`
}

type Workout struct {
	Day       string     `json:"day"`
	Exercises []Exercise `json:"exercises"`
}

type Exercise struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// NutritionalPlan is a day of meals.
type NutritionalPlan struct {
	Meals []Meal `json:"meals"`
}

type Meal struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PracticePlan is a list of emotional or spiritual practices.
type PracticePlan struct {
	Practices []Practice `json:"practices"`
}

type Practice struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (p *PhysicalPlan) accepts(t Type) bool { return t == TypePhysical }

func (p *PhysicalPlan) items(t Type) []Item {
	var out []Item
	for i, w := range p.Workouts {
		day := strings.TrimSpace(w.Day)
		if day == "" {
			day = "Dia " + strconv.Itoa(i+1)
		}
		for _, ex := range w.Exercises {
			name := strings.TrimSpace(ex.Name)
			if name == "" {
				continue
			}
			out = append(out, Item{
				Identifier:  string(t) + ":" + day + ":" + name,
				Description: name + " (" + day + ")",
			})
		}
	}
	return out
}

func (p *NutritionalPlan) accepts(t Type) bool { return t == TypeNutritional }

func (p *NutritionalPlan) items(t Type) []Item {
	var out []Item
	for _, m := range p.Meals {
		if item, ok := namedItem(t, m.Name, m.Description); ok {
			out = append(out, item)
		}
	}
	return out
}

func (p *PracticePlan) accepts(t Type) bool {
	return t == TypeEmotional || t == TypeSpiritual
}

func (p *PracticePlan) items(t Type) []Item {
	var out []Item
	for _, pr := range p.Practices {
		if item, ok := namedItem(t, pr.Name, pr.Description); ok {
			out = append(out, item)
		}
	}
	return out
}

func namedItem(t Type, name, description string) (Item, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Item{}, false
	}
	desc := strings.TrimSpace(description)
	if desc == "" {
		desc = name
	}
	return Item{Identifier: string(t) + ":" + name, Description: desc}, true
}
