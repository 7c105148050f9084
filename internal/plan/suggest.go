package plan

// ActivePlan is a plan the user is currently following.
type ActivePlan struct {
	Type Type `json:"planType"`
	Data any  `json:"planData"`
}

// Suggestion is an uncompleted item worth bringing up in the reply.
type Suggestion struct {
	PlanType   Type   `json:"planType"`
	Identifier string `json:"identifier"`
	Item       string `json:"item"`
	Reason     string `json:"reason"`
}

// DefaultSuggestionLimit is how many suggestions a reply carries.
const DefaultSuggestionLimit = 2

// PriorityTypes returns the plan types that fit the hour of day: physical
// and nutritional in the morning, emotional in the afternoon, spiritual
// in the evening and at night.
func PriorityTypes(hour int) []Type {
	switch {
	case hour >= 5 && hour < 12:
		return []Type{TypePhysical, TypeNutritional}
	case hour >= 12 && hour < 18:
		return []Type{TypeEmotional}
	}
	return []Type{TypeSpiritual}
}

func reasonFor(hour int, t Type) string {
	switch {
	case hour >= 5 && hour < 12:
		switch t {
		case TypePhysical:
			return "Ótimo horário para treinar pela manhã"
		case TypeNutritional:
			return "Momento ideal para um café da manhã nutritivo"
		}
	case hour >= 12 && hour < 18:
		if t == TypeEmotional {
			return "Que tal uma pausa para cuidar das emoções?"
		}
	default:
		if t == TypeSpiritual {
			return "Hora perfeita para uma prática espiritual"
		}
	}
	return "Item do seu plano ativo"
}

// Suggest picks at most limit uncompleted items, one per plan. Plans whose
// type fits the hour come first; the rest fill remaining slots in order.
// completed holds the identifiers already done today.
func Suggest(plans []ActivePlan, completed map[string]bool, hour, limit int) []Suggestion {
	if limit <= 0 {
		return nil
	}

	priority := map[Type]bool{}
	for _, t := range PriorityTypes(hour) {
		priority[t] = true
	}

	var out []Suggestion
	collect := func(wantPriority bool) {
		for _, p := range plans {
			if len(out) >= limit {
				return
			}
			if priority[p.Type] != wantPriority {
				continue
			}
			for _, item := range ExtractItems(p.Data, p.Type) {
				if completed[item.Identifier] {
					continue
				}
				out = append(out, Suggestion{
					PlanType:   p.Type,
					Identifier: item.Identifier,
					Item:       item.Description,
					Reason:     reasonFor(hour, p.Type),
				})
				break
			}
		}
	}

	collect(true)
	collect(false)
	return out
}
