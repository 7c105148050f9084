package tokens

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Tiktoken counts tokens with the OpenAI tokenizer for a model.
type Tiktoken struct {
	model string
	codec tokenizer.Codec
}

// NewTiktoken loads the tokenizer for model, falling back to the
// encoding of its model family when the exact model is unknown.
func NewTiktoken(model string) (*Tiktoken, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(model)))
	if err == nil {
		return &Tiktoken{model: model, codec: codec}, nil
	}

	codec, err = tokenizer.Get(modelToEncoding(model))
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}
	return &Tiktoken{model: model, codec: codec}, nil
}

// NewCounter returns a tiktoken counter for model, or the estimator when
// no encoding can be loaded.
func NewCounter(model string) Counter {
	if t, err := NewTiktoken(model); err == nil {
		return t
	}
	return NewEstimator()
}

func (t *Tiktoken) Model() string { return t.model }

func (t *Tiktoken) CountText(text string) int {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return NewEstimator().CountText(text)
	}
	return len(ids)
}

// modelToEncoding maps model names to encoding names for fallback.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O-series and newer models
// - Cl100kBase: GPT-4, GPT-3.5-turbo
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
