package stage

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Text is a message prepared for keyword matching. Matching ignores case
// and accents and only hits whole words, so "oi" does not match "depois".
type Text struct {
	raw    string
	folded string
	padded string
}

// NewText prepares s for matching.
func NewText(s string) Text {
	folded := Fold(s)
	return Text{
		raw:    s,
		folded: folded,
		padded: " " + strings.Join(wordsOf(folded), " ") + " ",
	}
}

// Raw returns the text as supplied.
func (t Text) Raw() string { return t.raw }

// Folded returns the lowercase, accent-free text with punctuation intact.
func (t Text) Folded() string { return t.folded }

// Blank reports whether the text has no letters or digits.
func (t Text) Blank() bool { return strings.TrimSpace(t.padded) == "" }

// Has reports whether phrase occurs as a whole-word sequence.
func (t Text) Has(phrase string) bool {
	p := strings.Join(wordsOf(Fold(phrase)), " ")
	if p == "" {
		return false
	}
	return strings.Contains(t.padded, " "+p+" ")
}

// HasPrefix reports whether any word in the text starts with prefix.
func (t Text) HasPrefix(prefix string) bool {
	p := Fold(prefix)
	return p != "" && strings.Contains(t.padded, " "+p)
}

// HasAny reports whether any phrase occurs.
func (t Text) HasAny(phrases []string) bool {
	for _, p := range phrases {
		if t.Has(p) {
			return true
		}
	}
	return false
}

// Count returns how many distinct phrases occur.
func (t Text) Count(phrases []string) int {
	n := 0
	for _, p := range phrases {
		if t.Has(p) {
			n++
		}
	}
	return n
}

// Fold lowercases s, strips diacritics and collapses whitespace.
func Fold(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

func wordsOf(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
