// Package phonetic matches misheard phrases against a fixed vocabulary using
// Double Metaphone codes and Jaro-Winkler similarity.
//
// A phrase is a candidate for a term when both start with the same letter and
// their lengths (ignoring spaces) are close. Candidates whose phonetic codes
// overlap with the term's need a Jaro-Winkler score of at least the phonetic
// threshold; all others need the higher fuzzy threshold.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum score for a phonetically similar
// candidate. Default 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum score for a candidate without phonetic
// overlap. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

type term struct {
	text   string
	lower  string
	concat string
	words  int
	codes  map[string]struct{}
}

// Matcher holds a prepared vocabulary. It is read-only after [New] and safe
// for concurrent use.
type Matcher struct {
	terms    []term
	maxWords int

	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New prepares vocabulary for matching. Blank entries are ignored.
func New(vocabulary []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		tokens := strings.Fields(lower)
		m.terms = append(m.terms, term{
			text:   v,
			lower:  strings.Join(tokens, " "),
			concat: strings.Join(tokens, ""),
			words:  len(tokens),
			codes:  codes(tokens),
		})
		m.maxWords = max(m.maxWords, len(tokens))
	}
	return m
}

// MaxWords returns the word count of the longest term.
func (m *Matcher) MaxWords() int { return m.maxWords }

// Match returns the vocabulary term phrase most likely stands for. A phrase
// may have one word more than the term, since a single unfamiliar word is
// often heard as two. When matched is false, corrected is phrase unchanged.
func (m *Matcher) Match(phrase string) (corrected string, confidence float64, matched bool) {
	tokens := strings.Fields(strings.ToLower(phrase))
	if len(tokens) == 0 {
		return phrase, 0, false
	}
	full := strings.Join(tokens, " ")
	concat := strings.Join(tokens, "")
	inputCodes := codes(tokens)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range m.terms {
		t := &m.terms[i]
		if len(tokens) < t.words || len(tokens) > t.words+1 {
			continue
		}
		if concat[0] != t.concat[0] || !closeLength(concat, t.concat) {
			continue
		}

		score := max(matchr.JaroWinkler(full, t.lower, false), matchr.JaroWinkler(concat, t.concat, false))
		phonetic := overlap(inputCodes, t.codes)
		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = t, score, true
			}
		case !phonetic && !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = t, score
		}
	}
	if best == nil {
		return phrase, 0, false
	}
	return best.text, bestScore, true
}

// closeLength reports whether a and b differ in length by at most a third of
// b.
func closeLength(a, b string) bool {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	d := la - lb
	if d < 0 {
		d = -d
	}
	return d <= lb/3
}

// codes returns the Double Metaphone codes of every token and of the tokens
// joined together.
func codes(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens)*2+2)
	add := func(s string) {
		p, alt := matchr.DoubleMetaphone(s)
		if p != "" {
			out[p] = struct{}{}
		}
		if alt != "" {
			out[alt] = struct{}{}
		}
	}
	for _, t := range tokens {
		add(t)
	}
	if len(tokens) > 1 {
		add(strings.Join(tokens, ""))
	}
	return out
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
