// Package transcript repairs roadmap vocabulary in live transcripts.
//
// Speech recognition rarely knows names like "Solana" or "DeFi Llama" and
// writes what it heard instead ("salona", "defi lama"). A [Corrector] scans
// the user's transcript for phrases that sound like a vocabulary term and
// substitutes the term. Model transcripts are left alone; the model spells the
// names it was given.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/peridot-guide/internal/transcript/phonetic"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
)

// Correction records one substitution.
type Correction struct {
	// Original is the phrase as transcribed, without surrounding punctuation.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score of the match, 0 to 1.
	Confidence float64
}

// Corrector substitutes vocabulary terms for phrases that sound like them.
// It is safe for concurrent use.
type Corrector struct {
	m *phonetic.Matcher
}

// New returns a Corrector for vocabulary.
func New(vocabulary []string, opts ...phonetic.Option) *Corrector {
	return &Corrector{m: phonetic.New(vocabulary, opts...)}
}

// Fix corrects the text of a user transcript and returns every other
// transcript unchanged.
func (c *Corrector) Fix(t s2s.Transcript) (s2s.Transcript, []Correction) {
	if t.Role != s2s.RoleUser {
		return t, nil
	}
	text, corrections := c.Correct(t.Text)
	t.Text = text
	return t, corrections
}

// Correct returns text with matched phrases replaced. At each word it tries
// the longest window first, so multi-word terms win over partial matches.
// Whitespace is normalised to single spaces.
func (c *Corrector) Correct(text string) (string, []Correction) {
	tokens := strings.Fields(text)
	maxWords := c.m.MaxWords()
	if len(tokens) == 0 || maxWords == 0 {
		return text, nil
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		n := min(maxWords+1, len(tokens)-i)
		matched := false
		for ; n >= 1; n-- {
			if splitsPhrase(tokens[i : i+n-1]) {
				continue
			}
			lead, core, trail := splitPunct(tokens[i : i+n])
			if core == "" {
				continue
			}
			term, conf, ok := c.m.Match(core)
			if !ok {
				continue
			}
			out = append(out, lead+term+trail)
			if term != core {
				corrections = append(corrections, Correction{Original: core, Corrected: term, Confidence: conf})
			}
			i += n
			matched = true
			break
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " "), corrections
}

// splitPunct joins window and separates the punctuation before its first
// letter and after its last one.
func splitPunct(window []string) (lead, core, trail string) {
	s := strings.Join(window, " ")
	start := strings.IndexFunc(s, isWordRune)
	if start < 0 {
		return s, "", ""
	}
	end := strings.LastIndexFunc(s, isWordRune)
	_, size := utf8.DecodeRuneInString(s[end:])
	lead, core, trail = s[:start], s[start:end+size], s[end+size:]
	for _, suffix := range []string{"'s", "’s"} {
		if stem, ok := strings.CutSuffix(core, suffix); ok && stem != "" {
			return lead, stem, suffix + trail
		}
	}
	return lead, core, trail
}

// splitsPhrase reports whether any of tokens ends in punctuation, which
// separates it from the word after it.
func splitsPhrase(tokens []string) bool {
	for _, t := range tokens {
		r, _ := utf8.DecodeLastRuneInString(t)
		if !isWordRune(r) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
