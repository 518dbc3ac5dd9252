// Package phonetic matches misheard words against a known term list. It is
// the in-process first stage of transcript correction: Double Metaphone
// narrows the term list to words that sound alike, and Jaro-Winkler
// similarity on the spellings picks the winner.
//
// A term that sounds like the input only has to clear the lower phonetic
// threshold (default 0.70). When nothing sounds alike, a pure-similarity
// fallback runs with a stricter threshold (default 0.85) so the matcher does
// not invent corrections for unrelated words.
//
// Multi-word phrases work on both sides: the input may be an n-gram window
// ("crabs cycle") and terms may be phrases ("mark as hard"). Phonetic codes
// are compared per token, similarity across whole strings, concatenations,
// and the best token pair.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity a sound-alike term needs.
// Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum similarity for the no-sound-alike
// fallback. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher implements [transcript.PhoneticMatcher]. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] with the default thresholds, adjusted by opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the term most phonetically similar to word, which may be a
// single word or a space-separated phrase. When matched is false, corrected
// echoes word and confidence is 0.
//
// Sound-alike terms always beat fallback-only terms: a fuzzy candidate is
// kept only while no phonetic candidate has been seen.
func (m *Matcher) Match(word string, terms []string) (corrected string, confidence float64, matched bool) {
	input := strings.ToLower(strings.TrimSpace(word))
	if input == "" || len(terms) == 0 {
		return word, 0, false
	}
	inputTokens := strings.Fields(input)
	inputCodes := metaphoneSet(inputTokens)

	var (
		bestTerm     string
		bestScore    float64
		bestPhonetic bool
	)
	for _, term := range terms {
		lower := strings.ToLower(strings.TrimSpace(term))
		if lower == "" {
			continue
		}
		termTokens := strings.Fields(lower)

		score := similarity(inputTokens, termTokens, input, lower)
		soundAlike := overlaps(inputCodes, metaphoneSet(termTokens))

		switch {
		case soundAlike && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				bestTerm, bestScore, bestPhonetic = term, score, true
			}
		case !soundAlike && !bestPhonetic:
			if score >= m.fuzzyThreshold && score > bestScore {
				bestTerm, bestScore = term, score
			}
		}
	}

	if bestTerm == "" {
		return word, 0, false
	}
	return bestTerm, bestScore, true
}

// metaphoneSet is the union of Double Metaphone codes over tokens. Tokens
// that encode to nothing contribute nothing.
func metaphoneSet(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the highest Jaro-Winkler score across three views of the
// pair: the full strings, the space-stripped strings, and every token pair.
// The stripped view handles word-boundary drift ("grayed it" vs "grade it");
// the token pairs handle one spoken word landing on one term word.
func similarity(inputTokens, termTokens []string, inputFull, termFull string) float64 {
	score := matchr.JaroWinkler(inputFull, termFull, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		stripped := matchr.JaroWinkler(
			strings.Join(inputTokens, ""),
			strings.Join(termTokens, ""),
			false)
		if stripped > score {
			score = stripped
		}
	}

	for _, in := range inputTokens {
		for _, tt := range termTokens {
			if s := matchr.JaroWinkler(in, tt, false); s > score {
				score = s
			}
		}
	}
	return score
}
