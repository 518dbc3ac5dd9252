package intent

import (
	"strings"
	"unicode"
)

// Normalized is the derived form of a raw utterance used by both matchers.
// It is call-scoped and never persisted.
type Normalized struct {
	// Text is the cleaned utterance: lowercase, trimmed, internal whitespace
	// collapsed, terminal punctuation stripped.
	Text string

	// Tokens is Text split on whitespace, with surrounding punctuation
	// stripped per token so whole-word matching is structural. Internal
	// apostrophes are preserved ("don't" stays one token).
	Tokens []string

	// EndsWithQuestion is set when the raw utterance ended with a question
	// mark (before terminal punctuation stripping).
	EndsWithQuestion bool
}

// Normalize converts a raw utterance into its Normalized form. It is total:
// every string, including empty, produces a valid (possibly empty) result.
func Normalize(raw string) Normalized {
	s := strings.ToLower(strings.TrimSpace(raw))

	// Strip terminal punctuation, noting a trailing question mark. Anything
	// that is not a letter or digit counts as punctuation here; the flag is
	// set if a '?' appears anywhere in the stripped tail ("what??!" counts).
	endsWithQuestion := false
	s = strings.TrimRightFunc(s, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		if r == '?' {
			endsWithQuestion = true
		}
		return true
	})

	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tok := trimTokenPunct(f)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}

	return Normalized{
		Text:             strings.Join(tokens, " "),
		Tokens:           tokens,
		EndsWithQuestion: endsWithQuestion,
	}
}

// trimTokenPunct strips leading and trailing punctuation from a single token.
// Punctuation inside the token (apostrophes, hyphens, slashes) is preserved.
func trimTokenPunct(tok string) string {
	return strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
