package intent

import "strings"

// leadingWindow is the number of leading tokens in which a grade match may
// begin. Command templates are anchored at token 0 and a bare grade word is
// only recognized as the very first token, so the window is enforced
// structurally; the constant exists to bound template scanning.
const leadingWindow = 3

// Parser classifies utterances. The zero value is not usable; construct with
// NewParser. A Parser is immutable after construction and safe for concurrent
// use.
type Parser struct {
	gradeWords map[string]int
	templates  [][]string
	cueWords   map[string]struct{}
	cuePhrases [][]string
}

// Option extends the parser vocabulary at construction time.
type Option func(*Parser)

// WithGradeWords adds words to the grade table. Values outside 1..4 are
// ignored. Existing entries may be overridden.
func WithGradeWords(words map[string]int) Option {
	return func(p *Parser) {
		for w, ease := range words {
			if ease < 1 || ease > 4 {
				continue
			}
			p.gradeWords[strings.ToLower(w)] = ease
		}
	}
}

// WithQuestionCues adds question cue words or phrases. Cues are matched
// whole-word (single words) or as consecutive-token phrases.
func WithQuestionCues(cues ...string) Option {
	return func(p *Parser) {
		for _, c := range cues {
			p.addCue(c)
		}
	}
}

// NewParser builds a Parser with the default vocabulary plus any options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		gradeWords: make(map[string]int, len(defaultGradeWords)),
		cueWords:   make(map[string]struct{}),
	}
	for w, ease := range defaultGradeWords {
		p.gradeWords[w] = ease
	}
	p.templates = append(p.templates, defaultTemplates...)
	for _, c := range defaultQuestionCues {
		p.addCue(c)
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Parser) addCue(cue string) {
	n := Normalize(cue)
	switch len(n.Tokens) {
	case 0:
	case 1:
		p.cueWords[n.Tokens[0]] = struct{}{}
	default:
		p.cuePhrases = append(p.cuePhrases, n.Tokens)
	}
}

// Parse classifies a raw utterance. It is total over all string inputs:
// unrecognized, empty, or non-ASCII text falls through to Ambiguous. Calling
// Parse twice on the same string yields identical results.
func (p *Parser) Parse(raw string) Intent {
	n := Normalize(raw)
	if len(n.Tokens) == 0 {
		return Ambiguous{}
	}

	if ease, span, ok := p.matchGrade(n); ok {
		return Grade{Ease: ease, MatchedSpan: span, SourceText: raw}
	}
	if p.matchQuestion(n) {
		return Question{SourceText: raw}
	}
	return Ambiguous{}
}

// matchGrade scans the bounded leading window for a grade. A grade-shaped
// word appearing later in the utterance never produces a grade, so trailing
// qualifiers ("... but why is it good") don't override an intended question.
func (p *Parser) matchGrade(n Normalized) (ease int, span string, ok bool) {
	tokens := n.Tokens
	if len(tokens) == 0 {
		return 0, "", false
	}

	// Command template anchored at token 0, longest templates first:
	// template, optional article, then a grade word or number.
	for _, tpl := range p.templates {
		if len(tpl) > leadingWindow || !hasPrefix(tokens, tpl) {
			continue
		}
		idx := len(tpl)
		if idx < len(tokens) && (tokens[idx] == "a" || tokens[idx] == "an") {
			idx++
		}
		if idx < len(tokens) {
			if e, found := p.gradeWords[tokens[idx]]; found {
				return e, strings.Join(tokens[:idx+1], " "), true
			}
		}
	}

	// Bare grade word or number as the very first token.
	if e, found := p.gradeWords[tokens[0]]; found {
		return e, tokens[0], true
	}

	return 0, "", false
}

// matchQuestion scans the entire normalized text, unlike the grade matcher's
// leading-window restriction: a cue may appear after other words.
func (p *Parser) matchQuestion(n Normalized) bool {
	if n.EndsWithQuestion {
		return true
	}
	for _, tok := range n.Tokens {
		if _, found := p.cueWords[tok]; found {
			return true
		}
	}
	for _, phrase := range p.cuePhrases {
		if containsPhrase(n.Tokens, phrase) {
			return true
		}
	}
	return false
}

// hasPrefix reports whether tokens begins with the given prefix tokens.
func hasPrefix(tokens, prefix []string) bool {
	if len(tokens) < len(prefix) {
		return false
	}
	for i, w := range prefix {
		if tokens[i] != w {
			return false
		}
	}
	return true
}

// containsPhrase reports whether phrase occurs as consecutive tokens.
func containsPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(tokens) < len(phrase) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// defaultParser backs the package-level Parse for callers that don't need
// vocabulary extensions.
var defaultParser = NewParser()

// Parse classifies raw with the default vocabulary.
func Parse(raw string) Intent {
	return defaultParser.Parse(raw)
}
