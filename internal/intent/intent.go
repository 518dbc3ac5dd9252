// Package intent classifies a transcribed review utterance into one of three
// actionable outcomes: an explicit grade (ease 1–4), a follow-up question to
// relay to the assistant, or an ambiguous result that makes the caller
// re-prompt.
//
// The classifier is a pure function of its input string: all lookup tables
// (grade words, command templates, question cues) are built once at parser
// construction and never mutated, so a single Parser is safe for concurrent
// use by any number of goroutines. Extending the vocabulary is a data change
// via the With* options, not a code change.
package intent

// Intent is the closed result variant of a classification call. Exactly one
// of Grade, Question, or Ambiguous is produced per call; callers should
// switch exhaustively over the three types.
type Intent interface {
	intent()
}

// Grade is an explicit review grade extracted from the utterance.
type Grade struct {
	// Ease is the review grade, always in 1..4 (1=again, 2=hard, 3=good, 4=easy).
	Ease int

	// MatchedSpan is the normalized token span that produced the grade,
	// e.g. "mark as hard" or "good".
	MatchedSpan string

	// SourceText is the exact original input, before normalization.
	SourceText string
}

// Question is a follow-up question to forward to the answering assistant.
type Question struct {
	// SourceText is the exact original input, before normalization.
	SourceText string
}

// Ambiguous is the fallback when neither a grade nor a question is
// confidently identified. The caller should re-prompt the user.
type Ambiguous struct{}

func (Grade) intent()     {}
func (Question) intent()  {}
func (Ambiguous) intent() {}

// Kind returns a stable label for an Intent value, for logging and metrics.
func Kind(in Intent) string {
	switch in.(type) {
	case Grade:
		return "grade"
	case Question:
		return "question"
	default:
		return "ambiguous"
	}
}
