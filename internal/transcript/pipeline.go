// Package transcript repairs STT mistakes in the review vocabulary before a
// transcript reaches intent classification.
//
// Short spoken commands and deck-specific terminology fare badly in general
// speech models: "grade it" comes back as "grayed it", answer terms turn into
// near-homophones. Correction runs in two stages. A phonetic matcher aligns
// suspicious words against the known term list in-process, adding no latency
// to the review loop. Words it cannot resolve with enough confidence go to a
// language model together with the term list.
//
// Every substitution is recorded as a [Correction] naming the stage that made
// it, so callers can audit or surface the changes.
package transcript

import (
	"context"

	"github.com/ankivoice/ankivoice/pkg/types"
)

// Correction is one word-level substitution.
type Correction struct {
	// Original as the STT provider heard it.
	Original string

	// Corrected replacement taken from the term list.
	Corrected string

	// Confidence in [0.0, 1.0]. Above 0.9 is treated as certain, below 0.5
	// as speculative.
	Confidence float64

	// Method is the stage that made the substitution: "phonetic" or "llm".
	Method string
}

// CorrectedTranscript pairs the raw transcript with its corrected text and
// the substitutions that produced it.
type CorrectedTranscript struct {
	// Original transcript from the STT provider, untouched.
	Original types.Transcript

	// Corrected full text, ready for intent classification and judging.
	Corrected string

	// Corrections applied, in order. Empty but non-nil when nothing changed.
	Corrections []Correction
}

// Pipeline corrects one transcript against a term list. Implementations must
// be safe for concurrent use.
type Pipeline interface {
	// Correct resolves transcript against terms — the spoken review commands
	// plus the current card's answer terms — and returns the corrected text
	// with an itemized record of changes. The result is never nil on success;
	// when nothing needed fixing, Corrected equals transcript.Text and
	// Corrections is empty but non-nil.
	Correct(ctx context.Context, transcript types.Transcript, terms []string) (*CorrectedTranscript, error)
}

// PhoneticMatcher maps one heard word or phrase to the known term it most
// sounds like. It is the fast first stage: no network, no model round-trips.
// Implementations must be safe for concurrent use.
type PhoneticMatcher interface {
	// Match returns the closest term, its similarity in [0.0, 1.0], and
	// whether the similarity cleared the implementation's threshold. When
	// matched is false, corrected is word unchanged and confidence is 0.
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}
