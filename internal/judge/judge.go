// Package judge implements deterministic answer checking for structured
// cards whose answers are a fixed set of canonical terms.
//
// Each canonical term carries a set of spoken aliases (abbreviations,
// alternate phrasings). The judge normalizes the transcript and checks which
// canonical terms are covered by at least one alias, producing a verdict
// that maps onto Anki's four-button ease scale.
//
// Unlike LLM-based grading, the judge is pure and instant — it is the
// preferred grading path for enumeration-style cards where the expected
// answer is known exactly.
package judge

import (
	"slices"
	"strings"

	"github.com/ankivoice/ankivoice/internal/cardtext"
)

// Verdict classifies how completely a transcript covered the expected terms.
type Verdict string

const (
	// VerdictCorrect means every canonical term was found.
	VerdictCorrect Verdict = "correct"

	// VerdictPartial means all but one term was found (minimum one hit).
	VerdictPartial Verdict = "partial"

	// VerdictWrong means two or more terms were missing.
	VerdictWrong Verdict = "wrong"
)

// TermSet maps each canonical term to its accepted aliases. The canonical
// term itself always counts as an alias and does not need to be repeated.
type TermSet map[string][]string

// Result is the outcome of judging a transcript against a [TermSet].
type Result struct {
	// Verdict summarises coverage of the expected terms.
	Verdict Verdict

	// Hits lists the canonical terms found in the transcript.
	Hits []string

	// Missing lists the canonical terms not found. Empty for VerdictCorrect.
	Missing []string
}

// Judge checks how many canonical terms from terms appear in transcript.
//
// The transcript and every alias are normalized via [cardtext.Normalize]
// before substring matching, so punctuation and case differences between
// speech and card text never cause a miss. A canonical term is hit when the
// normalized transcript contains the term itself or any of its aliases.
//
// Verdict rules:
//   - all terms hit → [VerdictCorrect]
//   - at least max(1, n-1) terms hit → [VerdictPartial]
//   - otherwise → [VerdictWrong]
//
// An empty TermSet yields VerdictCorrect with no hits or misses.
func Judge(transcript string, terms TermSet) Result {
	txt := cardtext.Normalize(transcript)

	hitSet := make(map[string]struct{}, len(terms))
	for canon, aliases := range terms {
		for _, a := range append([]string{canon}, aliases...) {
			na := cardtext.Normalize(a)
			if na == "" {
				continue
			}
			if containsNormalized(txt, na) {
				hitSet[canon] = struct{}{}
				break
			}
		}
	}

	hits := make([]string, 0, len(hitSet))
	missing := make([]string, 0, len(terms)-len(hitSet))
	for canon := range terms {
		if _, ok := hitSet[canon]; ok {
			hits = append(hits, canon)
		} else {
			missing = append(missing, canon)
		}
	}
	// Map iteration order is random; sort for stable output.
	slices.Sort(hits)
	slices.Sort(missing)

	var verdict Verdict
	switch {
	case len(hits) == len(terms):
		verdict = VerdictCorrect
	case len(hits) >= max(1, len(terms)-1):
		verdict = VerdictPartial
	default:
		verdict = VerdictWrong
	}

	return Result{Verdict: verdict, Hits: hits, Missing: missing}
}

// EaseFromVerdict maps a verdict and the STT confidence of the transcript to
// an Anki ease button:
//
//	correct + confidence > 0.85 → 4 (Easy)
//	correct                     → 3 (Good)
//	partial                     → 2 (Hard)
//	wrong                       → 1 (Again)
func EaseFromVerdict(verdict Verdict, confidence float64) int {
	switch {
	case verdict == VerdictCorrect && confidence > 0.85:
		return 4
	case verdict == VerdictCorrect:
		return 3
	case verdict == VerdictPartial:
		return 2
	default:
		return 1
	}
}

// containsNormalized reports whether needle occurs in haystack on word
// boundaries. Both strings must already be normalized. Boundary checking
// prevents "mmtc" from matching inside "communication" style accidents with
// short aliases.
func containsNormalized(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	offset := 0
	for offset <= len(haystack)-len(needle) {
		i := strings.Index(haystack[offset:], needle)
		if i < 0 {
			return false
		}
		i += offset
		beforeOK := i == 0 || haystack[i-1] == ' '
		after := i + len(needle)
		afterOK := after == len(haystack) || haystack[after] == ' '
		if beforeOK && afterOK {
			return true
		}
		offset = i + 1
	}
	return false
}
