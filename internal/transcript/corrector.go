package transcript

import (
	"context"
	"strings"

	"github.com/ankivoice/ankivoice/internal/transcript/llmcorrect"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// Words scoring below this are handed to the LLM stage unless the phonetic
// stage already replaced them.
const defaultLLMConfidenceThreshold = 0.5

// PipelineOption configures a [CorrectionPipeline].
type PipelineOption func(*CorrectionPipeline)

// WithPhoneticMatcher enables the phonetic first stage. A nil matcher leaves
// the stage off.
func WithPhoneticMatcher(m PhoneticMatcher) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.phonetic = m
	}
}

// WithLLMCorrector enables the LLM second stage. A nil corrector leaves the
// stage off.
func WithLLMCorrector(c *llmcorrect.Corrector) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmCorrector = c
	}
}

// WithLLMOnLowConfidence sets the per-word STT confidence below which a word
// is escalated to the LLM stage. Default 0.5.
//
// A transcript without a Words slice has no per-word scores, so the LLM stage
// always runs for it when configured.
func WithLLMOnLowConfidence(threshold float64) PipelineOption {
	return func(p *CorrectionPipeline) {
		p.llmThreshold = threshold
	}
}

// CorrectionPipeline implements [Pipeline] as two optional stages applied in
// order: phonetic term alignment, then LLM review of low-confidence words.
//
// CorrectionPipeline is safe for concurrent use.
type CorrectionPipeline struct {
	phonetic     PhoneticMatcher
	llmCorrector *llmcorrect.Corrector
	llmThreshold float64
}

var _ Pipeline = (*CorrectionPipeline)(nil)

// NewPipeline builds a pipeline with both stages disabled; activate them with
// [WithPhoneticMatcher] and [WithLLMCorrector].
func NewPipeline(opts ...PipelineOption) *CorrectionPipeline {
	p := &CorrectionPipeline{
		llmThreshold: defaultLLMConfidenceThreshold,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Correct runs the configured stages over t against the known term list and
// reports every substitution that was made.
//
// The phonetic stage scans the token stream with n-gram windows so multi-word
// terms ("grade it", "krebs cycle") win over their single-word fragments. The
// LLM stage then sees the phonetic stage's output plus the words whose STT
// confidence fell below the threshold and were not already replaced.
// Cancelling ctx aborts the LLM stage.
func (p *CorrectionPipeline) Correct(
	ctx context.Context,
	t types.Transcript,
	terms []string,
) (*CorrectedTranscript, error) {
	text := t.Text
	corrections := []Correction{}

	if p.phonetic != nil && len(terms) > 0 {
		text, corrections = p.alignTerms(text, terms)
	}

	if p.llmCorrector != nil && len(terms) > 0 {
		suspect := p.suspectWords(t.Words, corrections)
		// Without per-word scores every word is potentially suspect.
		if len(t.Words) == 0 || len(suspect) > 0 {
			reviewed, llmCorrs, err := p.llmCorrector.Correct(ctx, text, terms, suspect)
			if err != nil {
				return nil, err
			}
			text = reviewed
			for _, c := range llmCorrs {
				corrections = append(corrections, Correction{
					Original:   c.Original,
					Corrected:  c.Corrected,
					Confidence: c.Confidence,
					Method:     "llm",
				})
			}
		}
	}

	return &CorrectedTranscript{
		Original:    t,
		Corrected:   text,
		Corrections: corrections,
	}, nil
}

// alignTerms replaces phonetic near-misses of known terms in text. At each
// token it tries the widest window first, down to a single token, and accepts
// the first match so a multi-word term consumes all of its tokens.
func (p *CorrectionPipeline) alignTerms(text string, terms []string) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, []Correction{}
	}

	widest := 1
	for _, term := range terms {
		if n := len(strings.Fields(term)); n > widest {
			widest = n
		}
	}

	out := make([]string, 0, len(tokens))
	corrections := []Correction{}
	for i := 0; i < len(tokens); {
		term, conf, consumed := p.matchWindow(tokens[i:], widest, terms)
		if consumed == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}
		out = append(out, strings.Fields(term)...)
		corrections = append(corrections, Correction{
			Original:   strings.Join(tokens[i:i+consumed], " "),
			Corrected:  term,
			Confidence: conf,
			Method:     "phonetic",
		})
		i += consumed
	}
	return strings.Join(out, " "), corrections
}

// matchWindow tries n-gram windows over the head of tokens, widest first, and
// reports how many tokens the winning match consumed (0 when nothing matched).
func (p *CorrectionPipeline) matchWindow(tokens []string, widest int, terms []string) (term string, conf float64, consumed int) {
	if widest > len(tokens) {
		widest = len(tokens)
	}
	for n := widest; n >= 1; n-- {
		window := strings.Join(tokens[:n], " ")
		if t, c, ok := p.phonetic.Match(window, terms); ok {
			return t, c, n
		}
	}
	return "", 0, 0
}

// suspectWords returns the words whose STT confidence is below the threshold,
// skipping any the phonetic stage already replaced.
func (p *CorrectionPipeline) suspectWords(words []types.WordDetail, applied []Correction) []string {
	replaced := make(map[string]struct{}, len(applied))
	for _, c := range applied {
		replaced[strings.ToLower(c.Original)] = struct{}{}
	}

	var suspect []string
	for _, w := range words {
		if _, done := replaced[strings.ToLower(w.Word)]; done {
			continue
		}
		if w.Confidence < p.llmThreshold {
			suspect = append(suspect, w.Word)
		}
	}
	return suspect
}
