// Package llmcorrect is the language-model stage of transcript correction.
// It catches the vocabulary mishearings the phonetic matcher cannot, using a
// conservative prompt that allows only substitutions of known terms.
//
// The [Corrector] never runs on the real-time voice path; the review loop
// invokes it in the background, so its round-trip latency does not delay
// intent handling. Robustness over precision: an unparseable model reply
// degrades to the original text with no error, and every substitution the
// model makes without declaring it is reverted before the result leaves the
// package.
package llmcorrect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ankivoice/ankivoice/pkg/provider/llm"
	"github.com/ankivoice/ankivoice/pkg/types"
)

const defaultTemperature = 0.1

// The term list is appended per request so each call carries the vocabulary
// of the card under review.
const systemPromptTemplate = `You are a transcript correction assistant for a spoken flashcard review session.

Your task: fix mishearings of the known terms in the provided transcript text.

Rules:
- ONLY correct words that appear to be misheard versions of the known terms listed below (spoken review commands and deck vocabulary).
- Do NOT change ordinary English words, grammar, punctuation, or sentence structure.
- Be conservative — if you are not confident a word is a misheard known term, leave it unchanged.
- Preserve the original capitalisation style of the surrounding text where possible.
- Terms in the corrected text should match the canonical spelling from the term list exactly.

Known terms:
%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "corrected_text": "<full corrected transcript>",
  "corrections": [
    {"original": "<original word>", "corrected": "<corrected word>", "confidence": <0.0-1.0>}
  ]
}

If no corrections are needed, return an empty corrections array and corrected_text equal to the input.`

// Correction is a single word-level substitution the model declared and the
// verifier confirmed. The pipeline records these with Method "llm".
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// wireCorrection and wireResponse mirror the JSON contract the prompt asks
// the model to follow.
type wireCorrection struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
}

type wireResponse struct {
	CorrectedText string           `json:"corrected_text"`
	Corrections   []wireCorrection `json:"corrections"`
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithTemperature overrides the sampling temperature. Default 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// Corrector fixes term mishearings in transcript text through an
// [llm.Provider]. Model choice belongs to the provider: construct it with the
// model you want rather than overriding per request.
//
// Corrector is safe for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
}

// New returns a [Corrector] backed by provider.
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct asks the model to fix mishearings of terms in text.
// lowConfidenceSpans, when present, are named in the user message as the
// words most likely to be wrong.
//
// The reply is verified token by token against the declared corrections;
// undeclared edits are reverted. A reply that fails to parse degrades to
// (text, nil, nil). Transport failures and context cancellation surface as
// errors.
func (c *Corrector) Correct(
	ctx context.Context,
	text string,
	terms []string,
	lowConfidenceSpans []string,
) (string, []Correction, error) {
	if len(terms) == 0 {
		return text, nil, nil
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: promptWithTerms(terms),
		Temperature:  c.temperature,
		Messages: []types.Message{
			{Role: "user", Content: userMessage(text, lowConfidenceSpans)},
		},
	})
	if err != nil {
		return text, nil, fmt.Errorf("llm corrector: complete: %w", err)
	}

	corrected, corrections, ok := decodeReply(resp.Content, text)
	if !ok {
		return text, nil, nil
	}

	verified, confirmed := verifyCorrectedText(text, corrected, corrections)
	return verified, confirmed, nil
}

func promptWithTerms(terms []string) string {
	var sb strings.Builder
	for _, t := range terms {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	return fmt.Sprintf(systemPromptTemplate, sb.String())
}

func userMessage(text string, suspects []string) string {
	if len(suspects) == 0 {
		return text
	}
	return fmt.Sprintf(
		"Transcript: %s\n\nLow-confidence spans that may be misheard: %s",
		text, strings.Join(suspects, ", "))
}

// decodeReply parses the model's JSON, tolerating markdown code fences.
// ok is false when the reply is not usable JSON. Self-identical and
// empty-original entries in the corrections list are dropped.
func decodeReply(content, originalText string) (string, []Correction, bool) {
	var r wireResponse
	if err := json.Unmarshal([]byte(unfence(content)), &r); err != nil {
		return "", nil, false
	}
	if r.CorrectedText == "" {
		return originalText, nil, true
	}

	corrections := make([]Correction, 0, len(r.Corrections))
	for _, wc := range r.Corrections {
		if wc.Original == "" || wc.Original == wc.Corrected {
			continue
		}
		corrections = append(corrections, Correction(wc))
	}
	return r.CorrectedText, corrections, true
}

// unfence strips the ```json fences some models wrap JSON output in.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
