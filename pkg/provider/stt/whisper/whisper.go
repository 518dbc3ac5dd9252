// Package whisper adapts a local whisper-server (the whisper.cpp REST
// binary) to the streaming stt.Provider contract.
//
// whisper.cpp transcribes whole utterances, not rolling audio, so the
// provider fakes the stream: it gates incoming PCM with an RMS energy
// detector, collects one utterance at a time, and posts each finished
// utterance to POST /inference as a WAV upload. Reviewer utterances are
// short (a grade word, or one spoken question) so the buffer rarely grows
// past a couple of seconds.
//
// Deck vocabulary reaches the engine through whisper's initial prompt:
// keyword boosts from the stream config (and later SetKeywords calls) are
// folded into a prompt string sent with every inference, which biases
// decoding toward the deck's terms. Boost magnitudes beyond presence are
// not expressible this way; a keyword either appears in the prompt or not.
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ankivoice/ankivoice/pkg/provider/stt"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// Audio is 16-bit signed little-endian PCM throughout.
const sampleBytes = 2

const (
	// voicedRMS is the energy gate: chunks whose RMS (in raw 16-bit sample
	// units, max 32767) falls below it count as silence.
	voicedRMS = 300.0

	defaultLanguage    = "en"
	defaultSampleRate  = 16000
	defaultEndSilence  = 500 * time.Millisecond
	defaultMaxBuffered = 10 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel names the model the server should use for this provider's
// sessions ("base.en", "small", ...). Empty leaves the server's default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the transcription language code ("en", "de", ...).
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the PCM sample rate the provider expects from
// SendAudio, in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets how much trailing silence ends an utterance.
// Lower values answer faster but can split a slow question in two.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.endSilence = time.Duration(ms) * time.Millisecond }
}

// WithMaxBufferDurationMs caps how much continuous speech may accumulate
// before an inference is forced, bounding memory during a monologue.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBuffered = time.Duration(ms) * time.Millisecond }
}

// Provider talks to one whisper-server instance. It is safe to open many
// sessions; each one buffers and flushes independently.
type Provider struct {
	serverURL   string
	model       string
	language    string
	sampleRate  int
	endSilence  time.Duration
	maxBuffered time.Duration
	client      *http.Client
}

// New returns a Provider bound to the whisper-server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server URL is required")
	}
	p := &Provider{
		serverURL:   strings.TrimRight(serverURL, "/"),
		language:    defaultLanguage,
		sampleRate:  defaultSampleRate,
		endSilence:  defaultEndSilence,
		maxBuffered: defaultMaxBuffered,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session. Keyword boosts in cfg seed the vocabulary
// prompt; SetKeywords replaces it later. No network traffic happens until
// the first utterance completes.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = p.sampleRate
	}
	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}

	s := &stream{
		provider:   p,
		language:   lang,
		sampleRate: rate,
		channels:   channels,

		audio:    make(chan []byte, 256),
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		closed:   make(chan struct{}),
	}
	s.vocab.Store(vocabularyPrompt(cfg.Keywords))

	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

// stream is one live transcription session. Utterance state lives entirely
// in the run goroutine; only the vocabulary prompt is shared, via s.vocab.
type stream struct {
	provider   *Provider
	language   string
	sampleRate int
	channels   int

	// vocab holds the current prompt string (see vocabularyPrompt).
	vocab atomic.Value

	audio    chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// SendAudio queues one PCM chunk for energy analysis. Returns an error
// once the session is closed.
func (s *stream) SendAudio(chunk []byte) error {
	select {
	case <-s.closed:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.closed:
		return errors.New("whisper: session is closed")
	}
}

// Partials mirrors Finals for this provider: whisper.cpp commits whole
// utterances, so each partial carries the same text as the final that
// follows it. Useful only for client activity display.
func (s *stream) Partials() <-chan types.Transcript { return s.partials }

// Finals emits the committed transcript for each utterance.
func (s *stream) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords replaces the vocabulary prompt. Audio already buffered for
// the current utterance is transcribed with the new prompt too, since the
// prompt is read at inference time.
func (s *stream) SetKeywords(keywords []types.KeywordBoost) error {
	s.vocab.Store(vocabularyPrompt(keywords))
	return nil
}

// Close flushes whatever speech is still buffered, closes both transcript
// channels, and stops the session goroutine. Safe to call twice.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.wg.Wait()
	})
	return nil
}

// utterance accumulates one gated speech segment between flushes.
type utterance struct {
	pcm       []byte
	voiced    bool          // a voiced chunk has been buffered
	silentFor time.Duration // trailing silence since the last voiced chunk
}

func (u *utterance) reset() { *u = utterance{} }

// run owns all buffering state: it gates chunks by energy, grows the
// current utterance, and flushes it on enough trailing silence, on buffer
// overflow, and once more on shutdown.
func (s *stream) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var u utterance
	maxBytes := int(s.provider.maxBuffered.Seconds() * float64(s.sampleRate*s.channels*sampleBytes))

	flush := func(flushCtx context.Context) {
		if !u.voiced || len(u.pcm) == 0 {
			u.reset()
			return
		}
		pcm := u.pcm
		u.reset()

		text, err := s.transcribe(flushCtx, pcm)
		if err != nil || text == "" {
			return
		}
		// Both channels are buffered; skip rather than block if a slow
		// reader let one fill up.
		select {
		case s.partials <- types.Transcript{Text: text}:
		default:
		}
		select {
		case s.finals <- types.Transcript{Text: text, IsFinal: true}:
		default:
		}
	}

	// The final flush runs on a fresh context: the session context is
	// usually already cancelled by the time Close is called.
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.closed:
			finalFlush()
			return
		case chunk, ok := <-s.audio:
			if !ok {
				finalFlush()
				return
			}

			if rmsEnergy(chunk) < voicedRMS {
				// Silence ahead of any speech is dropped outright.
				if !u.voiced {
					continue
				}
				u.silentFor += pcmDuration(len(chunk), s.sampleRate, s.channels)
				u.pcm = append(u.pcm, chunk...)
				if u.silentFor >= s.provider.endSilence {
					flush(ctx)
				}
				continue
			}

			u.voiced = true
			u.silentFor = 0
			u.pcm = append(u.pcm, chunk...)
			if maxBytes > 0 && len(u.pcm) >= maxBytes {
				flush(ctx)
			}
		}
	}
}

// transcribe uploads one utterance to POST /inference and returns the text.
func (s *stream) transcribe(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: build upload: %w", err)
	}
	if _, err := part.Write(wavContainer(pcm, s.sampleRate, s.channels)); err != nil {
		return "", fmt.Errorf("whisper: build upload: %w", err)
	}

	fields := map[string]string{
		"language": s.language,
		"model":    s.provider.model,
	}
	if prompt, _ := s.vocab.Load().(string); prompt != "" {
		fields["prompt"] = prompt
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := form.WriteField(name, value); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", name, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("whisper: finalize upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.provider.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := s.provider.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: inference returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read inference response: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: decode inference response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// vocabularyPrompt renders keyword boosts as an initial prompt. Keywords
// are listed strongest first so truncation by the engine drops the least
// important terms.
func vocabularyPrompt(keywords []types.KeywordBoost) string {
	if len(keywords) == 0 {
		return ""
	}
	sorted := make([]types.KeywordBoost, len(keywords))
	copy(sorted, keywords)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Boost > sorted[j].Boost })

	terms := make([]string, 0, len(sorted))
	for _, kw := range sorted {
		if kw.Keyword == "" {
			continue
		}
		terms = append(terms, kw.Keyword)
	}
	if len(terms) == 0 {
		return ""
	}
	return "Vocabulary: " + strings.Join(terms, ", ") + "."
}

// wavContainer wraps PCM samples in a minimal RIFF/WAVE header so the
// server accepts the upload as a .wav file.
func wavContainer(pcm []byte, sampleRate, channels int) []byte {
	const headerLen = 44
	byteRate := sampleRate * channels * sampleBytes
	out := make([]byte, headerLen+len(pcm))

	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(headerLen-8+len(pcm)))
	copy(out[8:], "WAVE")

	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16) // PCM format chunk length
	binary.LittleEndian.PutUint16(out[20:], 1)  // uncompressed PCM
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*sampleBytes))
	binary.LittleEndian.PutUint16(out[34:], uint16(8*sampleBytes))

	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[headerLen:], pcm)
	return out
}

// rmsEnergy returns the root-mean-square level of a 16-bit PCM buffer in
// raw sample units.
func rmsEnergy(pcm []byte) float64 {
	n := len(pcm) / sampleBytes
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*sampleBytes:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// pcmDuration converts a PCM byte count to wall time.
func pcmDuration(numBytes, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := numBytes / (sampleBytes * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
