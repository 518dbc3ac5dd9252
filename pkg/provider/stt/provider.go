// Package stt abstracts the speech-to-text backends of the voice review loop.
//
// A Provider opens streaming sessions against a transcription engine, such as
// a whisper-server HTTP endpoint. A session takes raw PCM audio and emits two
// transcript streams: low-latency partials for live client feedback, and
// authoritative finals that the review service corrects and classifies.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/ankivoice/ankivoice/pkg/types"
)

// StreamConfig is the audio format and recognition hints for one session.
type StreamConfig struct {
	// SampleRate in Hz. The transcription path runs at 16000; clients
	// typically capture at 48000 and are converted down.
	SampleRate int

	// Channels of audio; whisper needs mono, providers may downmix.
	Channels int

	// Language as a BCP-47 tag ("en-US"); empty lets the provider detect it.
	Language string

	// Keywords biases recognition toward the review vocabulary — grade words
	// and the current deck's terms.
	Keywords []types.KeywordBoost
}

// SessionHandle is one open transcription stream. Sessions must be Closed or
// they leak goroutines and connections inside the provider. All methods are
// safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers raw PCM bytes in the format agreed in StreamConfig.
	// Sending after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim guesses, suitable for echoing to the client but
	// never for acting on. Closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals emits committed recognition results — the transcripts that get
	// corrected, classified, and answered. Closed when the session ends.
	Finals() <-chan types.Transcript

	// SetKeywords swaps the boost list mid-session, e.g. when the review
	// moves to a different deck. Best effort: audio already in flight may
	// still use the old list, and providers may not support it at all.
	SetKeywords(keywords []types.KeywordBoost) error

	// Close flushes pending audio and closes both transcript channels.
	// Closing twice is safe.
	Close() error
}

// Provider opens transcription sessions; several may be live at once, one per
// connected voice client.
type Provider interface {
	// StartStream opens a session ready to accept audio. The caller owns the
	// handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
