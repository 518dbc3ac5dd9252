package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ankivoice/ankivoice/internal/review"
	"github.com/ankivoice/ankivoice/pkg/audio"
	"github.com/ankivoice/ankivoice/pkg/audio/opus"
	"github.com/ankivoice/ankivoice/pkg/provider/stt"
	"github.com/ankivoice/ankivoice/pkg/types"
)

// sttSampleRate is the mono rate whisper expects. Client audio arrives as
// 48 kHz stereo Opus and is downmixed and resampled before transcription.
const sttSampleRate = 16000

// voiceEvent is a JSON frame sent to the voice client.
type voiceEvent struct {
	// Type is "partial", "final", "outcome", or "error".
	Type string `json:"type"`

	// Text carries the transcript for partial and final events, or the
	// message for error events.
	Text string `json:"text,omitempty"`

	// Outcome is the review result for outcome events.
	Outcome *review.Outcome `json:"outcome,omitempty"`
}

// voiceControl is a JSON frame received from the voice client. Binary
// frames carry Opus packets; text frames carry control messages.
type voiceControl struct {
	// Type is the control kind; "keywords" is the only one recognised.
	Type string `json:"type"`

	// Keywords replaces the STT vocabulary hints mid-session.
	Keywords []string `json:"keywords,omitempty"`
}

// handleVoice upgrades to a WebSocket and runs one voice review session:
// inbound binary frames are decoded and fed to the STT session, inbound
// text frames are control messages, and transcripts plus review outcomes
// stream back as JSON.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{"error": "voice transcription is not configured"})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := s.stt.StartStream(ctx, stt.StreamConfig{
		SampleRate: sttSampleRate,
		Channels:   1,
		Language:   s.language,
		Keywords:   s.sessionKeywords(),
	})
	if err != nil {
		s.log.Error("stt session start failed", "error", err)
		conn.Close(websocket.StatusInternalError, "transcription unavailable")
		return
	}
	defer sess.Close()

	dec, err := opus.NewDecoder()
	if err != nil {
		s.log.Error("opus decoder init failed", "error", err)
		conn.Close(websocket.StatusInternalError, "audio decoding unavailable")
		return
	}

	if s.metrics != nil {
		s.metrics.ActiveVoiceSessions.Add(ctx, 1)
		defer s.metrics.ActiveVoiceSessions.Add(ctx, -1)
	}
	s.log.Info("voice session started", "remote", r.RemoteAddr)

	go func() {
		defer cancel()
		if err := s.readAudio(ctx, conn, dec, sess); err != nil {
			s.log.Debug("voice read loop ended", "error", err)
		}
	}()

	s.streamResults(ctx, conn, sess)

	s.log.Info("voice session ended", "remote", r.RemoteAddr)
	conn.Close(websocket.StatusNormalClosure, "")
}

// readAudio pumps client frames into the STT session until the connection
// drops or the session context is cancelled.
func (s *Server) readAudio(ctx context.Context, conn *websocket.Conn, dec *opus.Decoder, sess stt.SessionHandle) error {
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: sttSampleRate, Channels: 1},
	}
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if typ == websocket.MessageText {
			s.handleControl(data, sess)
			continue
		}

		pcm, err := dec.Decode(data)
		if err != nil {
			// A corrupt packet loses one 20 ms frame; the stream continues.
			s.log.Warn("opus decode failed", "error", err)
			continue
		}
		frame := conv.Convert(audio.AudioFrame{
			Data:       pcm,
			SampleRate: opus.SampleRate,
			Channels:   opus.Channels,
		})
		if len(frame.Data) == 0 {
			continue
		}
		if err := sess.SendAudio(frame.Data); err != nil {
			return err
		}
	}
}

// handleControl applies a client control message.
func (s *Server) handleControl(data []byte, sess stt.SessionHandle) {
	var ctl voiceControl
	if err := json.Unmarshal(data, &ctl); err != nil {
		s.log.Warn("malformed control frame", "error", err)
		return
	}
	switch ctl.Type {
	case "keywords":
		kw := make([]types.KeywordBoost, 0, len(ctl.Keywords))
		for _, k := range ctl.Keywords {
			kw = append(kw, types.KeywordBoost{Keyword: k, Boost: 1})
		}
		if err := sess.SetKeywords(kw); err != nil {
			s.log.Warn("keyword update failed", "error", err)
		}
	default:
		s.log.Warn("unknown control frame", "type", ctl.Type)
	}
}

// streamResults forwards transcripts to the client and acts on finals.
// Partials are echoed for live feedback only; finals go through the review
// service and come back as outcome events.
func (s *Server) streamResults(ctx context.Context, conn *websocket.Conn, sess stt.SessionHandle) {
	partials := sess.Partials()
	finals := sess.Finals()

	for {
		select {
		case <-ctx.Done():
			return

		case t, ok := <-partials:
			if !ok {
				partials = nil
				if finals == nil {
					return
				}
				continue
			}
			if err := writeEvent(ctx, conn, voiceEvent{Type: "partial", Text: t.Text}); err != nil {
				return
			}

		case t, ok := <-finals:
			if !ok {
				finals = nil
				if partials == nil {
					return
				}
				continue
			}
			if err := writeEvent(ctx, conn, voiceEvent{Type: "final", Text: t.Text}); err != nil {
				return
			}

			out, err := s.review.HandleUtterance(ctx, t)
			if err != nil {
				s.log.Warn("utterance handling failed", "error", err)
				if werr := writeEvent(ctx, conn, voiceEvent{Type: "error", Text: err.Error()}); werr != nil {
					return
				}
				continue
			}
			if err := writeEvent(ctx, conn, voiceEvent{Type: "outcome", Outcome: out}); err != nil {
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev voiceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
