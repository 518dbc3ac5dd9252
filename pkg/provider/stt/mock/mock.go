// Package mock is an in-memory stt.Provider for tests.
//
// Hand it the stt.SessionHandle the code under test should receive, then
// inspect StartStreamCalls for the stream configuration that was requested:
//
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/ankivoice/ankivoice/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// StartStreamCall is one recorded StartStream invocation.
type StartStreamCall struct {
	Cfg stt.StreamConfig
}

// Provider hands out a pre-built session and logs each StartStream call.
type Provider struct {
	// Session is returned by every successful StartStream. Must be set.
	Session stt.SessionHandle

	// StartStreamErr makes StartStream fail instead.
	StartStreamErr error

	mu sync.Mutex
	// StartStreamCalls lists every StartStream invocation in order. Guarded
	// by mu; read it only after the code under test is done.
	StartStreamCalls []StartStreamCall
}

// StartStream logs the call and returns the configured session or error.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session == nil {
		return nil, errors.New("stt mock: no session configured")
	}
	return p.Session, nil
}
