package voice

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aarso/diaa/internal/speech"
)

// NewFailoverProviderPair builds STT/TTS providers that prefer the primary backend
// and switch to the fallback when a session or stream fails to start.
// Once the fallback succeeds it stays active until it fails; then primary is retried.
func NewFailoverProviderPair(
	primarySTT STTProvider,
	primaryTTS TTSProvider,
	fallbackSTT STTProvider,
	fallbackTTS TTSProvider,
) (*FailoverSTTProvider, *FailoverTTSProvider) {
	state := &failoverState{}
	return &FailoverSTTProvider{
			state:    state,
			primary:  primarySTT,
			fallback: fallbackSTT,
		}, &FailoverTTSProvider{
			state:    state,
			primary:  primaryTTS,
			fallback: fallbackTTS,
		}
}

type failoverState struct {
	fallbackActive atomic.Bool
}

func (s *failoverState) activateFallback() {
	s.fallbackActive.Store(true)
}

func (s *failoverState) deactivateFallback() {
	s.fallbackActive.Store(false)
}

func (s *failoverState) isFallbackActive() bool {
	return s.fallbackActive.Load()
}

type FailoverSTTProvider struct {
	state    *failoverState
	primary  STTProvider
	fallback STTProvider
}

func (p *FailoverSTTProvider) FallbackActive() bool { return p.state.isFallbackActive() }

func (p *FailoverSTTProvider) StartSession(ctx context.Context, sessionID string, lang speech.Language) (STTSession, <-chan STTEvent, error) {
	if p.state.isFallbackActive() {
		session, events, fbErr := p.fallback.StartSession(ctx, sessionID, lang)
		if fbErr == nil {
			return session, events, nil
		}
		session, events, prErr := p.primary.StartSession(ctx, sessionID, lang)
		if prErr == nil {
			p.state.deactivateFallback()
			return session, events, nil
		}
		return nil, nil, fmt.Errorf("stt fallback failed: %v; stt primary failed: %w", fbErr, prErr)
	}

	session, events, prErr := p.primary.StartSession(ctx, sessionID, lang)
	if prErr == nil {
		return session, events, nil
	}

	session, events, fbErr := p.fallback.StartSession(ctx, sessionID, lang)
	if fbErr != nil {
		return nil, nil, fmt.Errorf("stt primary failed: %v; stt fallback failed: %w", prErr, fbErr)
	}
	p.state.activateFallback()
	return session, events, nil
}

type FailoverTTSProvider struct {
	state    *failoverState
	primary  TTSProvider
	fallback TTSProvider
}

// Voices lists the catalog of whichever backend is currently serving.
func (p *FailoverTTSProvider) Voices() []speech.Voice {
	active := p.primary
	if p.state.isFallbackActive() {
		active = p.fallback
	}
	if l, ok := active.(VoiceLister); ok {
		return l.Voices()
	}
	return nil
}

func (p *FailoverTTSProvider) StartStream(ctx context.Context, voiceID string, settings TTSSettings) (TTSStream, error) {
	if p.state.isFallbackActive() {
		// voice ids are provider specific, so the fallback picks its own
		stream, fbErr := p.fallback.StartStream(ctx, "", settings)
		if fbErr == nil {
			return stream, nil
		}
		stream, prErr := p.primary.StartStream(ctx, voiceID, settings)
		if prErr == nil {
			p.state.deactivateFallback()
			return stream, nil
		}
		return nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	stream, prErr := p.primary.StartStream(ctx, voiceID, settings)
	if prErr == nil {
		return stream, nil
	}
	stream, fbErr := p.fallback.StartStream(ctx, "", settings)
	if fbErr != nil {
		return nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	p.state.activateFallback()
	return stream, nil
}
