package voice

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aarso/diaa/internal/speech"
)

var ErrNotListening = errors.New("no recognition session is open")

// AudioSink receives synthesized audio for an utterance in order. The last
// call for an utterance has final set and carries no audio.
type AudioSink func(utteranceID string, seq int, format, audioBase64 string, final bool)

// ProviderHost runs recognition and synthesis on server-side STT/TTS
// providers. Audio comes in through PushAudio and leaves through the AudioSink.
// Provider events are pumped on their own goroutines and reported with the
// same lifecycle a browser host would produce.
type ProviderHost struct {
	ctx       context.Context
	sessionID string
	stt       STTProvider
	tts       TTSProvider
	onAudio   AudioSink
	log       zerolog.Logger

	mu     sync.Mutex
	recog  STTSession
	stream TTSStream
	closed bool
}

func NewProviderHost(ctx context.Context, sessionID string, stt STTProvider, tts TTSProvider, onAudio AudioSink, logger *zerolog.Logger) *ProviderHost {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "provider_host").Str("session_id", sessionID).Logger()
	}
	if onAudio == nil {
		onAudio = func(string, int, string, string, bool) {}
	}
	return &ProviderHost{
		ctx:       ctx,
		sessionID: sessionID,
		stt:       stt,
		tts:       tts,
		onAudio:   onAudio,
		log:       log,
	}
}

func (h *ProviderHost) Supported() bool {
	return h.stt != nil && h.tts != nil
}

func (h *ProviderHost) Voices() []speech.Voice {
	if l, ok := h.tts.(VoiceLister); ok {
		return l.Voices()
	}
	return nil
}

func (h *ProviderHost) Start(cfg speech.RecognitionConfig, sink speech.RecognitionSink) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.New("provider host closed")
	}
	prev := h.recog
	h.recog = nil
	h.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	sess, events, err := h.stt.StartSession(h.ctx, h.sessionID, cfg.Language)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.recog = sess
	h.mu.Unlock()

	go h.pumpRecognition(cfg, sess, events, sink)
	return nil
}

func (h *ProviderHost) pumpRecognition(cfg speech.RecognitionConfig, sess STTSession, events <-chan STTEvent, sink speech.RecognitionSink) {
	sink.OnStart()
	closing := false
	closeSession := func() {
		if closing {
			return
		}
		closing = true
		h.mu.Lock()
		if h.recog == sess {
			h.recog = nil
		}
		h.mu.Unlock()
		// Close from another goroutine: the provider may be blocked on a send we must keep draining.
		go func() { _ = sess.Close() }()
	}

	for ev := range events {
		if closing {
			continue
		}
		switch ev.Type {
		case STTEventPartial:
			if cfg.InterimResults && strings.TrimSpace(ev.Text) != "" {
				sink.OnResult(speech.RecognitionResult{Interim: ev.Text, Confidence: ev.Confidence})
			}
		case STTEventCommitted:
			sink.OnResult(speech.RecognitionResult{Final: ev.Text, Confidence: ev.Confidence})
			if !cfg.Continuous {
				closeSession()
			}
		case STTEventError:
			h.log.Debug().Str("code", ev.Code).Str("detail", ev.Detail).Msg("stt provider error")
			sink.OnError(ev.Code)
			closeSession()
		}
	}

	h.mu.Lock()
	if h.recog == sess {
		h.recog = nil
	}
	h.mu.Unlock()
	sink.OnEnd()
}

func (h *ProviderHost) Stop() {
	h.mu.Lock()
	sess := h.recog
	h.recog = nil
	h.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
}

// PushAudio forwards a client audio chunk to the open recognition session.
func (h *ProviderHost) PushAudio(ctx context.Context, audioBase64 string, sampleRate int, commit bool) error {
	h.mu.Lock()
	sess := h.recog
	h.mu.Unlock()
	if sess == nil {
		return ErrNotListening
	}
	return sess.SendAudioChunk(ctx, audioBase64, sampleRate, commit)
}

func (h *ProviderHost) Speak(u speech.Utterance) error {
	voiceID := ""
	if u.Voice != nil {
		voiceID = u.Voice.URI
	}
	stream, err := h.tts.StartStream(h.ctx, voiceID, TTSSettings{
		Language: u.Lang,
		Rate:     u.Rate,
		Pitch:    u.Pitch,
		Volume:   u.Volume,
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = stream.Close()
		return errors.New("provider host closed")
	}
	prev := h.stream
	h.stream = stream
	h.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	text := speakableText(u.Text)
	if text == "" {
		text = u.Text
	}
	if err := stream.SendText(h.ctx, text, true); err != nil {
		h.dropStream(stream)
		return err
	}
	if err := stream.CloseInput(h.ctx); err != nil {
		h.dropStream(stream)
		return err
	}
	go h.pumpSynthesis(stream, u)
	return nil
}

func (h *ProviderHost) pumpSynthesis(stream TTSStream, u speech.Utterance) {
	started := false
	done := false
	seq := 0
	for ev := range stream.Events() {
		if done || !h.isCurrent(stream) {
			continue
		}
		switch ev.Type {
		case TTSEventAudio:
			if ev.AudioBase64 == "" {
				continue
			}
			if !started {
				started = true
				call(u.OnStart)
			}
			h.onAudio(u.ID, seq, ev.Format, ev.AudioBase64, false)
			seq++
		case TTSEventFinal:
			if !started {
				started = true
				call(u.OnStart)
			}
			done = true
			h.onAudio(u.ID, seq, ev.Format, "", true)
			h.dropStream(stream)
			call(u.OnEnd)
		case TTSEventError:
			done = true
			h.log.Debug().Str("code", ev.Code).Str("detail", ev.Detail).Msg("tts provider error")
			h.dropStream(stream)
			if u.OnError != nil {
				u.OnError("synthesis-failed")
			}
		}
	}
	if !done && u.OnError != nil {
		// closed underneath us: Cancel or a newer utterance
		u.OnError("interrupted")
	}
}

func (h *ProviderHost) isCurrent(stream TTSStream) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stream == stream
}

func (h *ProviderHost) dropStream(stream TTSStream) {
	h.mu.Lock()
	if h.stream == stream {
		h.stream = nil
	}
	h.mu.Unlock()
	go func() { _ = stream.Close() }()
}

func (h *ProviderHost) Cancel() {
	h.mu.Lock()
	stream := h.stream
	h.stream = nil
	h.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
}

// Close releases any open provider session and stream.
func (h *ProviderHost) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.Stop()
	h.Cancel()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
