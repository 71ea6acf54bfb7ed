package voice

import (
	"context"

	"github.com/aarso/diaa/internal/speech"
)

type STTEventType string

const (
	STTEventPartial   STTEventType = "partial"
	STTEventCommitted STTEventType = "committed"
	STTEventError     STTEventType = "error"
)

type STTEvent struct {
	Type       STTEventType
	Text       string
	Confidence float64
	Source     string
	// Code uses the Web Speech error vocabulary (no-speech, audio-capture,
	// not-allowed, language-not-supported, network, ...) so the recognition
	// controller can classify provider and browser failures alike.
	Code      string
	Detail    string
	Retryable bool
	Timestamp int64
}

type STTSession interface {
	SendAudioChunk(ctx context.Context, audioBase64 string, sampleRate int, commit bool) error
	Close() error
}

type STTProvider interface {
	StartSession(ctx context.Context, sessionID string, lang speech.Language) (STTSession, <-chan STTEvent, error)
}

type TTSEventType string

const (
	TTSEventAudio TTSEventType = "audio"
	TTSEventFinal TTSEventType = "final"
	TTSEventError TTSEventType = "error"
)

type TTSEvent struct {
	Type        TTSEventType
	AudioBase64 string
	Format      string
	Code        string
	Detail      string
	Retryable   bool
}

type TTSSettings struct {
	Language speech.Language
	Rate     float64
	Pitch    float64
	Volume   float64
}

type TTSStream interface {
	SendText(ctx context.Context, text string, tryTrigger bool) error
	CloseInput(ctx context.Context) error
	Events() <-chan TTSEvent
	Close() error
}

// TTSProvider starts one synthesis stream. An empty voiceID selects the
// provider's default voice for settings.Language.
type TTSProvider interface {
	StartStream(ctx context.Context, voiceID string, settings TTSSettings) (TTSStream, error)
}

// VoiceLister is implemented by TTS providers that expose a voice catalog.
type VoiceLister interface {
	Voices() []speech.Voice
}
