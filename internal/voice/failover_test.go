package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/aarso/diaa/internal/speech"
)

func TestFailoverProviderPairSwitchesToFallbackAndSticks(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("primary unavailable")

	primarySTT := &stubSTTProvider{
		startSession: func(context.Context, string, speech.Language) (STTSession, <-chan STTEvent, error) {
			return nil, nil, primaryErr
		},
	}
	fallbackSTT := &stubSTTProvider{
		startSession: func(context.Context, string, speech.Language) (STTSession, <-chan STTEvent, error) {
			return &stubSTTSession{}, make(chan STTEvent), nil
		},
	}
	primaryTTS := &stubTTSProvider{
		startStream: func(context.Context, string, TTSSettings) (TTSStream, error) {
			return nil, primaryErr
		},
	}
	fallbackTTS := &stubTTSProvider{
		startStream: func(context.Context, string, TTSSettings) (TTSStream, error) {
			return &stubTTSStream{}, nil
		},
	}

	stt, tts := NewFailoverProviderPair(primarySTT, primaryTTS, fallbackSTT, fallbackTTS)

	if _, _, err := stt.StartSession(ctx, "session-1", speech.English); err != nil {
		t.Fatalf("StartSession() unexpected error = %v", err)
	}
	if !stt.FallbackActive() {
		t.Fatalf("FallbackActive() = false after primary failure")
	}
	if _, _, err := stt.StartSession(ctx, "session-2", speech.Bengali); err != nil {
		t.Fatalf("StartSession() on fallback unexpected error = %v", err)
	}
	if _, err := tts.StartStream(ctx, "x", TTSSettings{}); err != nil {
		t.Fatalf("StartStream() unexpected error = %v", err)
	}
	if _, err := tts.StartStream(ctx, "x", TTSSettings{}); err != nil {
		t.Fatalf("StartStream() on fallback unexpected error = %v", err)
	}

	if primarySTT.calls != 1 {
		t.Fatalf("primary STT calls = %d, want 1", primarySTT.calls)
	}
	if fallbackSTT.calls != 2 {
		t.Fatalf("fallback STT calls = %d, want 2", fallbackSTT.calls)
	}
	if primaryTTS.calls != 0 {
		t.Fatalf("primary TTS calls = %d, want 0 once fallback active", primaryTTS.calls)
	}
	if fallbackTTS.calls != 2 {
		t.Fatalf("fallback TTS calls = %d, want 2", fallbackTTS.calls)
	}
}

func TestFailoverProviderPairClearsVoiceForFallback(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("quota exceeded")

	var seenVoice = "unset"
	var seenLang speech.Language
	primaryTTS := &stubTTSProvider{
		startStream: func(context.Context, string, TTSSettings) (TTSStream, error) {
			return nil, primaryErr
		},
	}
	fallbackTTS := &stubTTSProvider{
		startStream: func(_ context.Context, voiceID string, settings TTSSettings) (TTSStream, error) {
			seenVoice = voiceID
			seenLang = settings.Language
			return &stubTTSStream{}, nil
		},
	}

	_, tts := NewFailoverProviderPair(&stubSTTProvider{}, primaryTTS, &stubSTTProvider{}, fallbackTTS)

	if _, err := tts.StartStream(ctx, "eleven_voice", TTSSettings{Language: speech.Bengali}); err != nil {
		t.Fatalf("StartStream() unexpected error = %v", err)
	}
	if seenVoice != "" {
		t.Fatalf("fallback voice = %q, want empty", seenVoice)
	}
	if seenLang != speech.Bengali {
		t.Fatalf("fallback language = %q, want %q", seenLang, speech.Bengali)
	}
}

func TestFailoverVoicesFollowActiveBackend(t *testing.T) {
	primaryTTS := &stubTTSProvider{
		startStream: func(context.Context, string, TTSSettings) (TTSStream, error) {
			return nil, errors.New("down")
		},
	}
	mock := NewMockProvider()
	_, tts := NewFailoverProviderPair(&stubSTTProvider{}, primaryTTS, mock, mock)

	if got := tts.Voices(); got != nil {
		t.Fatalf("Voices() before failover = %v, want nil (stub lists none)", got)
	}
	if _, err := tts.StartStream(context.Background(), "", TTSSettings{Language: speech.English}); err != nil {
		t.Fatalf("StartStream() error = %v", err)
	}
	if got := tts.Voices(); len(got) != len(mock.Voices()) {
		t.Fatalf("Voices() after failover = %v", got)
	}
}

func TestFailoverProviderPairReturnsCombinedErrorWhenBothFail(t *testing.T) {
	ctx := context.Background()
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("fallback down")

	primarySTT := &stubSTTProvider{
		startSession: func(context.Context, string, speech.Language) (STTSession, <-chan STTEvent, error) {
			return nil, nil, primaryErr
		},
	}
	fallbackSTT := &stubSTTProvider{
		startSession: func(context.Context, string, speech.Language) (STTSession, <-chan STTEvent, error) {
			return nil, nil, fallbackErr
		},
	}
	primaryTTS := &stubTTSProvider{
		startStream: func(context.Context, string, TTSSettings) (TTSStream, error) {
			return nil, primaryErr
		},
	}
	fallbackTTS := &stubTTSProvider{
		startStream: func(context.Context, string, TTSSettings) (TTSStream, error) {
			return nil, fallbackErr
		},
	}

	stt, tts := NewFailoverProviderPair(primarySTT, primaryTTS, fallbackSTT, fallbackTTS)
	if _, _, err := stt.StartSession(ctx, "session-1", speech.English); !errors.Is(err, fallbackErr) {
		t.Fatalf("StartSession() error = %v, want wrapped fallback error", err)
	}
	if _, err := tts.StartStream(ctx, "voice", TTSSettings{}); !errors.Is(err, fallbackErr) {
		t.Fatalf("StartStream() error = %v, want wrapped fallback error", err)
	}
}

type stubSTTProvider struct {
	calls        int
	startSession func(ctx context.Context, sessionID string, lang speech.Language) (STTSession, <-chan STTEvent, error)
}

func (p *stubSTTProvider) StartSession(ctx context.Context, sessionID string, lang speech.Language) (STTSession, <-chan STTEvent, error) {
	p.calls++
	return p.startSession(ctx, sessionID, lang)
}

type stubTTSProvider struct {
	calls       int
	startStream func(ctx context.Context, voiceID string, settings TTSSettings) (TTSStream, error)
}

func (p *stubTTSProvider) StartStream(ctx context.Context, voiceID string, settings TTSSettings) (TTSStream, error) {
	p.calls++
	return p.startStream(ctx, voiceID, settings)
}

type stubSTTSession struct{}

func (s *stubSTTSession) SendAudioChunk(context.Context, string, int, bool) error { return nil }
func (s *stubSTTSession) Close() error                                            { return nil }

type stubTTSStream struct{}

func (s *stubTTSStream) SendText(context.Context, string, bool) error { return nil }
func (s *stubTTSStream) CloseInput(context.Context) error             { return nil }
func (s *stubTTSStream) Events() <-chan TTSEvent                      { return make(chan TTSEvent) }
func (s *stubTTSStream) Close() error                                 { return nil }
