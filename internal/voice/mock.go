package voice

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aarso/diaa/internal/speech"
)

const (
	mockSampleRate  = 16000
	mockAudioFormat = "pcm_16000"
	mockChunkBytes  = 3200 // 100ms of PCM16 mono at 16kHz
	mockCommitEvery = 8
)

var mockTranscripts = map[speech.Language]string{
	speech.English: "What are the admission requirements at DIU?",
	speech.Bengali: "ডিআইইউতে ভর্তির যোগ্যতা কী?",
}

// MockProvider is the built-in server speech provider. Recognition commits a
// canned question per language; synthesis renders a sine tone whose length
// follows the text, so previews and audio plumbing work without credentials.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Voices() []speech.Voice {
	return []speech.Voice{
		{Name: "Mock Female English", Lang: "en-US", URI: "mock-en-female", Default: true, LocalService: true},
		{Name: "Mock Male English", Lang: "en-GB", URI: "mock-en-male", LocalService: true},
		{Name: "Mock Bangla", Lang: "bn-BD", URI: "mock-bn", LocalService: true},
	}
}

func (p *MockProvider) StartSession(_ context.Context, _ string, lang speech.Language) (STTSession, <-chan STTEvent, error) {
	events := make(chan STTEvent, 64)
	text, ok := mockTranscripts[lang]
	if !ok {
		text = mockTranscripts[speech.English]
	}
	s := &mockSTTSession{events: events, transcript: text}
	return s, events, nil
}

func (p *MockProvider) StartStream(_ context.Context, _ string, settings TTSSettings) (TTSStream, error) {
	events := make(chan TTSEvent, 128)
	return &mockTTSStream{events: events, rate: settings.Rate, volume: settings.Volume}, nil
}

type mockSTTSession struct {
	mu         sync.Mutex
	events     chan STTEvent
	transcript string
	chunks     int
	voiced     bool
	closed     bool
}

func (s *mockSTTSession) SendAudioChunk(_ context.Context, audioBase64 string, _ int, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	pcm, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		s.events <- STTEvent{Type: STTEventError, Code: "audio-capture", Detail: "undecodable audio chunk", Timestamp: time.Now().UnixMilli()}
		return nil
	}
	s.chunks++
	if hasSignal(pcm) {
		s.voiced = true
		s.events <- STTEvent{Type: STTEventPartial, Text: s.partial(), Confidence: 0.5, Source: "mock", Timestamp: time.Now().UnixMilli()}
	}
	if commit || s.chunks%mockCommitEvery == 0 {
		if !s.voiced {
			s.events <- STTEvent{Type: STTEventError, Code: "no-speech", Timestamp: time.Now().UnixMilli()}
			return nil
		}
		s.events <- STTEvent{Type: STTEventCommitted, Text: s.transcript, Confidence: 0.9, Source: "mock_commit", Timestamp: time.Now().UnixMilli()}
		s.voiced = false
		s.chunks = 0
	}
	return nil
}

// partial reveals the transcript word by word as chunks arrive.
func (s *mockSTTSession) partial() string {
	words := strings.Fields(s.transcript)
	n := s.chunks
	if n > len(words) {
		n = len(words)
	}
	return strings.Join(words[:n], " ")
}

func (s *mockSTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

type mockTTSStream struct {
	mu     sync.Mutex
	events chan TTSEvent
	rate   float64
	volume float64
	closed bool
}

func (s *mockTTSStream) SendText(_ context.Context, text string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pcm := mockTone(utf8.RuneCountInString(text), s.rate, s.volume)
	for off := 0; off < len(pcm); off += mockChunkBytes {
		end := off + mockChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		select {
		case s.events <- TTSEvent{Type: TTSEventAudio, AudioBase64: base64.StdEncoding.EncodeToString(pcm[off:end]), Format: mockAudioFormat}:
		default:
			// consumer fell behind; the tail is dropped like a truncated stream
			return nil
		}
	}
	return nil
}

func (s *mockTTSStream) CloseInput(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.events <- TTSEvent{Type: TTSEventFinal}
	return nil
}

func (s *mockTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *mockTTSStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// mockTone renders roughly 60ms of 440Hz tone per character, capped at 4s.
func mockTone(chars int, rate, volume float64) []byte {
	if rate <= 0 {
		rate = 1
	}
	if volume <= 0 || volume > 1 {
		volume = 1
	}
	d := time.Duration(float64(chars) * float64(60*time.Millisecond) / rate)
	if d > 4*time.Second {
		d = 4 * time.Second
	}
	samples := int(d.Seconds() * mockSampleRate)
	out := make([]byte, samples*2)
	amp := 0.2 * volume * math.MaxInt16
	for i := 0; i < samples; i++ {
		v := int16(amp * math.Sin(2*math.Pi*440*float64(i)/mockSampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func hasSignal(pcm []byte) bool {
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if v > 64 || v < -64 {
			return true
		}
	}
	return false
}
