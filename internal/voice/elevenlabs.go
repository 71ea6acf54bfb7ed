package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aarso/diaa/internal/speech"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	STTModelID   string
	TTSModelID   string
	OutputFormat string
	// Voice IDs per language; Bengali falls back to the English voice.
	EnglishVoiceID string
	BengaliVoiceID string
}

type ElevenLabsProvider struct {
	cfg ElevenLabsConfig
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "scribe_v1"
	}
	if strings.TrimSpace(cfg.TTSModelID) == "" {
		cfg.TTSModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		// raw PCM keeps previews wrappable as WAV
		cfg.OutputFormat = "pcm_16000"
	}
	return &ElevenLabsProvider{cfg: cfg}
}

func (p *ElevenLabsProvider) Voices() []speech.Voice {
	var out []speech.Voice
	if id := strings.TrimSpace(p.cfg.EnglishVoiceID); id != "" {
		out = append(out, speech.Voice{Name: "ElevenLabs Female English", Lang: "en-US", URI: id, Default: true})
	}
	if id := strings.TrimSpace(p.cfg.BengaliVoiceID); id != "" {
		out = append(out, speech.Voice{Name: "ElevenLabs Bangla", Lang: "bn-BD", URI: id})
	}
	return out
}

func (p *ElevenLabsProvider) voiceFor(lang speech.Language) string {
	if lang.IsBengali() && strings.TrimSpace(p.cfg.BengaliVoiceID) != "" {
		return p.cfg.BengaliVoiceID
	}
	return p.cfg.EnglishVoiceID
}

func (p *ElevenLabsProvider) StartSession(ctx context.Context, _ string, lang speech.Language) (STTSession, <-chan STTEvent, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/speech-to-text/realtime")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model_id", p.cfg.STTModelID)
	q.Set("commit_strategy", "vad")
	q.Set("include_timestamps", "true")
	q.Set("language_code", languageCode(lang))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan STTEvent, 256)
	s := &elevenSTTSession{conn: conn, done: make(chan struct{}), events: events}
	go s.readLoop()
	return s, events, nil
}

func (p *ElevenLabsProvider) StartStream(ctx context.Context, voiceID string, settings TTSSettings) (TTSStream, error) {
	if strings.TrimSpace(voiceID) == "" {
		voiceID = p.voiceFor(settings.Language)
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("no elevenlabs voice configured for %s", settings.Language)
	}
	modelID := p.cfg.TTSModelID

	// the Web Speech rate scale maps onto the narrower ElevenLabs speed range
	speed := settings.Rate
	if speed <= 0 {
		speed = 1.0
	}
	if speed < 0.7 {
		speed = 0.7
	} else if speed > 1.2 {
		speed = 1.2
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", modelID)
	q.Set("output_format", p.cfg.OutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	s := &elevenTTSStream{
		conn:   conn,
		format: p.cfg.OutputFormat,
		done:   make(chan struct{}),
		events: make(chan TTSEvent, 512),
	}
	go s.readLoop()
	// Prime the stream as documented for TTS websocket flows.
	_ = s.writeJSON(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
			"speed":            speed,
		},
	})
	return s, nil
}

// elevenSTTSession closes its events channel from readLoop only; Close just
// tears down the socket and unblocks a pending send.
type elevenSTTSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	events    chan STTEvent
}

func (s *elevenSTTSession) SendAudioChunk(_ context.Context, audioBase64 string, sampleRate int, commit bool) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	payload := map[string]any{
		"message_type":  "input_audio_chunk",
		"audio_base_64": audioBase64,
		"commit":        commit,
		"sample_rate":   sampleRate,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *elevenSTTSession) readLoop() {
	defer close(s.events)
	defer func() { _ = s.Close() }()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		now := time.Now().UnixMilli()
		messageType := asString(raw["message_type"])
		var ev STTEvent
		switch messageType {
		case "partial_transcript":
			ev = STTEvent{Type: STTEventPartial, Text: asString(raw["text"]), Timestamp: now}
		case "committed_transcript", "committed_transcript_with_timestamps":
			text := strings.TrimSpace(asString(raw["text"]))
			if text == "" {
				ev = STTEvent{Type: STTEventError, Code: "no-speech", Timestamp: now}
			} else {
				ev = STTEvent{Type: STTEventCommitted, Text: text, Timestamp: now}
			}
		case "", "session_started", "input_audio_chunk":
			continue
		default:
			ev = STTEvent{
				Type:      STTEventError,
				Code:      webSpeechCode(messageType),
				Detail:    asString(raw["error"]),
				Retryable: retryableRealtimeCode(messageType),
				Timestamp: now,
			}
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *elevenSTTSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

type elevenTTSStream struct {
	conn      *websocket.Conn
	format    string
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	events    chan TTSEvent
}

func (s *elevenTTSStream) SendText(_ context.Context, text string, tryTrigger bool) error {
	payload := map[string]any{
		"text":                   text,
		"try_trigger_generation": tryTrigger,
	}
	return s.writeJSON(payload)
}

func (s *elevenTTSStream) CloseInput(_ context.Context) error {
	return s.writeJSON(map[string]any{"text": ""})
}

func (s *elevenTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *elevenTTSStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *elevenTTSStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *elevenTTSStream) readLoop() {
	defer close(s.events)
	defer func() { _ = s.Close() }()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}

		var batch []TTSEvent
		if audio := asString(raw["audio"]); audio != "" {
			batch = append(batch, TTSEvent{Type: TTSEventAudio, AudioBase64: audio, Format: s.format})
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			batch = append(batch, TTSEvent{Type: TTSEventFinal})
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			code := asString(raw["message_type"])
			batch = append(batch, TTSEvent{Type: TTSEventError, Code: code, Detail: errMsg, Retryable: retryableRealtimeCode(code)})
		}
		for _, ev := range batch {
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

func languageCode(lang speech.Language) string {
	if lang.IsBengali() {
		return "bn"
	}
	return "en"
}

// webSpeechCode maps realtime STT error message types onto the Web Speech
// error codes understood by the recognition controller.
func webSpeechCode(messageType string) string {
	switch strings.ToLower(strings.TrimSpace(messageType)) {
	case "auth_error", "unauthorized", "quota_exceeded":
		return "not-allowed"
	case "unsupported_language", "invalid_language_code":
		return "language-not-supported"
	case "input_error", "chunk_size_exceeded", "invalid_audio":
		return "audio-capture"
	default:
		return messageType
	}
}

func retryableRealtimeCode(code string) bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "rate_limited", "resource_exhausted", "queue_overflow", "session_time_limit_exceeded", "commit_throttled", "internal_error":
		return true
	default:
		return false
	}
}
