package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// client -> server
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeClientText       MessageType = "client_text"
	TypeHostHello        MessageType = "host_hello"
	TypeHostEvent        MessageType = "host_event"

	// server -> client
	TypeHostCommand      MessageType = "host_command"
	TypeSTTPartial       MessageType = "stt_partial"
	TypeSTTCommitted     MessageType = "stt_committed"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeAssistantAudio   MessageType = "assistant_audio_chunk"
	TypeStateEvent       MessageType = "state_event"
	TypeNotification     MessageType = "notification"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Client control actions.
const (
	ActionStartListening = "start_listening"
	ActionStopListening  = "stop_listening"
	ActionSetLanguage    = "set_language"
	ActionStopSpeaking   = "stop_speaking"
	ActionTestVoice      = "test_voice"
	// ActionCommitAudio ends the current utterance on the server speech host.
	ActionCommitAudio = "commit_audio"
)

// Host commands sent to a browser host.
const (
	CommandRecognitionStart = "recognition_start"
	CommandRecognitionStop  = "recognition_stop"
	CommandSynthesisSpeak   = "synthesis_speak"
	CommandSynthesisCancel  = "synthesis_cancel"
)

// Host events reported by a browser host.
const (
	EventRecognitionStart  = "recognition_start"
	EventRecognitionResult = "recognition_result"
	EventRecognitionEnd    = "recognition_end"
	EventRecognitionError  = "recognition_error"
	EventSynthesisStart    = "synthesis_start"
	EventSynthesisEnd      = "synthesis_end"
	EventSynthesisError    = "synthesis_error"
	EventVoicesChanged     = "voices_changed"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Language  string      `json:"language,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

// ClientText is a typed chat message.
type ClientText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type HostVoice struct {
	Name         string `json:"name"`
	Lang         string `json:"lang"`
	URI          string `json:"voice_uri,omitempty"`
	Default      bool   `json:"default,omitempty"`
	LocalService bool   `json:"local_service,omitempty"`
}

// HostHello announces what the browser speech host can do.
type HostHello struct {
	Type                 MessageType `json:"type"`
	SessionID            string      `json:"session_id"`
	RecognitionSupported bool        `json:"recognition_supported"`
	SynthesisSupported   bool        `json:"synthesis_supported"`
	Voices               []HostVoice `json:"voices,omitempty"`
}

// HostEvent is a lifecycle event from the browser host. RecognitionID ties
// recognition events to the recognition_start command that opened the session;
// UtteranceID does the same for synthesis events.
type HostEvent struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"session_id"`
	Event         string      `json:"event"`
	RecognitionID uint64      `json:"recognition_id,omitempty"`
	UtteranceID   string      `json:"utterance_id,omitempty"`
	Interim       string      `json:"interim,omitempty"`
	Final         string      `json:"final,omitempty"`
	Confidence    float64     `json:"confidence,omitempty"`
	Code          string      `json:"code,omitempty"`
	Voices        []HostVoice `json:"voices,omitempty"`
}

type HostUtterance struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Lang     string  `json:"lang"`
	VoiceURI string  `json:"voice_uri,omitempty"`
	Voice    string  `json:"voice_name,omitempty"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
}

type HostRecognition struct {
	ID              uint64 `json:"id"`
	Lang            string `json:"lang"`
	Continuous      bool   `json:"continuous"`
	InterimResults  bool   `json:"interim_results"`
	MaxAlternatives int    `json:"max_alternatives"`
}

type HostCommand struct {
	Type        MessageType      `json:"type"`
	SessionID   string           `json:"session_id"`
	Command     string           `json:"command"`
	Recognition *HostRecognition `json:"recognition,omitempty"`
	Utterance   *HostUtterance   `json:"utterance,omitempty"`
}

type STTPartial struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Text       string      `json:"text"`
	Language   string      `json:"language"`
	Confidence float64     `json:"confidence"`
	TSMs       int64       `json:"ts_ms"`
}

type STTCommitted struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	Text       string      `json:"text"`
	Language   string      `json:"language"`
	Confidence float64     `json:"confidence,omitempty"`
	TSMs       int64       `json:"ts_ms"`
}

type AssistantMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	MessageID string      `json:"message_id"`
	Role      string      `json:"role"`
	Text      string      `json:"text"`
	Fallback  bool        `json:"fallback,omitempty"`
	TSMs      int64       `json:"ts_ms"`
}

type AssistantAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	UtteranceID string      `json:"utterance_id"`
	Seq         int         `json:"seq"`
	Format      string      `json:"format"`
	AudioBase64 string      `json:"audio_base64"`
	Final       bool        `json:"final,omitempty"`
}

// StateEvent snapshots the user-visible session state.
type StateEvent struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	Listening        bool        `json:"listening"`
	Speaking         bool        `json:"speaking"`
	Busy             bool        `json:"busy"`
	Language         string      `json:"language"`
	RecognitionState string      `json:"recognition_state"`
}

type Notification struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Level     string      `json:"level"`
	Kind      string      `json:"kind,omitempty"`
	Message   string      `json:"message"`
	Language  string      `json:"language,omitempty"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		if msg.Action == ActionSetLanguage && strings.TrimSpace(msg.Language) == "" {
			return nil, errors.New("invalid client_control: set_language requires language")
		}
		return msg, nil
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeHostHello:
		var msg HostHello
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid host_hello")
		}
		return msg, nil
	case TypeHostEvent:
		var msg HostEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Event == "" {
			return nil, errors.New("invalid host_event")
		}
		if strings.HasPrefix(msg.Event, "recognition_") && msg.RecognitionID == 0 {
			return nil, errors.New("invalid host_event: recognition_id required")
		}
		if strings.HasPrefix(msg.Event, "synthesis_") && msg.UtteranceID == "" {
			return nil, errors.New("invalid host_event: utterance_id required")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
