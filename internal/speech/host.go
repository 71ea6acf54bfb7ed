// Package speech holds the recognition and synthesis controllers that sit
// between a speech host (browser Web Speech API or server providers) and the
// conversation. Controllers own all state; hosts only execute commands and
// report lifecycle events back.
package speech

import "github.com/aarso/diaa/internal/fault"

// RecognitionConfig is applied to every session a controller opens.
type RecognitionConfig struct {
	Language        Language `json:"lang"`
	Continuous      bool     `json:"continuous"`
	InterimResults  bool     `json:"interim_results"`
	MaxAlternatives int      `json:"max_alternatives"`
}

// RecognitionResult carries the interim and final text of one host result event.
type RecognitionResult struct {
	Interim    string  `json:"interim,omitempty"`
	Final      string  `json:"final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// RecognitionSink receives the events of exactly one recognition session.
// Events for a session may keep arriving after the controller moved on.
type RecognitionSink interface {
	OnStart()
	OnResult(RecognitionResult)
	OnEnd()
	OnError(code string)
}

type RecognitionHost interface {
	Supported() bool
	Start(cfg RecognitionConfig, sink RecognitionSink) error
	Stop()
}

// Utterance is one synthesis submission. Callbacks may run on any goroutine,
// including synchronously inside Speak or Cancel.
type Utterance struct {
	ID     string
	Text   string
	Lang   Language
	Voice  *Voice
	Rate   float64
	Pitch  float64
	Volume float64

	OnStart func()
	OnEnd   func()
	OnError func(code string)
}

type SynthesisHost interface {
	Supported() bool
	Voices() []Voice
	Speak(u Utterance) error
	Cancel()
}

// Transcript is emitted for interim and final recognition results. Interim
// transcripts are advisory and may be superseded within the same session.
type Transcript struct {
	Text       string   `json:"text"`
	Final      bool     `json:"final"`
	Confidence float64  `json:"confidence,omitempty"`
	Language   Language `json:"language"`
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a short user-facing message.
type Notification struct {
	Level    Level      `json:"level"`
	Kind     fault.Kind `json:"kind,omitempty"`
	Message  string     `json:"message"`
	Language Language   `json:"language,omitempty"`
}

type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}

// Scheduler runs fn on a later turn of the owner's event loop.
type Scheduler interface {
	Defer(fn func())
}

// Substituter rewrites text before synthesis; pronunciation.Dictionary implements it.
type Substituter interface {
	Apply(text string) string
}
