package voice

import (
	"errors"
	"sync"

	"github.com/aarso/diaa/internal/protocol"
	"github.com/aarso/diaa/internal/speech"
)

var ErrUnknownHostEvent = errors.New("host event does not match an open session or utterance")

// BrowserHost drives the client's Web Speech API over the session websocket.
// Commands go out as host_command messages; the page reports lifecycle events
// back as host_event messages, which HandleEvent routes to the sink or
// utterance they belong to.
type BrowserHost struct {
	sessionID string
	send      func(msg any) error

	mu              sync.Mutex
	recognition     bool
	synthesis       bool
	voices          []speech.Voice
	nextID          uint64
	activeID        uint64
	sinks           map[uint64]speech.RecognitionSink
	utterances      map[string]speech.Utterance
	onVoicesChanged func()
}

func NewBrowserHost(sessionID string, send func(msg any) error) *BrowserHost {
	return &BrowserHost{
		sessionID:  sessionID,
		send:       send,
		sinks:      make(map[uint64]speech.RecognitionSink),
		utterances: make(map[string]speech.Utterance),
	}
}

func (h *BrowserHost) Recognition() speech.RecognitionHost { return browserRecognition{h} }

func (h *BrowserHost) Synthesis() speech.SynthesisHost { return browserSynthesis{h} }

func (h *BrowserHost) OnVoicesChanged(fn func()) {
	h.mu.Lock()
	h.onVoicesChanged = fn
	h.mu.Unlock()
}

// ApplyHello records the capabilities the page announced.
func (h *BrowserHost) ApplyHello(msg protocol.HostHello) {
	h.mu.Lock()
	h.recognition = msg.RecognitionSupported
	h.synthesis = msg.SynthesisSupported
	h.voices = voicesFromHost(msg.Voices)
	fn := h.onVoicesChanged
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// HandleEvent delivers one host event. Sinks and utterance callbacks run on
// the caller's goroutine without h.mu held.
func (h *BrowserHost) HandleEvent(ev protocol.HostEvent) error {
	switch ev.Event {
	case protocol.EventRecognitionStart, protocol.EventRecognitionResult, protocol.EventRecognitionEnd, protocol.EventRecognitionError:
		h.mu.Lock()
		sink, ok := h.sinks[ev.RecognitionID]
		if ok && ev.Event == protocol.EventRecognitionEnd {
			delete(h.sinks, ev.RecognitionID)
			if h.activeID == ev.RecognitionID {
				h.activeID = 0
			}
		}
		h.mu.Unlock()
		if !ok {
			return ErrUnknownHostEvent
		}
		switch ev.Event {
		case protocol.EventRecognitionStart:
			sink.OnStart()
		case protocol.EventRecognitionResult:
			sink.OnResult(speech.RecognitionResult{Interim: ev.Interim, Final: ev.Final, Confidence: ev.Confidence})
		case protocol.EventRecognitionEnd:
			sink.OnEnd()
		case protocol.EventRecognitionError:
			sink.OnError(ev.Code)
		}
		return nil

	case protocol.EventSynthesisStart, protocol.EventSynthesisEnd, protocol.EventSynthesisError:
		h.mu.Lock()
		u, ok := h.utterances[ev.UtteranceID]
		if ok && ev.Event != protocol.EventSynthesisStart {
			delete(h.utterances, ev.UtteranceID)
		}
		h.mu.Unlock()
		if !ok {
			return ErrUnknownHostEvent
		}
		switch ev.Event {
		case protocol.EventSynthesisStart:
			call(u.OnStart)
		case protocol.EventSynthesisEnd:
			call(u.OnEnd)
		case protocol.EventSynthesisError:
			if u.OnError != nil {
				u.OnError(ev.Code)
			}
		}
		return nil

	case protocol.EventVoicesChanged:
		h.mu.Lock()
		h.voices = voicesFromHost(ev.Voices)
		fn := h.onVoicesChanged
		h.mu.Unlock()
		if fn != nil {
			fn()
		}
		return nil
	default:
		return ErrUnknownHostEvent
	}
}

func (h *BrowserHost) command(cmd protocol.HostCommand) error {
	cmd.Type = protocol.TypeHostCommand
	cmd.SessionID = h.sessionID
	return h.send(cmd)
}

type browserRecognition struct{ h *BrowserHost }

func (r browserRecognition) Supported() bool {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.h.recognition
}

func (r browserRecognition) Start(cfg speech.RecognitionConfig, sink speech.RecognitionSink) error {
	h := r.h
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.sinks[id] = sink
	h.activeID = id
	h.mu.Unlock()

	err := h.command(protocol.HostCommand{
		Command: protocol.CommandRecognitionStart,
		Recognition: &protocol.HostRecognition{
			ID:              id,
			Lang:            string(cfg.Language),
			Continuous:      cfg.Continuous,
			InterimResults:  cfg.InterimResults,
			MaxAlternatives: cfg.MaxAlternatives,
		},
	})
	if err != nil {
		h.mu.Lock()
		delete(h.sinks, id)
		if h.activeID == id {
			h.activeID = 0
		}
		h.mu.Unlock()
	}
	return err
}

func (r browserRecognition) Stop() {
	h := r.h
	h.mu.Lock()
	id := h.activeID
	h.activeID = 0
	h.mu.Unlock()
	if id == 0 {
		return
	}
	_ = h.command(protocol.HostCommand{
		Command:     protocol.CommandRecognitionStop,
		Recognition: &protocol.HostRecognition{ID: id},
	})
}

type browserSynthesis struct{ h *BrowserHost }

func (s browserSynthesis) Supported() bool {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return s.h.synthesis
}

func (s browserSynthesis) Voices() []speech.Voice {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	out := make([]speech.Voice, len(s.h.voices))
	copy(out, s.h.voices)
	return out
}

func (s browserSynthesis) Speak(u speech.Utterance) error {
	h := s.h
	h.mu.Lock()
	h.utterances[u.ID] = u
	h.mu.Unlock()

	hu := &protocol.HostUtterance{
		ID:     u.ID,
		Text:   u.Text,
		Lang:   string(u.Lang),
		Rate:   u.Rate,
		Pitch:  u.Pitch,
		Volume: u.Volume,
	}
	if u.Voice != nil {
		hu.Voice = u.Voice.Name
		hu.VoiceURI = u.Voice.URI
	}
	if err := h.command(protocol.HostCommand{Command: protocol.CommandSynthesisSpeak, Utterance: hu}); err != nil {
		h.mu.Lock()
		delete(h.utterances, u.ID)
		h.mu.Unlock()
		return err
	}
	return nil
}

// Cancel asks the page to cancel speech. The page reports the cut-off
// utterance with a synthesis_error of "canceled" or "interrupted".
func (s browserSynthesis) Cancel() {
	_ = s.h.command(protocol.HostCommand{Command: protocol.CommandSynthesisCancel})
}

func voicesFromHost(in []protocol.HostVoice) []speech.Voice {
	out := make([]speech.Voice, 0, len(in))
	for _, v := range in {
		out = append(out, speech.Voice{
			Name:         v.Name,
			Lang:         v.Lang,
			URI:          v.URI,
			Default:      v.Default,
			LocalService: v.LocalService,
		})
	}
	return out
}
