package voice

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarso/diaa/internal/protocol"
	"github.com/aarso/diaa/internal/speech"
)

type commandLog struct {
	mu   sync.Mutex
	cmds []protocol.HostCommand
	err  error
}

func (l *commandLog) send(msg any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.cmds = append(l.cmds, msg.(protocol.HostCommand))
	return nil
}

func (l *commandLog) last() protocol.HostCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmds[len(l.cmds)-1]
}

type recordingSink struct {
	events  []string
	results []speech.RecognitionResult
}

func (s *recordingSink) OnStart() { s.events = append(s.events, "start") }
func (s *recordingSink) OnResult(r speech.RecognitionResult) {
	s.events = append(s.events, "result")
	s.results = append(s.results, r)
}
func (s *recordingSink) OnEnd()              { s.events = append(s.events, "end") }
func (s *recordingSink) OnError(code string) { s.events = append(s.events, "error:"+code) }

func TestBrowserHostRecognitionRouting(t *testing.T) {
	log := &commandLog{}
	h := NewBrowserHost("s1", log.send)
	h.ApplyHello(protocol.HostHello{RecognitionSupported: true})
	rec := h.Recognition()
	require.True(t, rec.Supported())

	first := &recordingSink{}
	require.NoError(t, rec.Start(speech.RecognitionConfig{Language: speech.Bengali, InterimResults: true, MaxAlternatives: 3}, first))
	cmd := log.last()
	assert.Equal(t, protocol.CommandRecognitionStart, cmd.Command)
	assert.Equal(t, "s1", cmd.SessionID)
	assert.Equal(t, uint64(1), cmd.Recognition.ID)
	assert.Equal(t, "bn-BD", cmd.Recognition.Lang)

	second := &recordingSink{}
	require.NoError(t, rec.Start(speech.RecognitionConfig{Language: speech.English}, second))
	assert.Equal(t, uint64(2), log.last().Recognition.ID)

	require.NoError(t, h.HandleEvent(protocol.HostEvent{Event: protocol.EventRecognitionResult, RecognitionID: 1, Final: "পুরনো"}))
	require.NoError(t, h.HandleEvent(protocol.HostEvent{Event: protocol.EventRecognitionResult, RecognitionID: 2, Interim: "new"}))
	require.NoError(t, h.HandleEvent(protocol.HostEvent{Event: protocol.EventRecognitionEnd, RecognitionID: 1}))

	assert.Equal(t, []string{"result", "end"}, first.events)
	assert.Equal(t, []string{"result"}, second.events)
	assert.Equal(t, "new", second.results[0].Interim)

	err := h.HandleEvent(protocol.HostEvent{Event: protocol.EventRecognitionStart, RecognitionID: 1})
	assert.ErrorIs(t, err, ErrUnknownHostEvent)

	rec.Stop()
	stop := log.last()
	assert.Equal(t, protocol.CommandRecognitionStop, stop.Command)
	assert.Equal(t, uint64(2), stop.Recognition.ID)
}

func TestBrowserHostRecognitionStartSendFailure(t *testing.T) {
	log := &commandLog{err: errors.New("queue full")}
	h := NewBrowserHost("s1", log.send)
	sink := &recordingSink{}

	err := h.Recognition().Start(speech.RecognitionConfig{Language: speech.English}, sink)
	require.Error(t, err)
	assert.ErrorIs(t, h.HandleEvent(protocol.HostEvent{Event: protocol.EventRecognitionStart, RecognitionID: 1}), ErrUnknownHostEvent)
}

func TestBrowserHostSynthesisLifecycle(t *testing.T) {
	log := &commandLog{}
	h := NewBrowserHost("s1", log.send)
	syn := h.Synthesis()

	var got []string
	voice := &speech.Voice{Name: "Google বাংলা", Lang: "bn-BD", URI: "google-bn"}
	require.NoError(t, syn.Speak(speech.Utterance{
		ID:      "u1",
		Text:    "ভর্তি চলছে",
		Lang:    speech.Bengali,
		Voice:   voice,
		Rate:    0.9,
		Pitch:   1,
		Volume:  1,
		OnStart: func() { got = append(got, "start") },
		OnEnd:   func() { got = append(got, "end") },
		OnError: func(code string) { got = append(got, "error:"+code) },
	}))
	cmd := log.last()
	assert.Equal(t, protocol.CommandSynthesisSpeak, cmd.Command)
	assert.Equal(t, "google-bn", cmd.Utterance.VoiceURI)
	assert.Equal(t, "Google বাংলা", cmd.Utterance.Voice)
	assert.InDelta(t, 0.9, cmd.Utterance.Rate, 1e-9)

	require.NoError(t, h.HandleEvent(protocol.HostEvent{Event: protocol.EventSynthesisStart, UtteranceID: "u1"}))
	require.NoError(t, h.HandleEvent(protocol.HostEvent{Event: protocol.EventSynthesisEnd, UtteranceID: "u1"}))
	assert.ErrorIs(t, h.HandleEvent(protocol.HostEvent{Event: protocol.EventSynthesisError, UtteranceID: "u1", Code: "interrupted"}), ErrUnknownHostEvent)
	assert.Equal(t, []string{"start", "end"}, got)

	syn.Cancel()
	assert.Equal(t, protocol.CommandSynthesisCancel, log.last().Command)
}

func TestBrowserHostVoicesChanged(t *testing.T) {
	h := NewBrowserHost("s1", (&commandLog{}).send)
	calls := 0
	h.OnVoicesChanged(func() { calls++ })

	h.ApplyHello(protocol.HostHello{SynthesisSupported: true, Voices: []protocol.HostVoice{{Name: "Samantha", Lang: "en-US"}}})
	require.NoError(t, h.HandleEvent(protocol.HostEvent{
		Event:  protocol.EventVoicesChanged,
		Voices: []protocol.HostVoice{{Name: "Google US English", Lang: "en-US", URI: "g-en"}, {Name: "Google বাংলা", Lang: "bn-BD"}},
	}))

	assert.Equal(t, 2, calls)
	voices := h.Synthesis().Voices()
	require.Len(t, voices, 2)
	assert.Equal(t, "g-en", voices[0].URI)
	assert.Equal(t, voices, voicesFromHost(voicesToHost(voices)))
}

func voicesToHost(in []speech.Voice) []protocol.HostVoice {
	out := make([]protocol.HostVoice, 0, len(in))
	for _, v := range in {
		out = append(out, protocol.HostVoice{
			Name:         v.Name,
			Lang:         v.Lang,
			URI:          v.URI,
			Default:      v.Default,
			LocalService: v.LocalService,
		})
	}
	return out
}
