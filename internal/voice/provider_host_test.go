package voice

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarso/diaa/internal/speech"
)

type syncSink struct {
	mu      sync.Mutex
	events  []string
	results []speech.RecognitionResult
	ended   chan struct{}
}

func newSyncSink() *syncSink { return &syncSink{ended: make(chan struct{})} }

func (s *syncSink) add(ev string) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *syncSink) OnStart() { s.add("start") }
func (s *syncSink) OnResult(r speech.RecognitionResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
	s.add("result")
}
func (s *syncSink) OnEnd()              { s.add("end"); close(s.ended) }
func (s *syncSink) OnError(code string) { s.add("error:" + code) }

func (s *syncSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestProviderHostRecognitionCommitEndsSession(t *testing.T) {
	mock := NewMockProvider()
	h := NewProviderHost(context.Background(), "s1", mock, mock, nil, nil)
	sink := newSyncSink()

	require.NoError(t, h.Start(speech.RecognitionConfig{Language: speech.Bengali, InterimResults: true}, sink))
	require.NoError(t, h.PushAudio(context.Background(), base64.StdEncoding.EncodeToString(toneChunk(160)), 16000, true))

	select {
	case <-sink.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition did not end")
	}
	assert.Equal(t, []string{"start", "result", "result", "end"}, sink.snapshot())
	sink.mu.Lock()
	assert.NotEmpty(t, sink.results[0].Interim)
	assert.Equal(t, "ডিআইইউতে ভর্তির যোগ্যতা কী?", sink.results[1].Final)
	sink.mu.Unlock()

	assert.ErrorIs(t, h.PushAudio(context.Background(), "AAAA", 16000, false), ErrNotListening)
}

func TestProviderHostRecognitionNoSpeech(t *testing.T) {
	mock := NewMockProvider()
	h := NewProviderHost(context.Background(), "s1", mock, mock, nil, nil)
	sink := newSyncSink()

	require.NoError(t, h.Start(speech.RecognitionConfig{Language: speech.English, InterimResults: true}, sink))
	require.NoError(t, h.PushAudio(context.Background(), base64.StdEncoding.EncodeToString(make([]byte, 320)), 16000, true))

	select {
	case <-sink.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition did not end")
	}
	assert.Equal(t, []string{"start", "error:no-speech", "end"}, sink.snapshot())
}

func TestProviderHostStopClosesSession(t *testing.T) {
	mock := NewMockProvider()
	h := NewProviderHost(context.Background(), "s1", mock, mock, nil, nil)
	sink := newSyncSink()

	require.NoError(t, h.Start(speech.RecognitionConfig{Language: speech.English}, sink))
	h.Stop()

	select {
	case <-sink.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition did not end")
	}
	assert.Equal(t, []string{"start", "end"}, sink.snapshot())
}

type audioRecorder struct {
	mu     sync.Mutex
	chunks int
	final  bool
	format string
}

func (a *audioRecorder) sink(_ string, _ int, format, _ string, final bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if final {
		a.final = true
		return
	}
	a.chunks++
	a.format = format
}

func TestProviderHostSpeakStreamsAudio(t *testing.T) {
	mock := NewMockProvider()
	rec := &audioRecorder{}
	h := NewProviderHost(context.Background(), "s1", mock, mock, rec.sink, nil)

	done := make(chan string, 2)
	require.NoError(t, h.Speak(speech.Utterance{
		ID:      "u1",
		Text:    "Classes begin next week.",
		Lang:    speech.English,
		Rate:    1,
		Volume:  1,
		OnStart: func() { done <- "start" },
		OnEnd:   func() { done <- "end" },
		OnError: func(code string) { done <- "error:" + code },
	}))

	assert.Equal(t, "start", <-done)
	assert.Equal(t, "end", <-done)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, rec.final)
	assert.Positive(t, rec.chunks)
	assert.Equal(t, "pcm_16000", rec.format)
}

func TestProviderHostSupportsVoices(t *testing.T) {
	mock := NewMockProvider()
	h := NewProviderHost(context.Background(), "s1", mock, mock, nil, nil)
	assert.True(t, h.Supported())
	assert.Len(t, h.Voices(), 3)

	h.Close()
	err := h.Start(speech.RecognitionConfig{Language: speech.English}, newSyncSink())
	assert.Error(t, err)
}
