package speech

import (
	"errors"
	"sync"
)

type fakeRecognitionHost struct {
	unsupported bool
	startErr    error

	mu     sync.Mutex
	starts []RecognitionConfig
	sinks  []RecognitionSink
	stops  int
}

func (h *fakeRecognitionHost) Supported() bool { return !h.unsupported }

func (h *fakeRecognitionHost) Start(cfg RecognitionConfig, sink RecognitionSink) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startErr != nil {
		return h.startErr
	}
	h.starts = append(h.starts, cfg)
	h.sinks = append(h.sinks, sink)
	return nil
}

func (h *fakeRecognitionHost) Stop() {
	h.mu.Lock()
	h.stops++
	h.mu.Unlock()
}

func (h *fakeRecognitionHost) last() RecognitionSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinks[len(h.sinks)-1]
}

func (h *fakeRecognitionHost) startCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.starts)
}

type fakeSynthesisHost struct {
	unsupported bool
	speakErr    error
	voices      []Voice

	mu         sync.Mutex
	utterances []Utterance
	cancels    int
}

func (h *fakeSynthesisHost) Supported() bool { return !h.unsupported }

func (h *fakeSynthesisHost) Voices() []Voice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Voice(nil), h.voices...)
}

func (h *fakeSynthesisHost) Speak(u Utterance) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.speakErr != nil {
		return h.speakErr
	}
	h.utterances = append(h.utterances, u)
	return nil
}

func (h *fakeSynthesisHost) Cancel() {
	h.mu.Lock()
	h.cancels++
	h.mu.Unlock()
}

func (h *fakeSynthesisHost) cancelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels
}

func (h *fakeSynthesisHost) submitted() []Utterance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Utterance(nil), h.utterances...)
}

type manualScheduler struct {
	queue []func()
}

func (s *manualScheduler) Defer(fn func()) { s.queue = append(s.queue, fn) }

func (s *manualScheduler) RunPending() {
	pending := s.queue
	s.queue = nil
	for _, fn := range pending {
		fn()
	}
}

// gatedRecognitionHost holds Start until release is closed once gate is set.
type gatedRecognitionHost struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	gate  bool
	open  bool
	sinks []RecognitionSink
}

func newGatedRecognitionHost() *gatedRecognitionHost {
	return &gatedRecognitionHost{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (h *gatedRecognitionHost) Supported() bool { return true }

func (h *gatedRecognitionHost) Start(_ RecognitionConfig, sink RecognitionSink) error {
	h.mu.Lock()
	gate := h.gate
	h.mu.Unlock()
	if gate {
		h.entered <- struct{}{}
		<-h.release
	}
	h.mu.Lock()
	h.open = true
	h.sinks = append(h.sinks, sink)
	h.mu.Unlock()
	return nil
}

func (h *gatedRecognitionHost) Stop() {
	h.mu.Lock()
	h.open = false
	h.mu.Unlock()
}

func (h *gatedRecognitionHost) closeGate() {
	h.mu.Lock()
	h.gate = true
	h.mu.Unlock()
}

func (h *gatedRecognitionHost) isOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

func (h *gatedRecognitionHost) last() RecognitionSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinks[len(h.sinks)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (n *recordingNotifier) Notify(x Notification) {
	n.mu.Lock()
	n.items = append(n.items, x)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.items...)
}

func (n *recordingNotifier) lastMessage() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) == 0 {
		return ""
	}
	return n.items[len(n.items)-1].Message
}

var errHostDown = errors.New("host down")
