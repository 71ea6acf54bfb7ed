package speech

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aarso/diaa/internal/fault"
)

type RecognitionState string

const (
	StateIdle           RecognitionState = "idle"
	StateListening      RecognitionState = "listening"
	StateAutoRestarting RecognitionState = "auto_restarting"
)

const DefaultMaxRetries = 3

// RecognitionOptions wires a controller to its consumers. Every callback is optional.
type RecognitionOptions struct {
	Language   Language
	MaxRetries int
	Notifier   Notifier
	Logger     *zerolog.Logger

	OnTranscript      func(Transcript)
	OnListeningChange func(bool)
	// OnLanguageChange fires when the controller downgrades the language on its own.
	OnLanguageChange func(Language)
	// OnEvent receives lifecycle event names for metrics.
	OnEvent func(event string)
}

// RecognitionController multiplexes a boolean "listening" flag onto at most
// one host recognition session at a time.
type RecognitionController struct {
	host RecognitionHost
	opts RecognitionOptions
	log  zerolog.Logger

	// hostMu orders host Start and Stop calls. Take it before mu, never while holding mu.
	hostMu sync.Mutex

	mu         sync.Mutex
	lang       Language
	state      RecognitionState
	want       bool
	retryCount int
	maxRetries int
	generation uint64
}

func NewRecognitionController(host RecognitionHost, opts RecognitionOptions) *RecognitionController {
	if opts.Language == "" {
		opts.Language = English
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "recognition").Logger()
	}
	return &RecognitionController{
		host:       host,
		opts:       opts,
		log:        log,
		lang:       opts.Language,
		state:      StateIdle,
		maxRetries: opts.MaxRetries,
	}
}

func (c *RecognitionController) State() RecognitionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RecognitionController) Language() Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lang
}

func (c *RecognitionController) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

func (c *RecognitionController) IsListening() bool {
	return c.State() != StateIdle
}

func (c *RecognitionController) config(lang Language) RecognitionConfig {
	return RecognitionConfig{
		Language:        lang,
		Continuous:      false,
		InterimResults:  true,
		MaxAlternatives: 3,
	}
}

// Start opens a session in lang. A session already running in lang is kept;
// one running in another language is stopped first.
func (c *RecognitionController) Start(lang Language) error {
	if c.host == nil || !c.host.Supported() {
		c.opts.Notifier.Notify(Notification{
			Level:    LevelError,
			Kind:     fault.UnsupportedCapability,
			Message:  Message(lang, MsgRecognitionUnsupported),
			Language: lang,
		})
		c.event("unsupported")
		return fault.New(fault.UnsupportedCapability, "recognition.start", nil)
	}

	c.mu.Lock()
	if c.state != StateIdle && c.lang == lang {
		c.want = true
		c.mu.Unlock()
		return nil
	}
	wasActive := c.state != StateIdle
	c.generation++
	gen := c.generation
	c.lang = lang
	c.want = true
	c.retryCount = 0
	c.state = StateListening
	c.mu.Unlock()

	if wasActive {
		c.event("stop")
	}
	c.event("start")
	opened, err := c.openHost(gen, lang, wasActive)
	if err != nil {
		c.failStart(gen, err)
		return fault.New(fault.Unknown, "recognition.start", err)
	}
	if !opened {
		return nil
	}
	if !wasActive {
		c.listeningChanged(true)
	}
	c.notifyListening(lang)
	return nil
}

// Stop ends the active session and discards any events it still produces.
func (c *RecognitionController) Stop() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.want = false
		c.mu.Unlock()
		return
	}
	c.generation++
	c.state = StateIdle
	c.want = false
	c.retryCount = 0
	c.mu.Unlock()

	c.hostMu.Lock()
	c.host.Stop()
	c.hostMu.Unlock()
	c.event("stop")
	c.listeningChanged(false)
}

func (c *RecognitionController) SetListening(on bool) error {
	if on {
		return c.Start(c.Language())
	}
	c.Stop()
	return nil
}

// SetLanguage changes the language of the next session and restarts an active one.
func (c *RecognitionController) SetLanguage(lang Language) error {
	c.mu.Lock()
	if c.lang == lang {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateIdle {
		c.lang = lang
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.Start(lang)
}

// openHost starts the host session for gen. It reports false when gen was
// superseded before the host started or while it was starting; a session
// opened for a superseded gen is stopped again.
func (c *RecognitionController) openHost(gen uint64, lang Language, stopFirst bool) (bool, error) {
	c.hostMu.Lock()
	defer c.hostMu.Unlock()
	if stopFirst {
		c.host.Stop()
	}
	if !c.isCurrent(gen) {
		return false, nil
	}
	if err := c.host.Start(c.config(lang), &recognitionSink{c: c, gen: gen}); err != nil {
		return false, err
	}
	if !c.isCurrent(gen) {
		c.host.Stop()
		return false, nil
	}
	return true, nil
}

func (c *RecognitionController) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current(gen)
}

func (c *RecognitionController) notifyListening(lang Language) {
	c.opts.Notifier.Notify(Notification{
		Level:    LevelInfo,
		Message:  Message(lang, MsgListeningStarted),
		Language: lang,
	})
}

func (c *RecognitionController) failStart(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.state = StateIdle
	c.want = false
	c.retryCount = 0
	lang := c.lang
	c.mu.Unlock()

	c.log.Warn().Err(err).Str("language", string(lang)).Msg("recognition host start failed")
	c.event("start_failed")
	c.listeningChanged(false)
	c.opts.Notifier.Notify(Notification{
		Level:    LevelError,
		Kind:     fault.Unknown,
		Message:  Message(lang, MsgUnknownError),
		Language: lang,
	})
}

func (c *RecognitionController) current(gen uint64) bool {
	return gen == c.generation && c.state != StateIdle
}

func (c *RecognitionController) handleResult(gen uint64, r RecognitionResult) {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return
	}
	lang := c.lang
	if r.Final != "" {
		c.retryCount = 0
	}
	c.mu.Unlock()

	if r.Interim != "" {
		c.event("interim")
		c.transcript(Transcript{Text: r.Interim, Final: false, Confidence: r.Confidence, Language: lang})
	}
	if r.Final != "" {
		c.event("final")
		c.transcript(Transcript{Text: r.Final, Final: true, Confidence: r.Confidence, Language: lang})
		c.Stop()
	}
}

func (c *RecognitionController) handleEnd(gen uint64) {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return
	}
	if !c.want || c.retryCount >= c.maxRetries {
		exhausted := c.want
		c.generation++
		c.state = StateIdle
		c.want = false
		c.mu.Unlock()
		if exhausted {
			c.event("retry_exhausted")
		}
		c.event("end")
		c.listeningChanged(false)
		return
	}
	c.retryCount++
	c.state = StateAutoRestarting
	c.generation++
	next := c.generation
	lang := c.lang
	attempt := c.retryCount
	c.mu.Unlock()

	c.log.Debug().Int("attempt", attempt).Str("language", string(lang)).Msg("recognition ended unexpectedly, restarting")
	c.event("auto_restart")
	opened, err := c.openHost(next, lang, false)
	if err != nil {
		c.failStart(next, err)
		return
	}
	if !opened {
		return
	}

	c.mu.Lock()
	restarted := next == c.generation && c.state == StateAutoRestarting
	if restarted {
		c.state = StateListening
	}
	c.mu.Unlock()
	if restarted {
		c.notifyListening(lang)
	}
}

func (c *RecognitionController) handleError(gen uint64, code string) {
	c.mu.Lock()
	if !c.current(gen) {
		c.mu.Unlock()
		return
	}
	c.generation++
	c.state = StateIdle
	c.want = false
	c.retryCount = 0
	lang := c.lang
	kind := RecognitionErrorKind(code)
	downgrade := kind == fault.LanguageUnsupported && lang == Bengali
	if downgrade {
		c.lang = English
	}
	c.mu.Unlock()

	c.log.Info().Str("code", code).Str("kind", string(kind)).Str("language", string(lang)).Msg("recognition error")
	c.event("error_" + string(kind))
	c.listeningChanged(false)
	if downgrade {
		c.event("language_fallback")
		if c.opts.OnLanguageChange != nil {
			c.opts.OnLanguageChange(English)
		}
	}
	c.opts.Notifier.Notify(Notification{
		Level:    LevelError,
		Kind:     kind,
		Message:  Message(lang, recognitionMessage(kind)),
		Language: lang,
	})
}

// RecognitionErrorKind maps a Web Speech API error code onto the fault taxonomy.
func RecognitionErrorKind(code string) fault.Kind {
	switch code {
	case "no-speech":
		return fault.NoSpeechDetected
	case "audio-capture":
		return fault.MicrophoneUnavailable
	case "not-allowed", "service-not-allowed":
		return fault.PermissionDenied
	case "language-not-supported":
		return fault.LanguageUnsupported
	default:
		return fault.Unknown
	}
}

func recognitionMessage(kind fault.Kind) MessageKey {
	switch kind {
	case fault.NoSpeechDetected:
		return MsgNoSpeech
	case fault.MicrophoneUnavailable:
		return MsgMicrophone
	case fault.PermissionDenied:
		return MsgPermission
	case fault.LanguageUnsupported:
		return MsgLanguageUnsupported
	default:
		return MsgUnknownError
	}
}

func (c *RecognitionController) transcript(t Transcript) {
	if c.opts.OnTranscript != nil {
		c.opts.OnTranscript(t)
	}
}

func (c *RecognitionController) listeningChanged(on bool) {
	if c.opts.OnListeningChange != nil {
		c.opts.OnListeningChange(on)
	}
}

func (c *RecognitionController) event(name string) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(name)
	}
}

// recognitionSink binds host events to the session generation that opened it.
type recognitionSink struct {
	c   *RecognitionController
	gen uint64
}

func (s *recognitionSink) OnStart() {
	s.c.mu.Lock()
	stale := !s.c.current(s.gen)
	s.c.mu.Unlock()
	if stale {
		return
	}
	s.c.event("host_start")
}

func (s *recognitionSink) OnResult(r RecognitionResult) { s.c.handleResult(s.gen, r) }
func (s *recognitionSink) OnEnd()                       { s.c.handleEnd(s.gen) }
func (s *recognitionSink) OnError(code string)          { s.c.handleError(s.gen, code) }

