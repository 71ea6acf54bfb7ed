package speech

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aarso/diaa/internal/fault"
)

const TestVoiceText = "Hello! I am your DIU Assistant. আমি ডাফোডিল ইন্টারন্যাশনাল ইউনিভার্সিটির AI সহকারী। আপনি কীভাবে সাহায্য পেতে চান?"

const (
	bengaliRate = 0.9
	defaultRate = 1.0
)

type tokenState int

const (
	tokenLive tokenState = iota
	tokenSuperseded
	tokenCancelled
)

func (s tokenState) String() string {
	switch s {
	case tokenLive:
		return "live"
	case tokenSuperseded:
		return "superseded"
	case tokenCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SynthesisRequest is one Speak call after preprocessing and voice selection.
type SynthesisRequest struct {
	ID            string
	RawText       string
	ProcessedText string
	Language      Language
	Voice         *Voice
	Rate          float64
	Pitch         float64
	Volume        float64

	generation uint64
	state      tokenState
}

type SynthesisOptions struct {
	Dictionary Substituter
	Scheduler  Scheduler
	Notifier   Notifier
	Logger     *zerolog.Logger

	OnSpeakingChange func(bool)
	OnEvent          func(event string)
}

// SynthesisController turns replies into utterances and keeps stale host
// callbacks from touching the speaking state of newer requests.
//
// speakMu serializes Speak, Stop's deferred cancel and host submission; mu
// guards state and is the only lock host callbacks take.
type SynthesisController struct {
	host    SynthesisHost
	opts    SynthesisOptions
	catalog *VoiceCatalog
	log     zerolog.Logger

	speakMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	live       *SynthesisRequest
	speaking   bool
}

func NewSynthesisController(host SynthesisHost, opts SynthesisOptions) *SynthesisController {
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = goScheduler{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "synthesis").Logger()
	}
	c := &SynthesisController{
		host:    host,
		opts:    opts,
		catalog: NewVoiceCatalog(nil),
		log:     log,
	}
	c.RefreshVoices()
	return c
}

type goScheduler struct{}

func (goScheduler) Defer(fn func()) { go fn() }

func (c *SynthesisController) supported() bool {
	return c.host != nil && c.host.Supported()
}

// RefreshVoices re-reads the host voice list. Hosts call it whenever their catalog changes.
func (c *SynthesisController) RefreshVoices() {
	if !c.supported() {
		return
	}
	c.catalog.Replace(c.host.Voices())
	c.event("voices_refreshed")
}

func (c *SynthesisController) Catalog() *VoiceCatalog { return c.catalog }

func (c *SynthesisController) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Preprocess strips emoji, applies pronunciations and normalizes whitespace.
func Preprocess(text string, sub Substituter) string {
	out := CollapseSpace(StripEmoji(text))
	if sub != nil {
		out = CollapseSpace(sub.Apply(out))
	}
	return out
}

// Speak supersedes the live request and submits text as a new utterance. It
// returns nil without submitting when nothing speakable is left after preprocessing.
func (c *SynthesisController) Speak(text string) (*SynthesisRequest, error) {
	if !c.supported() {
		c.opts.Notifier.Notify(Notification{
			Level:   LevelError,
			Kind:    fault.UnsupportedCapability,
			Message: Message(English, MsgSynthesisUnsupported),
		})
		return nil, fault.New(fault.UnsupportedCapability, "synthesis.speak", nil)
	}

	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.mu.Lock()
	if c.live != nil && c.live.state != tokenSuperseded {
		c.live.state = tokenSuperseded
	}
	c.generation++
	gen := c.generation
	c.live = nil
	c.mu.Unlock()
	c.host.Cancel()

	processed := Preprocess(text, c.opts.Dictionary)
	if processed == "" {
		c.setSpeaking(gen, false)
		c.event("empty")
		return nil, nil
	}

	req := &SynthesisRequest{
		ID:            uuid.NewString(),
		RawText:       text,
		ProcessedText: processed,
		Pitch:         1.0,
		Volume:        1.0,
		generation:    gen,
	}
	if ContainsBengali(processed) {
		req.Language = Bengali
		req.Voice = c.catalog.ForBengali()
		req.Rate = bengaliRate
	} else {
		req.Language = English
		req.Voice = c.catalog.PreferredEnglish()
		req.Rate = defaultRate
	}

	c.mu.Lock()
	c.live = req
	c.mu.Unlock()

	c.event("submit")
	err := c.host.Speak(Utterance{
		ID:      req.ID,
		Text:    req.ProcessedText,
		Lang:    req.Language,
		Voice:   req.Voice,
		Rate:    req.Rate,
		Pitch:   req.Pitch,
		Volume:  req.Volume,
		OnStart: func() { c.onStart(req) },
		OnEnd:   func() { c.onEnd(req) },
		OnError: func(code string) { c.onError(req, code) },
	})
	if err != nil {
		c.log.Warn().Err(err).Str("utterance_id", req.ID).Msg("synthesis submit failed")
		c.onError(req, "submit-failed")
	}
	return req, nil
}

// Stop cancels the live request. The host is told to stop on the next
// scheduler turn, unless a newer request was issued by then.
func (c *SynthesisController) Stop() {
	if !c.supported() {
		return
	}
	c.mu.Lock()
	if c.live != nil && c.live.state == tokenLive {
		c.live.state = tokenCancelled
	}
	gen := c.generation
	c.mu.Unlock()
	c.event("stop")

	c.opts.Scheduler.Defer(func() {
		c.speakMu.Lock()
		defer c.speakMu.Unlock()
		c.mu.Lock()
		stale := gen != c.generation
		c.mu.Unlock()
		if stale {
			return
		}
		c.host.Cancel()
		c.setSpeaking(gen, false)
	})
}

// TestVoice speaks the bilingual greeting.
func (c *SynthesisController) TestVoice() (*SynthesisRequest, error) {
	return c.Speak(TestVoiceText)
}

// TokenState returns the state name of req's token.
func (c *SynthesisController) TokenState(req *SynthesisRequest) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return req.state.String()
}

func (c *SynthesisController) onStart(req *SynthesisRequest) {
	c.mu.Lock()
	if req.state == tokenSuperseded || req.generation != c.generation {
		c.mu.Unlock()
		return
	}
	req.state = tokenLive
	changed := !c.speaking
	c.speaking = true
	c.mu.Unlock()

	c.event("start")
	if changed {
		c.speakingChanged(true)
	}
}

func (c *SynthesisController) onEnd(req *SynthesisRequest) {
	c.mu.Lock()
	if req.state != tokenLive || c.live != req {
		c.mu.Unlock()
		c.event("end_suppressed")
		return
	}
	changed := c.speaking
	c.speaking = false
	c.live = nil
	c.mu.Unlock()

	c.event("end")
	if changed {
		c.speakingChanged(false)
	}
}

func (c *SynthesisController) onError(req *SynthesisRequest, code string) {
	if code == "canceled" || code == "interrupted" {
		c.event("error_ignored")
		return
	}
	c.mu.Lock()
	if req.state != tokenLive || c.live != req {
		c.mu.Unlock()
		c.event("error_suppressed")
		return
	}
	changed := c.speaking
	c.speaking = false
	c.live = nil
	c.mu.Unlock()

	lang := English
	if ContainsBengali(req.ProcessedText) {
		lang = Bengali
	}
	c.log.Info().Str("code", code).Str("utterance_id", req.ID).Msg("synthesis error")
	c.event("error")
	if changed {
		c.speakingChanged(false)
	}
	c.opts.Notifier.Notify(Notification{
		Level:    LevelError,
		Kind:     fault.SynthesisError,
		Message:  Message(lang, MsgSynthesisError),
		Language: lang,
	})
}

func (c *SynthesisController) setSpeaking(gen uint64, on bool) {
	c.mu.Lock()
	if gen != c.generation || c.speaking == on {
		c.mu.Unlock()
		return
	}
	c.speaking = on
	c.mu.Unlock()
	c.speakingChanged(on)
}

func (c *SynthesisController) speakingChanged(on bool) {
	if c.opts.OnSpeakingChange != nil {
		c.opts.OnSpeakingChange(on)
	}
}

func (c *SynthesisController) event(name string) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(name)
	}
}
