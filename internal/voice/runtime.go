package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aarso/diaa/internal/audio"
	"github.com/aarso/diaa/internal/conversation"
	"github.com/aarso/diaa/internal/observability"
	"github.com/aarso/diaa/internal/policy"
	"github.com/aarso/diaa/internal/protocol"
	"github.com/aarso/diaa/internal/session"
	"github.com/aarso/diaa/internal/speech"
)

const (
	SpeechHostBrowser = "browser"
	SpeechHostServer  = "server"
)

const (
	criticalSendTimeout = 600 * time.Millisecond
	previewTimeout      = 12 * time.Second
	turnTimeout         = 90 * time.Second
)

var ErrNoTTSProvider = errors.New("no tts provider configured")

type RuntimeConfig struct {
	// SpeechHost is the default for sessions that do not pick one.
	SpeechHost            string
	DefaultLanguage       speech.Language
	RecognitionMaxRetries int
	ChatKeyName           string
}

type Dependencies struct {
	Sessions   *session.Manager
	Completer  conversation.Completer
	Keys       conversation.KeySource
	Knowledge  conversation.KnowledgeSource
	Dictionary speech.Substituter
	STT        STTProvider
	TTS        TTSProvider
	Metrics    *observability.Metrics
	Logger     *zerolog.Logger
}

// Runtime owns the per-connection speech pipeline: recognition feeds the
// conversation, and replies go to synthesis on whichever host the session uses.
type Runtime struct {
	cfg  RuntimeConfig
	deps Dependencies
	log  zerolog.Logger
}

func NewRuntime(cfg RuntimeConfig, deps Dependencies) *Runtime {
	if cfg.SpeechHost == "" {
		cfg.SpeechHost = SpeechHostBrowser
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = speech.English
	}
	log := zerolog.Nop()
	if deps.Logger != nil {
		log = deps.Logger.With().Str("component", "voice_runtime").Logger()
	}
	return &Runtime{cfg: cfg, deps: deps, log: log}
}

// Voices lists the server provider's voices; browser voices live in the page.
func (r *Runtime) Voices() []speech.Voice {
	if l, ok := r.deps.TTS.(VoiceLister); ok {
		return l.Voices()
	}
	return nil
}

// PreviewTTS synthesizes a standalone utterance through the server TTS
// provider. PCM output is wrapped as WAV. An empty text previews the
// bilingual test phrase.
func (r *Runtime) PreviewTTS(ctx context.Context, voiceID, text string) ([]byte, string, error) {
	if r.deps.TTS == nil {
		return nil, "", ErrNoTTSProvider
	}
	ctx, cancel := context.WithTimeout(ctx, previewTimeout)
	defer cancel()

	if strings.TrimSpace(text) == "" {
		text = speech.TestVoiceText
	}
	text = speech.Preprocess(text, r.deps.Dictionary)
	settings := TTSSettings{Language: speech.English, Rate: 1.0, Pitch: 1.0, Volume: 1.0}
	if speech.ContainsBengali(text) {
		settings.Language = speech.Bengali
		settings.Rate = 0.9
	}

	stream, err := r.deps.TTS.StartStream(ctx, strings.TrimSpace(voiceID), settings)
	if err != nil {
		return nil, "", err
	}
	defer stream.Close()

	if err := stream.SendText(ctx, speakableText(text), true); err != nil {
		_ = stream.CloseInput(ctx)
		return nil, "", err
	}
	_ = stream.CloseInput(ctx)

	var out bytes.Buffer
	var format string
	finish := func() ([]byte, string, error) {
		return wrapPreview(out.Bytes(), strings.TrimSpace(format))
	}
	for {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case evt, ok := <-stream.Events():
			if !ok {
				return finish()
			}
			switch evt.Type {
			case TTSEventAudio:
				if format == "" && strings.TrimSpace(evt.Format) != "" {
					format = strings.TrimSpace(evt.Format)
				}
				if strings.TrimSpace(evt.AudioBase64) == "" {
					continue
				}
				chunk, err := base64.StdEncoding.DecodeString(evt.AudioBase64)
				if err != nil {
					return nil, "", fmt.Errorf("decode audio chunk: %w", err)
				}
				_, _ = out.Write(chunk)
			case TTSEventFinal:
				return finish()
			case TTSEventError:
				return nil, "", fmt.Errorf("tts error: %s %s", strings.TrimSpace(evt.Code), strings.TrimSpace(evt.Detail))
			}
		}
	}
}

// wrapPreview turns pcm_<rate> output into audio/wav and passes other formats through.
func wrapPreview(raw []byte, format string) ([]byte, string, error) {
	rate, ok := pcmSampleRate(format)
	if !ok {
		return raw, format, nil
	}
	wav, err := audio.EncodeWAVPCM16LE(raw, rate)
	if err != nil {
		return nil, "", err
	}
	return wav, "wav", nil
}

func pcmSampleRate(format string) (int, bool) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// RunConnection drives one websocket connection until inbound closes or ctx
// ends. Client messages and deferred controller work run serially on this
// goroutine; provider pumps and chat turns run on their own.
func (r *Runtime) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := speech.NewLoopScheduler(64)
	defer sched.Close()

	c := &connection{
		r:        r,
		ctx:      ctx,
		cancel:   cancel,
		session:  s,
		outbound: outbound,
		log:      r.log.With().Str("session_id", s.ID).Logger(),
	}
	if err := c.setup(sched); err != nil {
		c.send(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: s.ID,
			Code:      "speech_host_unavailable",
			Source:    "runtime",
			Detail:    err.Error(),
		})
		return err
	}
	defer c.teardown()

	c.send(protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: s.ID,
		Code:      "session_ready",
		Detail:    c.hostKind,
	})
	for _, m := range c.chat.Messages() {
		c.sendMessage(m)
	}
	c.sendState()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-sched.Tasks():
			fn()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			if r.deps.Sessions != nil {
				_ = r.deps.Sessions.Touch(s.ID)
			}
			c.handle(msg)
		}
	}
}

type connection struct {
	r        *Runtime
	ctx      context.Context
	cancel   context.CancelFunc
	session  *session.Session
	outbound chan<- any
	log      zerolog.Logger
	hostKind string

	browser  *BrowserHost
	provider *ProviderHost
	recog    *speech.RecognitionController
	synth    *speech.SynthesisController
	chat     *conversation.Orchestrator

	turns sync.WaitGroup
}

func (c *connection) setup(sched *speech.LoopScheduler) error {
	r := c.r
	c.hostKind = strings.ToLower(strings.TrimSpace(c.session.SpeechHost))
	if c.hostKind == "" {
		c.hostKind = r.cfg.SpeechHost
	}
	lang := r.cfg.DefaultLanguage
	if l, err := speech.ParseLanguage(c.session.Language); err == nil {
		lang = l
	}

	var (
		recHost speech.RecognitionHost
		synHost speech.SynthesisHost
	)
	switch c.hostKind {
	case SpeechHostServer:
		if r.deps.STT == nil || r.deps.TTS == nil {
			return errors.New("server speech host requested but no voice provider is configured")
		}
		c.provider = NewProviderHost(c.ctx, c.session.ID, r.deps.STT, r.deps.TTS, c.sendAudio, &c.log)
		recHost, synHost = c.provider, c.provider
	case SpeechHostBrowser:
		c.browser = NewBrowserHost(c.session.ID, c.sendCritical)
		recHost, synHost = c.browser.Recognition(), c.browser.Synthesis()
	default:
		return fmt.Errorf("unknown speech host %q", c.hostKind)
	}

	notifier := speech.NotifierFunc(c.notify)
	c.synth = speech.NewSynthesisController(synHost, speech.SynthesisOptions{
		Dictionary:       r.deps.Dictionary,
		Scheduler:        sched,
		Notifier:         notifier,
		Logger:           &c.log,
		OnSpeakingChange: func(bool) { c.sendState() },
		OnEvent:          r.deps.Metrics.ObserveSynthesis,
	})
	if c.browser != nil {
		c.browser.OnVoicesChanged(func() {
			c.synth.RefreshVoices()
			c.sendState()
		})
	}

	c.chat = conversation.NewOrchestrator(r.deps.Completer, r.deps.Keys, conversation.Options{
		KeyName:      r.cfg.ChatKeyName,
		Knowledge:    r.deps.Knowledge,
		Speaker:      c.synth,
		Notifier:     notifier,
		Observer:     r.deps.Metrics,
		Logger:       &c.log,
		OnMessage:    c.sendMessage,
		OnBusyChange: func(bool) { c.sendState() },
	})

	c.recog = speech.NewRecognitionController(recHost, speech.RecognitionOptions{
		Language:          lang,
		MaxRetries:        r.cfg.RecognitionMaxRetries,
		Notifier:          notifier,
		Logger:            &c.log,
		OnTranscript:      c.onTranscript,
		OnListeningChange: func(bool) { c.sendState() },
		OnLanguageChange: func(l speech.Language) {
			if r.deps.Sessions != nil {
				_ = r.deps.Sessions.SetLanguage(c.session.ID, string(l))
			}
			c.sendState()
		},
		OnEvent: r.deps.Metrics.ObserveRecognition,
	})
	return nil
}

func (c *connection) teardown() {
	c.recog.Stop()
	if c.provider != nil {
		c.provider.Close()
	}
	c.cancel()
	c.turns.Wait()
}

func (c *connection) handle(msg any) {
	switch m := msg.(type) {
	case protocol.ClientControl:
		c.handleControl(m)
	case protocol.ClientText:
		c.startTurn(m.Text)
	case protocol.ClientAudioChunk:
		if c.provider == nil {
			c.sendError("audio_not_expected", "audio chunks require the server speech host")
			return
		}
		if err := c.provider.PushAudio(c.ctx, m.PCM16Base64, m.SampleRate, false); err != nil && !errors.Is(err, ErrNotListening) {
			c.log.Warn().Err(err).Msg("forward audio chunk")
		}
	case protocol.HostHello:
		if c.browser == nil {
			return
		}
		c.browser.ApplyHello(m)
		c.sendState()
	case protocol.HostEvent:
		if c.browser == nil {
			return
		}
		if err := c.browser.HandleEvent(m); err != nil {
			c.log.Debug().Str("event", m.Event).Uint64("recognition_id", m.RecognitionID).Str("utterance_id", m.UtteranceID).Msg("host event dropped")
		}
	default:
		c.log.Debug().Str("type", fmt.Sprintf("%T", msg)).Msg("unhandled inbound message")
	}
}

func (c *connection) handleControl(m protocol.ClientControl) {
	switch m.Action {
	case protocol.ActionStartListening:
		_ = c.recog.SetListening(true)
	case protocol.ActionStopListening:
		c.recog.Stop()
		if c.provider != nil {
			c.provider.Stop()
		}
	case protocol.ActionCommitAudio:
		if c.provider != nil {
			if err := c.provider.PushAudio(c.ctx, "", 16000, true); err != nil && !errors.Is(err, ErrNotListening) {
				c.log.Warn().Err(err).Msg("commit audio")
			}
		}
	case protocol.ActionSetLanguage:
		lang, err := speech.ParseLanguage(m.Language)
		if err != nil {
			c.sendError("invalid_language", err.Error())
			return
		}
		_ = c.recog.SetLanguage(lang)
		if c.r.deps.Sessions != nil {
			_ = c.r.deps.Sessions.SetLanguage(c.session.ID, string(lang))
		}
		c.sendState()
	case protocol.ActionStopSpeaking:
		if c.synth.IsSpeaking() && c.r.deps.Sessions != nil {
			_ = c.r.deps.Sessions.Interrupt(c.session.ID)
		}
		c.synth.Stop()
	case protocol.ActionTestVoice:
		_, _ = c.synth.TestVoice()
	default:
		c.sendError("unknown_action", fmt.Sprintf("unsupported client_control action %q", m.Action))
	}
}

func (c *connection) onTranscript(t speech.Transcript) {
	if !t.Final {
		c.send(protocol.STTPartial{
			Type:       protocol.TypeSTTPartial,
			SessionID:  c.session.ID,
			Text:       t.Text,
			Language:   string(t.Language),
			Confidence: t.Confidence,
			TSMs:       time.Now().UnixMilli(),
		})
		return
	}
	c.send(protocol.STTCommitted{
		Type:       protocol.TypeSTTCommitted,
		SessionID:  c.session.ID,
		Text:       t.Text,
		Language:   string(t.Language),
		Confidence: t.Confidence,
		TSMs:       time.Now().UnixMilli(),
	})
	c.log.Debug().Str("text", policy.LogSafe(t.Text, 200)).Msg("transcript committed")
	c.startTurn(t.Text)
}

// startTurn runs a chat turn off the loop so control messages such as
// stop_speaking keep flowing while the model answers.
func (c *connection) startTurn(text string) {
	if c.chat.Busy() {
		c.sendError("turn_in_progress", "a reply is already being prepared")
		return
	}
	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		ctx, cancel := context.WithTimeout(c.ctx, turnTimeout)
		defer cancel()
		started := time.Now()
		_, err := c.chat.Send(ctx, text)
		switch {
		case err == nil:
			c.r.deps.Metrics.ObserveStage("turn_total", time.Since(started))
			if c.r.deps.Sessions != nil {
				_ = c.r.deps.Sessions.RecordTurn(c.session.ID)
			}
		case errors.Is(err, conversation.ErrEmptyInput):
		case errors.Is(err, conversation.ErrBusy):
			c.sendError("turn_in_progress", "a reply is already being prepared")
		case errors.Is(err, conversation.ErrMissingAPIKey):
			// already surfaced as a notification
		default:
			c.log.Error().Err(err).Msg("chat turn failed")
			c.sendError("turn_failed", err.Error())
		}
	}()
}

func (c *connection) notify(n speech.Notification) {
	c.send(protocol.Notification{
		Type:      protocol.TypeNotification,
		SessionID: c.session.ID,
		Level:     string(n.Level),
		Kind:      string(n.Kind),
		Message:   n.Message,
		Language:  string(n.Language),
	})
}

func (c *connection) sendMessage(m conversation.Message) {
	c.send(protocol.AssistantMessage{
		Type:      protocol.TypeAssistantMessage,
		SessionID: c.session.ID,
		MessageID: m.ID,
		Role:      string(m.Role),
		Text:      m.Text,
		Fallback:  m.Fallback,
		TSMs:      m.Timestamp.UnixMilli(),
	})
}

func (c *connection) sendState() {
	if c.recog == nil || c.synth == nil || c.chat == nil {
		return
	}
	c.send(protocol.StateEvent{
		Type:             protocol.TypeStateEvent,
		SessionID:        c.session.ID,
		Listening:        c.recog.IsListening(),
		Speaking:         c.synth.IsSpeaking(),
		Busy:             c.chat.Busy(),
		Language:         string(c.recog.Language()),
		RecognitionState: string(c.recog.State()),
	})
}

func (c *connection) sendAudio(utteranceID string, seq int, format, audioBase64 string, final bool) {
	c.send(protocol.AssistantAudioChunk{
		Type:        protocol.TypeAssistantAudio,
		SessionID:   c.session.ID,
		UtteranceID: utteranceID,
		Seq:         seq,
		Format:      format,
		AudioBase64: audioBase64,
		Final:       final,
	})
}

func (c *connection) sendError(code, detail string) {
	c.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: c.session.ID,
		Code:      code,
		Source:    "runtime",
		Detail:    detail,
	})
}

// sendCritical is the browser host's command path; a command that cannot be
// queued is reported to the controller as a host failure.
func (c *connection) sendCritical(msg any) error {
	if !c.send(msg) {
		return errors.New("outbound queue unavailable")
	}
	return nil
}

func (c *connection) send(msg any) bool {
	msgType, critical := outboundMessageMeta(msg)
	metrics := c.r.deps.Metrics

	if !critical {
		select {
		case c.outbound <- msg:
			metrics.ObserveOutboundMessage(msgType, "delivered")
			return true
		default:
			metrics.ObserveOutboundMessage(msgType, "dropped")
			metrics.ObserveSession("outbound_drop")
			return false
		}
	}

	timer := time.NewTimer(criticalSendTimeout)
	defer timer.Stop()
	select {
	case c.outbound <- msg:
		metrics.ObserveOutboundMessage(msgType, "delivered")
		return true
	case <-c.ctx.Done():
		metrics.ObserveOutboundMessage(msgType, "closed")
		return false
	case <-timer.C:
		metrics.ObserveOutboundMessage(msgType, "timeout")
		metrics.ObserveSession("outbound_timeout_critical")
		return false
	}
}

func outboundMessageMeta(msg any) (msgType string, critical bool) {
	switch m := msg.(type) {
	case protocol.STTPartial:
		return string(m.Type), false
	case protocol.StateEvent:
		return string(m.Type), true
	case protocol.HostCommand:
		return string(m.Type), true
	case protocol.STTCommitted:
		return string(m.Type), true
	case protocol.AssistantMessage:
		return string(m.Type), true
	case protocol.AssistantAudioChunk:
		return string(m.Type), true
	case protocol.Notification:
		return string(m.Type), true
	case protocol.SystemEvent:
		return string(m.Type), true
	case protocol.ErrorEvent:
		return string(m.Type), true
	default:
		return "unknown", false
	}
}
