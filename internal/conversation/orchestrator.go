// Package conversation runs chat turns: it builds the prompt, calls the chat
// completion API, keeps the message log and hands replies to synthesis.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aarso/diaa/internal/fault"
	"github.com/aarso/diaa/internal/llm"
	"github.com/aarso/diaa/internal/policy"
	"github.com/aarso/diaa/internal/speech"
	"github.com/aarso/diaa/internal/store"
)

var (
	ErrEmptyInput    = errors.New("message is empty")
	ErrBusy          = errors.New("a reply is already in progress")
	ErrMissingAPIKey = errors.New("chat api key is not configured")
)

const DefaultKeyName = "mistral"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// Fallback marks the canned apology sent when the chat API failed.
	Fallback bool `json:"fallback,omitempty"`
}

type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

type KnowledgeSource interface {
	Combined(ctx context.Context) (string, error)
}

type KeySource interface {
	ActiveAPIKey(ctx context.Context, name string) (string, error)
}

type Speaker interface {
	Speak(text string) (*speech.SynthesisRequest, error)
}

type Observer interface {
	ObserveChat(result string, d time.Duration)
}

type Options struct {
	// KeyName selects the api_keys row; DefaultKeyName when empty.
	KeyName   string
	Knowledge KnowledgeSource
	Speaker   Speaker
	Notifier  speech.Notifier
	Observer  Observer
	Logger    *zerolog.Logger

	// OnMessage runs for every message appended to the log, in order.
	OnMessage func(Message)
	// OnBusyChange reports the loading state of a turn.
	OnBusyChange func(bool)
}

type Orchestrator struct {
	completer Completer
	keys      KeySource
	opts      Options
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	busy     bool
	messages []Message
}

func NewOrchestrator(completer Completer, keys KeySource, opts Options) *Orchestrator {
	if opts.KeyName == "" {
		opts.KeyName = DefaultKeyName
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "conversation").Logger()
	}
	o := &Orchestrator{
		completer: completer,
		keys:      keys,
		opts:      opts,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	o.messages = []Message{{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Text:      Greeting,
		Timestamp: o.now(),
	}}
	return o
}

// Messages returns a copy of the log, oldest first.
func (o *Orchestrator) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Send runs one turn and returns the assistant message it appended. Chat API
// failures are absorbed into the fallback apology, which is not spoken.
func (o *Orchestrator) Send(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyInput
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return Message{}, ErrBusy
	}
	o.busy = true
	o.mu.Unlock()
	o.busyChanged(true)
	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
		o.busyChanged(false)
	}()

	apiKey, err := o.apiKey(ctx)
	if err != nil {
		if errors.Is(err, ErrMissingAPIKey) {
			o.notify(fault.ApiError, MissingKeyMessage)
		}
		return Message{}, err
	}

	o.append(Message{Role: RoleUser, Text: text})
	o.log.Debug().Str("text", policy.LogSafe(text, 200)).Msg("user turn")

	started := time.Now()
	answer, err := o.completer.Complete(ctx, llm.Request{
		APIKey: apiKey,
		Messages: []llm.Message{
			{Role: "system", Content: SystemPrompt(o.knowledgeBase(ctx))},
			{Role: "user", Content: text},
		},
	})
	elapsed := time.Since(started)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fault.API("chat.complete", 0, llm.ErrEmptyCompletion)
	}
	if err != nil {
		o.observe("error", elapsed)
		var fe *fault.Error
		status := 0
		if errors.As(err, &fe) {
			status = fe.Status
		}
		o.log.Warn().Err(err).Int("status", status).Dur("elapsed", elapsed).Msg("chat completion failed")
		o.notify(fault.ApiError, APIFailureMessage)
		return o.append(Message{Role: RoleAssistant, Text: FallbackReply, Fallback: true}), nil
	}

	o.observe("ok", elapsed)
	reply := o.append(Message{Role: RoleAssistant, Text: answer})
	o.log.Debug().Str("text", policy.LogSafe(answer, 200)).Dur("elapsed", elapsed).Msg("assistant turn")
	o.speak(answer)
	return reply, nil
}

func (o *Orchestrator) apiKey(ctx context.Context) (string, error) {
	if o.keys == nil {
		return "", ErrMissingAPIKey
	}
	key, err := o.keys.ActiveAPIKey(ctx, o.opts.KeyName)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrMissingAPIKey
	}
	if err != nil {
		return "", fault.Persistence("conversation.api_key", err)
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingAPIKey
	}
	return key, nil
}

func (o *Orchestrator) knowledgeBase(ctx context.Context) string {
	if o.opts.Knowledge == nil {
		return ""
	}
	kb, err := o.opts.Knowledge.Combined(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("knowledge base unavailable, prompting without it")
		return ""
	}
	return kb
}

func (o *Orchestrator) append(m Message) Message {
	m.ID = uuid.NewString()
	m.Timestamp = o.now()
	o.mu.Lock()
	o.messages = append(o.messages, m)
	o.mu.Unlock()
	if o.opts.OnMessage != nil {
		o.opts.OnMessage(m)
	}
	return m
}

func (o *Orchestrator) speak(text string) {
	if o.opts.Speaker == nil {
		return
	}
	if _, err := o.opts.Speaker.Speak(text); err != nil {
		o.log.Debug().Err(err).Msg("reply not spoken")
	}
}

func (o *Orchestrator) notify(kind fault.Kind, msg string) {
	if o.opts.Notifier == nil {
		return
	}
	o.opts.Notifier.Notify(speech.Notification{
		Level:    speech.LevelError,
		Kind:     kind,
		Message:  msg,
		Language: speech.English,
	})
}

func (o *Orchestrator) observe(result string, d time.Duration) {
	if o.opts.Observer != nil {
		o.opts.Observer.ObserveChat(result, d)
	}
}

func (o *Orchestrator) busyChanged(on bool) {
	if o.opts.OnBusyChange != nil {
		o.opts.OnBusyChange(on)
	}
}
