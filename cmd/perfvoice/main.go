package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aarso/diaa/internal/audio"
	"github.com/aarso/diaa/internal/protocol"
)

type options struct {
	baseURL        string
	clientID       string
	language       string
	voiceID        string
	turns          int
	chunkMS        int
	realtime       float64
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionRequest struct {
	ClientID   string `json:"client_id,omitempty"`
	Language   string `json:"language,omitempty"`
	SpeechHost string `json:"speech_host"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	WSPath    string `json:"ws_path"`
}

type previewRequest struct {
	VoiceID string `json:"voice_id,omitempty"`
	Text    string `json:"text,omitempty"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	Role   string `json:"role,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Text   string `json:"text,omitempty"`
}

type audioClip struct {
	Text       string
	PCM16LE    []byte
	SampleRate int
}

// turnEvent is what the read loop reports back to the replay loop.
type turnEvent struct {
	kind string
	text string
	at   time.Time
}

const (
	eventCommitted = "committed"
	eventReply     = "reply"
	eventFailed    = "failed"
)

var defaultUtterances = []string{
	"When does the spring semester start?",
	"Where is the admission office?",
	"What are the library opening hours?",
	"How do I apply for a scholarship?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var startDelayMS int
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "DIAA base URL")
	flag.StringVar(&cfg.clientID, "client-id", "perf-replay", "client_id used for the synthetic session")
	flag.StringVar(&cfg.language, "language", "en-US", "session language (en-US or bn-BD)")
	flag.StringVar(&cfg.voiceID, "voice-id", "", "optional voice_id for preview synthesis")
	flag.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 45, "audio chunk size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 3.0, "chunk pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&startDelayMS, "start-delay-ms", 900, "delay before first synthetic turn in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for the assistant reply per turn in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 2000 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	cfg.startDelay = time.Duration(max(startDelayMS, 0)) * time.Millisecond
	cfg.interTurnDelay = time.Duration(max(interTurnMS, 0)) * time.Millisecond
	cfg.turnTimeout = time.Duration(max(turnTimeoutMS, 1000)) * time.Millisecond

	texts, err := splitTexts(textsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.texts = texts
	return cfg, nil
}

func splitTexts(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...), nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("texts produced no non-empty utterances")
	}
	return out, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	created, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	sessionID := created.SessionID
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	if cfg.verbose {
		fmt.Printf("perfvoice: session=%s turns=%d chunk_ms=%d realtime=%.2f\n", sessionID, cfg.turns, cfg.chunkMS, cfg.realtime)
	}

	clips, err := synthClips(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("prepare utterance audio: %w", err)
	}

	wsURL, err := wsURLFor(cfg.baseURL, created.WSPath)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	events := make(chan turnEvent, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh, cfg.verbose)

	// Drop the greeting so it is not counted as the first reply.
	drainEvents(events)

	seq := 0
	latencies := make([]time.Duration, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		select {
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		default:
		}

		clip := clips[i%len(clips)]
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d/%d text=%q sample_rate=%dHz bytes=%d\n", i+1, cfg.turns, clip.Text, clip.SampleRate, len(clip.PCM16LE))
		}

		if err := sendTurnAudio(conn, sessionID, clip, cfg.chunkMS, cfg.realtime, &seq); err != nil {
			return fmt.Errorf("turn %d send audio: %w", i+1, err)
		}
		committedAt := time.Now()
		if err := sendControl(conn, sessionID, protocol.ActionCommitAudio); err != nil {
			return fmt.Errorf("turn %d send commit: %w", i+1, err)
		}
		replyAt, err := awaitReply(events, readErrCh, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await assistant reply: %w", i+1, err)
		}
		latencies = append(latencies, replyAt.Sub(committedAt))
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	p50, p95 := percentiles(latencies)
	fmt.Printf("perfvoice: replay completed turns=%d commit_to_reply_p50=%s p95=%s\n", len(latencies), p50, p95)
	return nil
}

func createSession(ctx context.Context, client *http.Client, cfg options) (createSessionResponse, error) {
	payload, err := json.Marshal(createSessionRequest{
		ClientID:   cfg.clientID,
		Language:   cfg.language,
		SpeechHost: "server",
	})
	if err != nil {
		return createSessionResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/session", bytes.NewReader(payload))
	if err != nil {
		return createSessionResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return createSessionResponse{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return createSessionResponse{}, err
	}
	if res.StatusCode != http.StatusCreated {
		return createSessionResponse{}, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return createSessionResponse{}, err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return createSessionResponse{}, fmt.Errorf("missing session_id in response")
	}
	return out, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func synthClips(ctx context.Context, client *http.Client, cfg options) ([]audioClip, error) {
	cache := make(map[string]audioClip, len(cfg.texts))
	out := make([]audioClip, 0, len(cfg.texts))
	for _, text := range cfg.texts {
		if existing, ok := cache[text]; ok {
			out = append(out, existing)
			continue
		}
		clip, err := synthClip(ctx, client, cfg, text)
		if err != nil {
			return nil, err
		}
		cache[text] = clip
		out = append(out, clip)
	}
	return out, nil
}

func synthClip(ctx context.Context, client *http.Client, cfg options, text string) (audioClip, error) {
	payload, err := json.Marshal(previewRequest{VoiceID: strings.TrimSpace(cfg.voiceID), Text: text})
	if err != nil {
		return audioClip{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/voice/tts/preview", bytes.NewReader(payload))
	if err != nil {
		return audioClip{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return audioClip{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return audioClip{}, err
	}
	if res.StatusCode != http.StatusOK {
		return audioClip{}, fmt.Errorf("preview %q HTTP %d: %s", text, res.StatusCode, strings.TrimSpace(string(body)))
	}

	pcm, sampleRate, err := audio.DecodeWAVPCM16(body)
	if err != nil {
		return audioClip{}, fmt.Errorf("decode preview wav for %q: %w", text, err)
	}
	return audioClip{Text: text, PCM16LE: pcm, SampleRate: sampleRate}, nil
}

// wsURLFor resolves the session's ws_path against the HTTP base URL.
func wsURLFor(baseURL, wsPath string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	ref, err := url.Parse(strings.TrimSpace(wsPath))
	if err != nil {
		return "", err
	}
	if ref.Path == "" {
		return "", fmt.Errorf("ws_path is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + ref.Path
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- turnEvent, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		if ev, ok := classify(data); ok {
			if ev.kind == eventFailed && verbose {
				fmt.Fprintf(os.Stderr, "perfvoice: %s\n", ev.text)
			}
			select {
			case events <- ev:
			default:
			}
		}
	}
}

// classify maps a server message to a turn event. Messages that do not
// move a turn forward are ignored.
func classify(data []byte) (turnEvent, bool) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return turnEvent{}, false
	}
	now := time.Now()
	switch protocol.MessageType(env.Type) {
	case protocol.TypeSTTCommitted:
		return turnEvent{kind: eventCommitted, text: env.Text, at: now}, true
	case protocol.TypeAssistantMessage:
		if env.Role != "assistant" {
			return turnEvent{}, false
		}
		return turnEvent{kind: eventReply, text: env.Text, at: now}, true
	case protocol.TypeErrorEvent:
		return turnEvent{kind: eventFailed, text: fmt.Sprintf("error_event code=%s detail=%s", env.Code, env.Detail), at: now}, true
	}
	return turnEvent{}, false
}

func drainEvents(events <-chan turnEvent) {
	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case <-events:
		case <-deadline:
			return
		}
	}
}

func sendTurnAudio(conn *websocket.Conn, sessionID string, clip audioClip, chunkMS int, realtime float64, seq *int) error {
	sampleRate := clip.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	for _, chunk := range splitPCM(clip.PCM16LE, sampleRate, chunkMS) {
		*seq = *seq + 1
		msg := protocol.ClientAudioChunk{
			Type:        protocol.TypeClientAudioChunk,
			SessionID:   sessionID,
			Seq:         *seq,
			PCM16Base64: base64.StdEncoding.EncodeToString(chunk),
			SampleRate:  sampleRate,
			TSMs:        time.Now().UnixMilli(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}

		pause := time.Duration(float64(time.Duration(len(chunk))*time.Second/time.Duration(sampleRate*2)) / realtime)
		if pause <= 0 {
			pause = 10 * time.Millisecond
		}
		time.Sleep(pause)
	}
	return nil
}

// splitPCM cuts pcm into sample-aligned chunks of roughly chunkMS each.
func splitPCM(pcm []byte, sampleRate, chunkMS int) [][]byte {
	size := sampleRate * 2 * chunkMS / 1000
	size &^= 1
	if size < 2 {
		size = 2
	}
	var out [][]byte
	for off := 0; off+1 < len(pcm); off += size {
		end := min(off+size, len(pcm))
		end = off + (end-off)&^1
		out = append(out, pcm[off:end])
	}
	return out
}

func sendControl(conn *websocket.Conn, sessionID, action string) error {
	return conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    action,
		TSMs:      time.Now().UnixMilli(),
	})
}

func awaitReply(events <-chan turnEvent, readErrCh <-chan error, timeout time.Duration) (time.Time, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			switch ev.kind {
			case eventReply:
				return ev.at, nil
			case eventFailed:
				return time.Time{}, fmt.Errorf("%s", ev.text)
			}
		case err := <-readErrCh:
			return time.Time{}, err
		case <-timer.C:
			return time.Time{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func percentiles(samples []time.Duration) (p50, p95 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) time.Duration {
		idx := int(q*float64(len(sorted)-1) + 0.5)
		return sorted[idx]
	}
	return at(0.50), at(0.95)
}
