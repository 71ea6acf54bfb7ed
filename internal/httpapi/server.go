package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aarso/diaa/internal/config"
	"github.com/aarso/diaa/internal/fault"
	"github.com/aarso/diaa/internal/observability"
	"github.com/aarso/diaa/internal/policy"
	"github.com/aarso/diaa/internal/pronunciation"
	"github.com/aarso/diaa/internal/protocol"
	"github.com/aarso/diaa/internal/session"
	"github.com/aarso/diaa/internal/speech"
	"github.com/aarso/diaa/internal/store"
)

// Runtime runs websocket sessions and server-side speech.
type Runtime interface {
	RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error
	PreviewTTS(ctx context.Context, voiceID, text string) ([]byte, string, error)
	Voices() []speech.Voice
}

type Pronunciations interface {
	Entries() []pronunciation.Entry
	Add(ctx context.Context, word, pronunciation string) error
	Remove(ctx context.Context, word string) error
}

type Knowledge interface {
	List(ctx context.Context) ([]store.KnowledgeEntry, error)
	Add(ctx context.Context, in store.KnowledgeInput) (store.KnowledgeEntry, error)
	Update(ctx context.Context, id int64, in store.KnowledgeInput) (store.KnowledgeEntry, error)
	Delete(ctx context.Context, id int64) error
}

type APIKeys interface {
	ActiveAPIKey(ctx context.Context, name string) (string, error)
	SetAPIKey(ctx context.Context, name, value string) error
}

type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey string) error
}

type Deps struct {
	Sessions       *session.Manager
	Runtime        Runtime
	Pronunciations Pronunciations
	Knowledge      Knowledge
	Keys           APIKeys
	Validator      KeyValidator
	Metrics        *observability.Metrics
	Logger         *zerolog.Logger
	// StoreMode is reported by /healthz.
	StoreMode string
	// VoiceProvider is the resolved server speech provider.
	VoiceProvider string
}

type Server struct {
	cfg      config.Config
	deps     Deps
	sessions *session.Manager
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, deps Deps) *Server {
	log := zerolog.Nop()
	if deps.Logger != nil {
		log = deps.Logger.With().Str("component", "httpapi").Logger()
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		log:      log,
		static:   newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin pages may drive a session's microphone and speaker.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session", s.handleCreateSession)
	r.Post("/v1/session/{id}/end", s.handleEndSession)
	r.Get("/v1/session/ws", s.handleSessionWS)

	r.Get("/v1/pronunciations", s.handleListPronunciations)
	r.Post("/v1/pronunciations", s.handleAddPronunciation)
	r.Delete("/v1/pronunciations/{word}", s.handleRemovePronunciation)

	r.Get("/v1/knowledge", s.handleListKnowledge)
	r.Post("/v1/knowledge", s.handleAddKnowledge)
	r.Put("/v1/knowledge/{id}", s.handleUpdateKnowledge)
	r.Delete("/v1/knowledge/{id}", s.handleDeleteKnowledge)

	r.Get("/v1/settings/api-key", s.handleGetAPIKey)
	r.Put("/v1/settings/api-key", s.handleSetAPIKey)
	r.Post("/v1/settings/api-key/test", s.handleTestAPIKey)

	r.Get("/v1/voices", s.handleListVoices)
	r.Post("/v1/voice/tts/preview", s.handlePreviewTTS)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"store_mode":     s.deps.StoreMode,
		"speech_host":    s.cfg.SpeechHost,
		"voice_provider": s.deps.VoiceProvider,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.deps.Runtime != nil && s.sessions != nil
	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":          status,
		"active_sessions": s.activeSessions(),
	})
}

func (s *Server) activeSessions() int {
	if s.sessions == nil {
		return 0
	}
	return s.sessions.ActiveCount()
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	lang := speech.English
	if l, err := speech.ParseLanguage(s.cfg.DefaultLanguage); err == nil {
		lang = l
	}
	if strings.TrimSpace(req.Language) != "" {
		parsed, err := speech.ParseLanguage(req.Language)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_language", err.Error())
			return
		}
		lang = parsed
	}
	host := strings.ToLower(strings.TrimSpace(req.SpeechHost))
	switch host {
	case "":
		host = s.cfg.SpeechHost
		if host == "" {
			host = "browser"
		}
	case "browser", "server":
	default:
		respondError(w, http.StatusBadRequest, "invalid_speech_host", "speech_host must be browser or server")
		return
	}

	sess := s.sessions.Create(strings.TrimSpace(req.ClientID), string(lang), host)
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSession("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		ClientID:        sess.ClientID,
		Status:          sess.Status,
		Language:        sess.Language,
		SpeechHost:      sess.SpeechHost,
		WebSocketPath:   "/v1/session/ws?session_id=" + url.QueryEscape(sess.ID),
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSession("ended")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.deps.Runtime == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "speech runtime not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusConflict, "session_ended", "session is no longer active")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSession("ws_connected")
	log := s.log.With().Str("session_id", sessionID).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 256)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		if err := s.deps.Runtime.RunConnection(ctx, sess, inbound, outbound); err != nil {
			log.Warn().Err(err).Msg("session connection ended with error")
		}
		// nothing else is read once the runtime is gone
		cancel()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				drainOutbound(conn, outbound)
				return
			case msg := <-outbound:
				if !s.writeMessage(conn, msg) {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "queued")
			default:
				// websocket writes stay on the writer goroutine; drop when saturated
				s.metrics.ObserveOutboundMessage(string(protocol.TypeErrorEvent), "drop_full")
			}
			continue
		}

		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.ObserveSession("ws_disconnected")
}

func (s *Server) writeMessage(conn *websocket.Conn, msg any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		s.metrics.ObserveOutboundMessage("ws", "write_error")
		return false
	}
	if t, ok := messageTypeOf(msg); ok {
		s.metrics.ObserveWSMessage("outbound", string(t))
	}
	return true
}

// drainOutbound flushes what the runtime queued before shutdown, best effort.
func drainOutbound(conn *websocket.Conn, outbound <-chan any) {
	for {
		select {
		case msg := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFault maps a service error onto a status code. Persistence
// failures are counted per operation.
func (s *Server) respondFault(w http.ResponseWriter, op string, err error) {
	switch fault.KindOf(err) {
	case fault.PersistenceError:
		s.metrics.ObserveStoreError(op)
		s.log.Error().Err(err).Str("op", op).Msg("persistence failure")
		respondError(w, http.StatusInternalServerError, string(fault.PersistenceError), err.Error())
	case fault.ApiError:
		respondError(w, http.StatusBadGateway, string(fault.ApiError), err.Error())
	default:
		s.log.Error().Err(err).Str("op", op).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", policy.LogSafe(err.Error(), 0))
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAudioChunk:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.ClientText:
		return m.Type, true
	case protocol.HostHello:
		return m.Type, true
	case protocol.HostEvent:
		return m.Type, true
	case protocol.HostCommand:
		return m.Type, true
	case protocol.STTPartial:
		return m.Type, true
	case protocol.STTCommitted:
		return m.Type, true
	case protocol.AssistantMessage:
		return m.Type, true
	case protocol.AssistantAudioChunk:
		return m.Type, true
	case protocol.StateEvent:
		return m.Type, true
	case protocol.Notification:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
