package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aarso/diaa/internal/config"
	"github.com/aarso/diaa/internal/httpapi"
	"github.com/aarso/diaa/internal/knowledge"
	"github.com/aarso/diaa/internal/llm"
	"github.com/aarso/diaa/internal/observability"
	"github.com/aarso/diaa/internal/pronunciation"
	"github.com/aarso/diaa/internal/seed"
	"github.com/aarso/diaa/internal/session"
	"github.com/aarso/diaa/internal/speech"
	"github.com/aarso/diaa/internal/store"
	"github.com/aarso/diaa/internal/voice"
)

type VoiceInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Runtime  *voice.Runtime
	Store    store.Store
	Metrics  *observability.Metrics
	Voice    VoiceInfo

	// Cleanup should be called on shutdown to release the store connection.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.NewStore(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseKey,
	})
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}
	logger.Info().Str("mode", st.Mode()).Msg("store ready")

	if err := seedAPIKey(ctx, st, cfg.ChatAPIKeyName, cfg.ChatSeedAPIKey); err != nil {
		logger.Warn().Err(err).Str("key_name", cfg.ChatAPIKeyName).Msg("seeding chat api key failed")
	}

	dictionary := pronunciation.NewDictionary(st)
	if err := dictionary.LoadAll(ctx); err != nil {
		// The assistant still speaks, just without substitutions.
		metrics.ObserveStoreError("pronunciation_load")
		logger.Warn().Err(err).Msg("loading pronunciations failed")
	}
	knowledgeSvc := knowledge.NewService(st)

	if cfg.SeedFile != "" {
		doc, err := seed.Load(cfg.SeedFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		res, err := seed.Apply(ctx, doc, dictionary, knowledgeSvc)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("apply seed: %w", err)
		}
		logger.Info().
			Str("path", cfg.SeedFile).
			Int("pronunciations", res.Pronunciations).
			Int("knowledge", res.Knowledge).
			Msg("seed applied")
	}

	chat := llm.NewClient(llm.Config{
		ChatURL:     cfg.ChatAPIURL,
		ModelsURL:   cfg.ChatModelsURL,
		Model:       cfg.ChatModel,
		Temperature: cfg.ChatTemperature,
		MaxTokens:   cfg.ChatMaxTokens,
		Timeout:     cfg.ChatTimeout,
		MaxRetries:  cfg.ChatMaxRetries,
		RetryBase:   cfg.ChatRetryBase,
	})

	setup, err := resolveVoiceProviders(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info().Str("provider", setup.resolvedProvider).Str("detail", setup.detail).Msg("voice provider ready")
	cfg.VoiceProvider = setup.resolvedProvider

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.ObserveSession("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
		logger.Info().Str("session_id", s.ID).Msg("session expired")
	})

	defaultLang, err := speech.ParseLanguage(cfg.DefaultLanguage)
	if err != nil {
		defaultLang = speech.English
	}

	runtimeLogger := logger.With().Str("component", "voice").Logger()
	runtime := voice.NewRuntime(voice.RuntimeConfig{
		SpeechHost:            cfg.SpeechHost,
		DefaultLanguage:       defaultLang,
		RecognitionMaxRetries: cfg.RecognitionMaxRetries,
		ChatKeyName:           cfg.ChatAPIKeyName,
	}, voice.Dependencies{
		Sessions:   sessions,
		Completer:  chat,
		Keys:       st,
		Knowledge:  knowledgeSvc,
		Dictionary: dictionary,
		STT:        setup.sttProvider,
		TTS:        setup.ttsProvider,
		Metrics:    metrics,
		Logger:     &runtimeLogger,
	})

	apiLogger := logger.With().Str("component", "http").Logger()
	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:       sessions,
		Runtime:        runtime,
		Pronunciations: dictionary,
		Knowledge:      knowledgeSvc,
		Keys:           st,
		Validator:      chat,
		Metrics:        metrics,
		Logger:         &apiLogger,
		StoreMode:      st.Mode(),
		VoiceProvider:  setup.resolvedProvider,
	})

	cleanup := func() error {
		if err := st.Close(); err != nil {
			return fmt.Errorf("store close: %w", err)
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Runtime:  runtime,
		Store:    st,
		Metrics:  metrics,
		Voice: VoiceInfo{
			Provider: setup.resolvedProvider,
			Detail:   setup.detail,
		},
		Cleanup: cleanup,
	}, nil
}

// seedAPIKey stores value under name unless an active key already exists.
func seedAPIKey(ctx context.Context, keys store.Store, name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	_, err := keys.ActiveAPIKey(ctx, name)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return keys.SetAPIKey(ctx, name, value)
	default:
		return err
	}
}
