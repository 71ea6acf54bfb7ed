package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	// SpeechHost selects where speech capabilities live: "browser" drives the
	// client's Web Speech API over the session websocket, "server" uses the
	// configured STT/TTS provider.
	SpeechHost            string
	VoiceProvider         string
	RecognitionMaxRetries int
	DefaultLanguage       string

	ElevenLabsAPIKey       string
	ElevenLabsWSBaseURL    string
	ElevenLabsSTTModelID   string
	ElevenLabsTTSModelID   string
	ElevenLabsOutputFormat string
	ElevenLabsVoiceEnglish string
	ElevenLabsVoiceBengali string

	StoreBackend string
	DatabaseURL  string
	SupabaseURL  string
	SupabaseKey  string
	// SeedFile is an optional YAML file of pronunciations and knowledge entries
	// applied at startup.
	SeedFile string

	ChatAPIURL      string
	ChatModelsURL   string
	ChatModel       string
	ChatTemperature float64
	ChatMaxTokens   int
	ChatTimeout     time.Duration
	ChatMaxRetries  int
	ChatRetryBase   time.Duration
	ChatAPIKeyName  string
	ChatSeedAPIKey  string
}

// Load reads an optional .env file, then environment variables, and applies safe defaults.
func Load() (Config, error) {
	if err := loadDotEnv(envOrDefault("APP_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "diaa"),
		AllowAnyOrigin:           false,

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),

		SpeechHost:            strings.ToLower(envOrDefault("SPEECH_HOST", "browser")),
		VoiceProvider:         strings.ToLower(envOrDefault("VOICE_PROVIDER", "mock")),
		RecognitionMaxRetries: 3,
		DefaultLanguage:       envOrDefault("DEFAULT_LANGUAGE", "en-US"),

		ElevenLabsAPIKey:       stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL:    envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsSTTModelID:   envOrDefault("ELEVENLABS_STT_MODEL", "scribe_v1"),
		ElevenLabsTTSModelID:   envOrDefault("ELEVENLABS_TTS_MODEL", "eleven_multilingual_v2"),
		ElevenLabsOutputFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "pcm_16000"),
		ElevenLabsVoiceEnglish: stringsTrimSpace("ELEVENLABS_TTS_VOICE_EN"),
		ElevenLabsVoiceBengali: stringsTrimSpace("ELEVENLABS_TTS_VOICE_BN"),

		StoreBackend: strings.ToLower(envOrDefault("STORE_BACKEND", "auto")),
		DatabaseURL:  stringsTrimSpace("DATABASE_URL"),
		SupabaseURL:  stringsTrimSpace("SUPABASE_URL"),
		SupabaseKey:  stringsTrimSpace("SUPABASE_KEY"),
		SeedFile:     stringsTrimSpace("SEED_FILE"),

		ChatAPIURL:      envOrDefault("CHAT_API_URL", "https://api.mistral.ai/v1/chat/completions"),
		ChatModelsURL:   envOrDefault("CHAT_MODELS_URL", "https://api.mistral.ai/v1/models"),
		ChatModel:       envOrDefault("CHAT_MODEL", "mistral-large-latest"),
		ChatTemperature: 0.7,
		ChatMaxTokens:   500,
		ChatTimeout:     30 * time.Second,
		ChatMaxRetries:  1,
		ChatRetryBase:   250 * time.Millisecond,
		ChatAPIKeyName:  envOrDefault("CHAT_API_KEY_NAME", "mistral"),
		ChatSeedAPIKey:  stringsTrimSpace("MISTRAL_API_KEY"),
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RecognitionMaxRetries, err = intFromEnv("RECOGNITION_MAX_RETRIES", cfg.RecognitionMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatTemperature, err = floatFromEnv("CHAT_TEMPERATURE", cfg.ChatTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatMaxTokens, err = intFromEnv("CHAT_MAX_TOKENS", cfg.ChatMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatTimeout, err = durationFromEnv("CHAT_TIMEOUT", cfg.ChatTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatMaxRetries, err = intFromEnv("CHAT_MAX_RETRIES", cfg.ChatMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatRetryBase, err = durationFromEnv("CHAT_RETRY_BASE", cfg.ChatRetryBase)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	switch c.SpeechHost {
	case "browser", "server":
	default:
		return fmt.Errorf("invalid SPEECH_HOST: %q (expected browser|server)", c.SpeechHost)
	}
	switch c.VoiceProvider {
	case "mock", "elevenlabs", "auto":
	default:
		return fmt.Errorf("invalid VOICE_PROVIDER: %q (expected mock|elevenlabs|auto)", c.VoiceProvider)
	}
	if c.VoiceProvider == "elevenlabs" && c.ElevenLabsAPIKey == "" {
		return fmt.Errorf("VOICE_PROVIDER=elevenlabs requires ELEVENLABS_API_KEY")
	}
	switch c.StoreBackend {
	case "auto", "memory", "postgres", "supabase":
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q (expected auto|memory|postgres|supabase)", c.StoreBackend)
	}
	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
	}
	if c.StoreBackend == "supabase" && (c.SupabaseURL == "" || c.SupabaseKey == "") {
		return fmt.Errorf("STORE_BACKEND=supabase requires SUPABASE_URL and SUPABASE_KEY")
	}
	switch c.DefaultLanguage {
	case "en-US", "bn-BD":
	default:
		return fmt.Errorf("invalid DEFAULT_LANGUAGE: %q (expected en-US|bn-BD)", c.DefaultLanguage)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %q (expected json|console)", c.LogFormat)
	}
	if c.RecognitionMaxRetries < 0 {
		return fmt.Errorf("RECOGNITION_MAX_RETRIES must be >= 0")
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		return fmt.Errorf("CHAT_TEMPERATURE must be within [0, 2]")
	}
	if c.ChatMaxTokens <= 0 {
		return fmt.Errorf("CHAT_MAX_TOKENS must be positive")
	}
	if c.ChatMaxRetries < 0 {
		return fmt.Errorf("CHAT_MAX_RETRIES must be >= 0")
	}
	return nil
}

// loadDotEnv applies key=value pairs from path without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
