package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SpeechHost != "browser" {
		t.Fatalf("SpeechHost = %q, want %q", cfg.SpeechHost, "browser")
	}
	if cfg.StoreBackend != "auto" {
		t.Fatalf("StoreBackend = %q, want %q", cfg.StoreBackend, "auto")
	}
	if cfg.RecognitionMaxRetries != 3 {
		t.Fatalf("RecognitionMaxRetries = %d, want 3", cfg.RecognitionMaxRetries)
	}
	if cfg.ChatModel != "mistral-large-latest" || cfg.ChatMaxTokens != 500 || cfg.ChatTemperature != 0.7 {
		t.Fatalf("unexpected chat defaults: model=%q tokens=%d temp=%v", cfg.ChatModel, cfg.ChatMaxTokens, cfg.ChatTemperature)
	}
	if cfg.DefaultLanguage != "en-US" {
		t.Fatalf("DefaultLanguage = %q, want en-US", cfg.DefaultLanguage)
	}
	if cfg.VoiceProvider != "mock" || cfg.ElevenLabsTTSModelID != "eleven_multilingual_v2" || cfg.ElevenLabsOutputFormat != "pcm_16000" {
		t.Fatalf("unexpected voice defaults: provider=%q model=%q format=%q", cfg.VoiceProvider, cfg.ElevenLabsTTSModelID, cfg.ElevenLabsOutputFormat)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("SPEECH_HOST", "SERVER")
	t.Setenv("RECOGNITION_MAX_RETRIES", "5")
	t.Setenv("CHAT_TIMEOUT", "4s")
	t.Setenv("DEFAULT_LANGUAGE", "bn-BD")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want :9191", cfg.BindAddr)
	}
	if cfg.SpeechHost != "server" {
		t.Fatalf("SpeechHost = %q, want server", cfg.SpeechHost)
	}
	if cfg.RecognitionMaxRetries != 5 {
		t.Fatalf("RecognitionMaxRetries = %d, want 5", cfg.RecognitionMaxRetries)
	}
	if cfg.ChatTimeout != 4*time.Second {
		t.Fatalf("ChatTimeout = %v, want 4s", cfg.ChatTimeout)
	}
	if cfg.DefaultLanguage != "bn-BD" {
		t.Fatalf("DefaultLanguage = %q, want bn-BD", cfg.DefaultLanguage)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "speech host", key: "SPEECH_HOST", value: "radio"},
		{name: "store backend", key: "STORE_BACKEND", value: "mongo"},
		{name: "voice provider", key: "VOICE_PROVIDER", value: "festival"},
		{name: "elevenlabs without key", key: "VOICE_PROVIDER", value: "elevenlabs"},
		{name: "postgres without url", key: "STORE_BACKEND", value: "postgres"},
		{name: "language", key: "DEFAULT_LANGUAGE", value: "fr-FR"},
		{name: "retries", key: "RECOGNITION_MAX_RETRIES", value: "-1"},
		{name: "temperature", key: "CHAT_TEMPERATURE", value: "hot"},
		{name: "inactivity", key: "APP_SESSION_INACTIVITY_TIMEOUT", value: "1s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() expected error for %s=%q", tc.key, tc.value)
			}
		})
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CHAT_MODEL=mistral-small-latest\nAPP_BIND_ADDR=:7000\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("APP_ENV_FILE", path)
	t.Setenv("APP_BIND_ADDR", ":7100")
	// godotenv never overrides a variable that is set, even to an empty value.
	if err := os.Unsetenv("CHAT_MODEL"); err != nil {
		t.Fatalf("unset CHAT_MODEL: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChatModel != "mistral-small-latest" {
		t.Fatalf("ChatModel = %q, want value from env file", cfg.ChatModel)
	}
	if cfg.BindAddr != ":7100" {
		t.Fatalf("BindAddr = %q, want process env to win", cfg.BindAddr)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"SPEECH_HOST",
		"VOICE_PROVIDER",
		"RECOGNITION_MAX_RETRIES",
		"DEFAULT_LANGUAGE",
		"STORE_BACKEND",
		"DATABASE_URL",
		"SUPABASE_URL",
		"SUPABASE_KEY",
		"SEED_FILE",
		"CHAT_API_URL",
		"CHAT_MODELS_URL",
		"CHAT_MODEL",
		"CHAT_TEMPERATURE",
		"CHAT_MAX_TOKENS",
		"CHAT_TIMEOUT",
		"CHAT_MAX_RETRIES",
		"CHAT_RETRY_BASE",
		"CHAT_API_KEY_NAME",
		"MISTRAL_API_KEY",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_STT_MODEL",
		"ELEVENLABS_TTS_MODEL",
		"ELEVENLABS_TTS_OUTPUT_FORMAT",
		"ELEVENLABS_TTS_VOICE_EN",
		"ELEVENLABS_TTS_VOICE_BN",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
	t.Setenv("APP_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}
