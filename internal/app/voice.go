package app

import (
	"fmt"
	"strings"

	"github.com/aarso/diaa/internal/config"
	"github.com/aarso/diaa/internal/voice"
)

type voiceSetup struct {
	sttProvider      voice.STTProvider
	ttsProvider      voice.TTSProvider
	resolvedProvider string
	detail           string
}

func resolveVoiceProviders(cfg config.Config) (voiceSetup, error) {
	voiceMode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if voiceMode == "" {
		voiceMode = "mock"
	}

	tryElevenLabs := func() (voiceSetup, bool) {
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			return voiceSetup{}, false
		}
		p := voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
			APIKey:         cfg.ElevenLabsAPIKey,
			WSBaseURL:      cfg.ElevenLabsWSBaseURL,
			STTModelID:     cfg.ElevenLabsSTTModelID,
			TTSModelID:     cfg.ElevenLabsTTSModelID,
			OutputFormat:   cfg.ElevenLabsOutputFormat,
			EnglishVoiceID: cfg.ElevenLabsVoiceEnglish,
			BengaliVoiceID: cfg.ElevenLabsVoiceBengali,
		})
		return voiceSetup{
			sttProvider:      p,
			ttsProvider:      p,
			resolvedProvider: "elevenlabs",
			detail:           "elevenlabs realtime",
		}, true
	}

	mockSetup := func(detail string) voiceSetup {
		p := voice.NewMockProvider()
		return voiceSetup{
			sttProvider:      p,
			ttsProvider:      p,
			resolvedProvider: "mock",
			detail:           detail,
		}
	}

	switch voiceMode {
	case "mock":
		return mockSetup("mock"), nil
	case "elevenlabs":
		if setup, ok := tryElevenLabs(); ok {
			return setup, nil
		}
		return voiceSetup{}, fmt.Errorf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
	case "auto":
		elevenSetup, hasEleven := tryElevenLabs()
		if !hasEleven {
			return mockSetup("mock (no elevenlabs key)"), nil
		}
		fallback := mockSetup("")
		stt, tts := voice.NewFailoverProviderPair(
			elevenSetup.sttProvider,
			elevenSetup.ttsProvider,
			fallback.sttProvider,
			fallback.ttsProvider,
		)
		return voiceSetup{
			sttProvider:      stt,
			ttsProvider:      tts,
			resolvedProvider: "elevenlabs",
			detail:           "elevenlabs realtime (automatic mock fallback)",
		}, nil
	default:
		return voiceSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected mock|elevenlabs|auto)", cfg.VoiceProvider)
	}
}
