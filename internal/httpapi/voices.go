package httpapi

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/aarso/diaa/internal/speech"
	"github.com/aarso/diaa/internal/voice"
)

type voiceSummary struct {
	VoiceID      string `json:"voice_id"`
	Name         string `json:"name"`
	Lang         string `json:"lang"`
	Default      bool   `json:"default,omitempty"`
	LocalService bool   `json:"local_service,omitempty"`
}

type listVoicesResponse struct {
	Provider       string         `json:"provider"`
	DefaultVoiceID string         `json:"default_voice_id,omitempty"`
	English        *voiceSummary  `json:"english,omitempty"`
	Bengali        *voiceSummary  `json:"bengali,omitempty"`
	Voices         []voiceSummary `json:"voices"`
}

// handleListVoices lists the server provider's voices and the ones the
// synthesizer would pick for each language. Browser voices never reach here.
func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	resp := listVoicesResponse{Provider: s.deps.VoiceProvider, Voices: []voiceSummary{}}
	if s.deps.Runtime == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	voices := s.deps.Runtime.Voices()
	catalog := speech.NewVoiceCatalog(voices)
	for _, v := range voices {
		resp.Voices = append(resp.Voices, summarizeVoice(v))
		if v.Default && resp.DefaultVoiceID == "" {
			resp.DefaultVoiceID = v.URI
		}
	}
	sort.SliceStable(resp.Voices, func(i, j int) bool {
		return strings.ToLower(resp.Voices[i].Name) < strings.ToLower(resp.Voices[j].Name)
	})
	if v := catalog.PreferredEnglish(); v != nil {
		sum := summarizeVoice(*v)
		resp.English = &sum
	}
	if v := catalog.ForBengali(); v != nil {
		sum := summarizeVoice(*v)
		resp.Bengali = &sum
	}
	respondJSON(w, http.StatusOK, resp)
}

func summarizeVoice(v speech.Voice) voiceSummary {
	return voiceSummary{
		VoiceID:      v.URI,
		Name:         v.Name,
		Lang:         v.Lang,
		Default:      v.Default,
		LocalService: v.LocalService,
	}
}

type previewTTSRequest struct {
	VoiceID string `json:"voice_id"`
	Text    string `json:"text"`
}

func (s *Server) handlePreviewTTS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runtime == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "speech runtime not configured")
		return
	}

	var req previewTTSRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	out, format, err := s.deps.Runtime.PreviewTTS(r.Context(), strings.TrimSpace(req.VoiceID), strings.TrimSpace(req.Text))
	if err != nil {
		if errors.Is(err, voice.ErrNoTTSProvider) {
			respondError(w, http.StatusNotImplemented, "unavailable", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "tts_preview_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", mimeForTTSFormat(format))
	w.Header().Set("Cache-Control", "no-store")
	if strings.TrimSpace(format) != "" {
		w.Header().Set("X-Audio-Format", strings.TrimSpace(format))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func mimeForTTSFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch {
	case strings.Contains(f, "wav"):
		return "audio/wav"
	case strings.Contains(f, "mp3"):
		return "audio/mpeg"
	case strings.Contains(f, "ogg"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
