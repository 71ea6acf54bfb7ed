package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aarso/diaa/internal/conversation"
	"github.com/aarso/diaa/internal/fault"
	"github.com/aarso/diaa/internal/knowledge"
	"github.com/aarso/diaa/internal/policy"
	"github.com/aarso/diaa/internal/pronunciation"
	"github.com/aarso/diaa/internal/store"
)

type pronunciationRequest struct {
	Word          string `json:"word"`
	Pronunciation string `json:"pronunciation"`
}

func (s *Server) handleListPronunciations(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Pronunciations == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "pronunciation dictionary not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": s.deps.Pronunciations.Entries()})
}

func (s *Server) handleAddPronunciation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pronunciations == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "pronunciation dictionary not configured")
		return
	}
	var req pronunciationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.deps.Pronunciations.Add(r.Context(), req.Word, req.Pronunciation); err != nil {
		if errors.Is(err, pronunciation.ErrInvalidEntry) {
			respondError(w, http.StatusBadRequest, "invalid_entry", err.Error())
			return
		}
		s.respondFault(w, "pronunciation.add", err)
		return
	}
	respondJSON(w, http.StatusCreated, pronunciation.Entry{
		Word:          strings.TrimSpace(req.Word),
		Pronunciation: strings.TrimSpace(req.Pronunciation),
	})
}

func (s *Server) handleRemovePronunciation(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pronunciations == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "pronunciation dictionary not configured")
		return
	}
	word := chi.URLParam(r, "word")
	if strings.TrimSpace(word) == "" {
		respondError(w, http.StatusBadRequest, "invalid_entry", "word is required")
		return
	}
	if err := s.deps.Pronunciations.Remove(r.Context(), word); err != nil {
		s.respondFault(w, "pronunciation.remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Knowledge == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "knowledge base not configured")
		return
	}
	entries, err := s.deps.Knowledge.List(r.Context())
	if err != nil {
		s.respondFault(w, "knowledge.list", err)
		return
	}
	if entries == nil {
		entries = []store.KnowledgeEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"categories": knowledge.Categories,
	})
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Knowledge == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "knowledge base not configured")
		return
	}
	var in store.KnowledgeInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	entry, err := s.deps.Knowledge.Add(r.Context(), in)
	if err != nil {
		s.respondKnowledgeError(w, "knowledge.add", err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Knowledge == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "knowledge base not configured")
		return
	}
	id, ok := knowledgeID(w, r)
	if !ok {
		return
	}
	var in store.KnowledgeInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	entry, err := s.deps.Knowledge.Update(r.Context(), id, in)
	if err != nil {
		s.respondKnowledgeError(w, "knowledge.update", err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Knowledge == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "knowledge base not configured")
		return
	}
	id, ok := knowledgeID(w, r)
	if !ok {
		return
	}
	if err := s.deps.Knowledge.Delete(r.Context(), id); err != nil {
		s.respondKnowledgeError(w, "knowledge.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func knowledgeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) respondKnowledgeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, knowledge.ErrInvalidEntry), errors.Is(err, knowledge.ErrUnknownCategory):
		respondError(w, http.StatusBadRequest, "invalid_entry", err.Error())
	case errors.Is(err, knowledge.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.respondFault(w, op, err)
	}
}

type apiKeyResponse struct {
	KeyName    string `json:"key_name"`
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

type apiKeyRequest struct {
	Value string `json:"value"`
}

func (s *Server) keyName() string {
	if name := strings.TrimSpace(s.cfg.ChatAPIKeyName); name != "" {
		return name
	}
	return conversation.DefaultKeyName
}

// activeKey returns "" without error when no key is stored.
func (s *Server) activeKey(r *http.Request) (string, error) {
	key, err := s.deps.Keys.ActiveAPIKey(r.Context(), s.keyName())
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fault.Persistence("api_key.get", err)
	}
	return strings.TrimSpace(key), nil
}

func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keys == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "key store not configured")
		return
	}
	key, err := s.activeKey(r)
	if err != nil {
		s.respondFault(w, "api_key.get", err)
		return
	}
	respondJSON(w, http.StatusOK, apiKeyResponse{
		KeyName:    s.keyName(),
		Configured: key != "",
		Masked:     policy.MaskSecret(key),
	})
}

func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keys == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "key store not configured")
		return
	}
	var req apiKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		respondError(w, http.StatusBadRequest, "invalid_api_key", "value is required")
		return
	}
	if err := s.deps.Keys.SetAPIKey(r.Context(), s.keyName(), value); err != nil {
		s.respondFault(w, "api_key.set", fault.Persistence("api_key.set", err))
		return
	}
	s.log.Info().Str("key_name", s.keyName()).Str("masked", policy.MaskSecret(value)).Msg("api key updated")
	respondJSON(w, http.StatusOK, apiKeyResponse{
		KeyName:    s.keyName(),
		Configured: true,
		Masked:     policy.MaskSecret(value),
	})
}

// handleTestAPIKey validates the posted key, or the stored one when the body
// carries none. An upstream rejection is a successful test with valid=false.
func (s *Server) handleTestAPIKey(w http.ResponseWriter, r *http.Request) {
	if s.deps.Validator == nil || s.deps.Keys == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat client not configured")
		return
	}
	var req apiKeyRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	key := strings.TrimSpace(req.Value)
	if key == "" {
		stored, err := s.activeKey(r)
		if err != nil {
			s.respondFault(w, "api_key.get", err)
			return
		}
		key = stored
	}
	if key == "" {
		respondError(w, http.StatusBadRequest, "missing_api_key", "no api key configured")
		return
	}

	err := s.deps.Validator.ValidateKey(r.Context(), key)
	if err == nil {
		respondJSON(w, http.StatusOK, map[string]any{"valid": true})
		return
	}
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Kind == fault.ApiError {
		respondJSON(w, http.StatusOK, map[string]any{
			"valid":  false,
			"status": fe.Status,
			"error":  err.Error(),
		})
		return
	}
	s.respondFault(w, "api_key.test", err)
}
