package session

import "time"

// CreateRequest is the body of POST /v1/session. All fields are optional.
type CreateRequest struct {
	ClientID   string `json:"client_id"`
	Language   string `json:"language"`
	SpeechHost string `json:"speech_host"`
}

type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	ClientID        string    `json:"client_id,omitempty"`
	Status          Status    `json:"status"`
	Language        string    `json:"language"`
	SpeechHost      string    `json:"speech_host"`
	WebSocketPath   string    `json:"ws_path"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
