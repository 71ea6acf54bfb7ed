package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Pronunciation maps a word or phrase to the text the synthesizer should read instead.
type Pronunciation struct {
	ID            int64     `json:"id"`
	Word          string    `json:"word"`
	Pronunciation string    `json:"pronunciation"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// KnowledgeEntry is one article of the knowledge base injected into the system prompt.
type KnowledgeEntry struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KnowledgeInput carries the editable fields of a knowledge entry.
type KnowledgeInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// APIKey is a named credential for an upstream service. Only one active row per name.
type APIKey struct {
	ID        int64     `json:"id"`
	KeyName   string    `json:"key_name"`
	KeyValue  string    `json:"key_value"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists pronunciations, knowledge entries and API keys.
// Deletes are soft: rows are flagged inactive and disappear from listings.
type Store interface {
	// ListPronunciations returns active rows ordered by creation time, oldest first.
	ListPronunciations(ctx context.Context) ([]Pronunciation, error)
	// SavePronunciation updates the active row for word, or inserts one.
	SavePronunciation(ctx context.Context, word, pronunciation string) (Pronunciation, error)
	DeactivatePronunciation(ctx context.Context, word string) error

	// ListKnowledge returns active entries ordered by creation time, newest first.
	ListKnowledge(ctx context.Context) ([]KnowledgeEntry, error)
	AddKnowledge(ctx context.Context, in KnowledgeInput) (KnowledgeEntry, error)
	UpdateKnowledge(ctx context.Context, id int64, in KnowledgeInput) (KnowledgeEntry, error)
	DeactivateKnowledge(ctx context.Context, id int64) error

	// ActiveAPIKey returns ErrNotFound when no active key exists for name.
	ActiveAPIKey(ctx context.Context, name string) (string, error)
	// SetAPIKey deactivates existing keys for name, then inserts value as the active one.
	SetAPIKey(ctx context.Context, name, value string) error

	Mode() string
	Close() error
}
