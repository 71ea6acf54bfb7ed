package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

const (
	tablePronunciations = "pronunciations"
	tableKnowledge      = "knowledge_base"
	tableAPIKeys        = "api_keys"
)

// SupabaseStore reads and writes the same tables through the Supabase REST API.
// The tables must already exist in the project.
type SupabaseStore struct {
	client *supabase.Client
}

func NewSupabaseStore(url, key string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *SupabaseStore) Mode() string { return "supabase" }

func (s *SupabaseStore) ListPronunciations(ctx context.Context) ([]Pronunciation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Pronunciation
	_, err := s.client.From(tablePronunciations).
		Select("*", "", false).
		Eq("is_active", "true").
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("query pronunciations: %w", err)
	}
	return out, nil
}

func (s *SupabaseStore) SavePronunciation(ctx context.Context, word, pronunciation string) (Pronunciation, error) {
	if err := ctx.Err(); err != nil {
		return Pronunciation{}, err
	}
	var updated []Pronunciation
	_, err := s.client.From(tablePronunciations).
		Update(map[string]any{"pronunciation": pronunciation, "updated_at": nowStamp()}, "representation", "").
		Eq("word", word).
		Eq("is_active", "true").
		ExecuteTo(&updated)
	if err != nil {
		return Pronunciation{}, fmt.Errorf("update pronunciation: %w", err)
	}
	if len(updated) > 0 {
		return updated[0], nil
	}

	var inserted []Pronunciation
	_, err = s.client.From(tablePronunciations).
		Insert(map[string]any{"word": word, "pronunciation": pronunciation, "is_active": true}, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return Pronunciation{}, fmt.Errorf("insert pronunciation: %w", err)
	}
	if len(inserted) == 0 {
		return Pronunciation{}, fmt.Errorf("insert pronunciation: empty response")
	}
	return inserted[0], nil
}

func (s *SupabaseStore) DeactivatePronunciation(ctx context.Context, word string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From(tablePronunciations).
		Update(map[string]any{"is_active": false, "updated_at": nowStamp()}, "minimal", "").
		Eq("word", word).
		Execute()
	if err != nil {
		return fmt.Errorf("deactivate pronunciation: %w", err)
	}
	return nil
}

func (s *SupabaseStore) ListKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []KnowledgeEntry
	_, err := s.client.From(tableKnowledge).
		Select("*", "", false).
		Eq("is_active", "true").
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&out)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}
	return out, nil
}

func (s *SupabaseStore) AddKnowledge(ctx context.Context, in KnowledgeInput) (KnowledgeEntry, error) {
	if err := ctx.Err(); err != nil {
		return KnowledgeEntry{}, err
	}
	var inserted []KnowledgeEntry
	_, err := s.client.From(tableKnowledge).
		Insert(map[string]any{
			"title":     in.Title,
			"content":   in.Content,
			"category":  in.Category,
			"is_active": true,
		}, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return KnowledgeEntry{}, fmt.Errorf("insert knowledge: %w", err)
	}
	if len(inserted) == 0 {
		return KnowledgeEntry{}, fmt.Errorf("insert knowledge: empty response")
	}
	return inserted[0], nil
}

func (s *SupabaseStore) UpdateKnowledge(ctx context.Context, id int64, in KnowledgeInput) (KnowledgeEntry, error) {
	if err := ctx.Err(); err != nil {
		return KnowledgeEntry{}, err
	}
	var updated []KnowledgeEntry
	_, err := s.client.From(tableKnowledge).
		Update(map[string]any{
			"title":      in.Title,
			"content":    in.Content,
			"category":   in.Category,
			"updated_at": nowStamp(),
		}, "representation", "").
		Eq("id", strconv.FormatInt(id, 10)).
		Eq("is_active", "true").
		ExecuteTo(&updated)
	if err != nil {
		return KnowledgeEntry{}, fmt.Errorf("update knowledge: %w", err)
	}
	if len(updated) == 0 {
		return KnowledgeEntry{}, ErrNotFound
	}
	return updated[0], nil
}

func (s *SupabaseStore) DeactivateKnowledge(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var updated []KnowledgeEntry
	_, err := s.client.From(tableKnowledge).
		Update(map[string]any{"is_active": false, "updated_at": nowStamp()}, "representation", "").
		Eq("id", strconv.FormatInt(id, 10)).
		Eq("is_active", "true").
		ExecuteTo(&updated)
	if err != nil {
		return fmt.Errorf("deactivate knowledge: %w", err)
	}
	if len(updated) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SupabaseStore) ActiveAPIKey(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var rows []APIKey
	_, err := s.client.From(tableAPIKeys).
		Select("*", "", false).
		Eq("key_name", name).
		Eq("is_active", "true").
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return "", fmt.Errorf("query api key: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrNotFound
	}
	return rows[0].KeyValue, nil
}

// SetAPIKey runs as two REST calls; a failure between them leaves no active key.
func (s *SupabaseStore) SetAPIKey(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From(tableAPIKeys).
		Update(map[string]any{"is_active": false, "updated_at": nowStamp()}, "minimal", "").
		Eq("key_name", name).
		Eq("is_active", "true").
		Execute()
	if err != nil {
		return fmt.Errorf("deactivate api keys: %w", err)
	}
	_, _, err = s.client.From(tableAPIKeys).
		Insert(map[string]any{"key_name": name, "key_value": value, "is_active": true}, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *SupabaseStore) Close() error { return nil }
