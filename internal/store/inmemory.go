package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu             sync.RWMutex
	nextID         int64
	pronunciations []Pronunciation
	knowledge      []KnowledgeEntry
	apiKeys        []APIKey
	now            func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (s *InMemoryStore) Mode() string { return "memory" }

func (s *InMemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemoryStore) ListPronunciations(_ context.Context) ([]Pronunciation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pronunciation, 0, len(s.pronunciations))
	for _, p := range s.pronunciations {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) SavePronunciation(_ context.Context, word, pronunciation string) (Pronunciation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range s.pronunciations {
		p := &s.pronunciations[i]
		if p.IsActive && p.Word == word {
			p.Pronunciation = pronunciation
			p.UpdatedAt = now
			return *p, nil
		}
	}
	p := Pronunciation{
		ID:            s.id(),
		Word:          word,
		Pronunciation: pronunciation,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.pronunciations = append(s.pronunciations, p)
	return p, nil
}

func (s *InMemoryStore) DeactivatePronunciation(_ context.Context, word string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range s.pronunciations {
		if s.pronunciations[i].Word == word {
			s.pronunciations[i].IsActive = false
			s.pronunciations[i].UpdatedAt = now
		}
	}
	return nil
}

func (s *InMemoryStore) ListKnowledge(_ context.Context) ([]KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]KnowledgeEntry, 0, len(s.knowledge))
	for i := len(s.knowledge) - 1; i >= 0; i-- {
		if s.knowledge[i].IsActive {
			out = append(out, s.knowledge[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) AddKnowledge(_ context.Context, in KnowledgeInput) (KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e := KnowledgeEntry{
		ID:        s.id(),
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.knowledge = append(s.knowledge, e)
	return e, nil
}

func (s *InMemoryStore) UpdateKnowledge(_ context.Context, id int64, in KnowledgeInput) (KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.knowledge {
		e := &s.knowledge[i]
		if e.ID != id || !e.IsActive {
			continue
		}
		e.Title = in.Title
		e.Content = in.Content
		e.Category = in.Category
		e.UpdatedAt = s.now()
		return *e, nil
	}
	return KnowledgeEntry{}, ErrNotFound
}

func (s *InMemoryStore) DeactivateKnowledge(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.knowledge {
		if s.knowledge[i].ID == id && s.knowledge[i].IsActive {
			s.knowledge[i].IsActive = false
			s.knowledge[i].UpdatedAt = s.now()
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) ActiveAPIKey(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.apiKeys) - 1; i >= 0; i-- {
		k := s.apiKeys[i]
		if k.IsActive && k.KeyName == name {
			return k.KeyValue, nil
		}
	}
	return "", ErrNotFound
}

func (s *InMemoryStore) SetAPIKey(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range s.apiKeys {
		if s.apiKeys[i].KeyName == name {
			s.apiKeys[i].IsActive = false
			s.apiKeys[i].UpdatedAt = now
		}
	}
	s.apiKeys = append(s.apiKeys, APIKey{
		ID:        s.id(),
		KeyName:   name,
		KeyValue:  value,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
