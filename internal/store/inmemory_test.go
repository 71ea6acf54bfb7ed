package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPronunciationsSoftDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.SavePronunciation(ctx, "DIU", "ডি আই ইউ")
	require.NoError(t, err)
	_, err = s.SavePronunciation(ctx, "AI", "এ আই")
	require.NoError(t, err)

	updated, err := s.SavePronunciation(ctx, "DIU", "Daffodil")
	require.NoError(t, err)
	assert.Equal(t, "Daffodil", updated.Pronunciation)

	rows, err := s.ListPronunciations(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "DIU", rows[0].Word, "oldest first")
	assert.Equal(t, "AI", rows[1].Word)

	require.NoError(t, s.DeactivatePronunciation(ctx, "DIU"))
	require.NoError(t, s.DeactivatePronunciation(ctx, "missing"))

	rows, err = s.ListPronunciations(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "AI", rows[0].Word)

	readded, err := s.SavePronunciation(ctx, "DIU", "ডি আই ইউ")
	require.NoError(t, err)
	assert.NotEqual(t, updated.ID, readded.ID, "re-adding after delete inserts a fresh row")
}

func TestInMemoryKnowledgeNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	first, err := s.AddKnowledge(ctx, KnowledgeInput{Title: "Admissions", Content: "Apply online", Category: "Admissions"})
	require.NoError(t, err)
	second, err := s.AddKnowledge(ctx, KnowledgeInput{Title: "Library", Content: "Open 8-8", Category: "Facilities"})
	require.NoError(t, err)

	rows, err := s.ListKnowledge(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, first.ID, rows[1].ID)

	edited, err := s.UpdateKnowledge(ctx, first.ID, KnowledgeInput{Title: "Admissions 2025", Content: "Apply by June", Category: "Admissions"})
	require.NoError(t, err)
	assert.Equal(t, "Admissions 2025", edited.Title)

	require.NoError(t, s.DeactivateKnowledge(ctx, second.ID))
	assert.ErrorIs(t, s.DeactivateKnowledge(ctx, second.ID), ErrNotFound)
	_, err = s.UpdateKnowledge(ctx, second.ID, KnowledgeInput{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err = s.ListKnowledge(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Admissions 2025", rows[0].Title)
}

func TestInMemoryAPIKeyKeepsSingleActiveRow(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.ActiveAPIKey(ctx, "mistral")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetAPIKey(ctx, "mistral", "key-one"))
	require.NoError(t, s.SetAPIKey(ctx, "mistral", "key-two"))
	require.NoError(t, s.SetAPIKey(ctx, "other", "key-three"))

	got, err := s.ActiveAPIKey(ctx, "mistral")
	require.NoError(t, err)
	assert.Equal(t, "key-two", got)

	active := 0
	for _, k := range s.apiKeys {
		if k.KeyName == "mistral" && k.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	s, err := NewStore(context.Background(), Options{Backend: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Mode())

	s, err = NewStore(context.Background(), Options{Backend: "memory", DatabaseURL: "postgres://ignored"})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Mode())

	_, err = NewStore(context.Background(), Options{Backend: "cassandra"})
	assert.Error(t, err)
}
