// Package knowledge manages the university knowledge base that is injected
// into every chat prompt.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aarso/diaa/internal/fault"
	"github.com/aarso/diaa/internal/store"
)

var (
	ErrInvalidEntry    = errors.New("title and content are required")
	ErrUnknownCategory = errors.New("unknown category")
	ErrNotFound        = store.ErrNotFound
)

// Categories is the fixed list offered by the admin UI, in display order.
var Categories = []string{
	"General Information",
	"Admissions",
	"Programs",
	"Campus Life",
	"Facilities",
	"Contact",
	"Other",
}

type Store interface {
	ListKnowledge(ctx context.Context) ([]store.KnowledgeEntry, error)
	AddKnowledge(ctx context.Context, in store.KnowledgeInput) (store.KnowledgeEntry, error)
	UpdateKnowledge(ctx context.Context, id int64, in store.KnowledgeInput) (store.KnowledgeEntry, error)
	DeactivateKnowledge(ctx context.Context, id int64) error
}

type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

func (s *Service) List(ctx context.Context) ([]store.KnowledgeEntry, error) {
	entries, err := s.store.ListKnowledge(ctx)
	if err != nil {
		return nil, fault.Persistence("knowledge.list", err)
	}
	return entries, nil
}

func (s *Service) Add(ctx context.Context, in store.KnowledgeInput) (store.KnowledgeEntry, error) {
	in, err := normalize(in)
	if err != nil {
		return store.KnowledgeEntry{}, err
	}
	e, err := s.store.AddKnowledge(ctx, in)
	if err != nil {
		return store.KnowledgeEntry{}, fault.Persistence("knowledge.add", err)
	}
	return e, nil
}

func (s *Service) Update(ctx context.Context, id int64, in store.KnowledgeInput) (store.KnowledgeEntry, error) {
	in, err := normalize(in)
	if err != nil {
		return store.KnowledgeEntry{}, err
	}
	e, err := s.store.UpdateKnowledge(ctx, id, in)
	if errors.Is(err, store.ErrNotFound) {
		return store.KnowledgeEntry{}, ErrNotFound
	}
	if err != nil {
		return store.KnowledgeEntry{}, fault.Persistence("knowledge.update", err)
	}
	return e, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.DeactivateKnowledge(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fault.Persistence("knowledge.delete", err)
	}
	return nil
}

// Combined renders every active entry, newest first, for the system prompt.
func (s *Service) Combined(ctx context.Context) (string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return Combine(entries), nil
}

// Combine renders entries as markdown sections separated by rules.
func Combine(entries []store.KnowledgeEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("# %s\nCategory: %s\n\n%s\n\n---\n", e.Title, e.Category, e.Content))
	}
	return strings.Join(parts, "\n")
}

func normalize(in store.KnowledgeInput) (store.KnowledgeInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)
	if in.Title == "" || in.Content == "" {
		return in, ErrInvalidEntry
	}
	if in.Category == "" {
		in.Category = Categories[0]
		return in, nil
	}
	for _, c := range Categories {
		if strings.EqualFold(c, in.Category) {
			in.Category = c
			return in, nil
		}
	}
	return in, fmt.Errorf("%w: %q", ErrUnknownCategory, in.Category)
}
