// Package seed preloads pronunciations and knowledge entries from a YAML file
// so a fresh deployment answers with campus content before anyone opens the
// admin screens.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aarso/diaa/internal/store"
)

type Pronunciation struct {
	Word          string `yaml:"word"`
	Pronunciation string `yaml:"pronunciation"`
}

type Knowledge struct {
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
	Category string `yaml:"category"`
}

type File struct {
	Pronunciations []Pronunciation `yaml:"pronunciations"`
	Knowledge      []Knowledge     `yaml:"knowledge"`
}

type Dictionary interface {
	Resolve(word string) (string, bool)
	Add(ctx context.Context, word, pronunciation string) error
}

type KnowledgeBase interface {
	List(ctx context.Context) ([]store.KnowledgeEntry, error)
	Add(ctx context.Context, in store.KnowledgeInput) (store.KnowledgeEntry, error)
}

// Result counts the rows Apply actually wrote.
type Result struct {
	Pronunciations int
	Knowledge      int
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a seed document. Unknown keys are rejected so typos do not
// silently drop content.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("invalid YAML: %w", err)
	}
	for i, p := range f.Pronunciations {
		if strings.TrimSpace(p.Word) == "" || strings.TrimSpace(p.Pronunciation) == "" {
			return File{}, fmt.Errorf("pronunciations[%d]: word and pronunciation are required", i)
		}
	}
	for i, k := range f.Knowledge {
		if strings.TrimSpace(k.Title) == "" || strings.TrimSpace(k.Content) == "" {
			return File{}, fmt.Errorf("knowledge[%d]: title and content are required", i)
		}
	}
	return f, nil
}

// Apply adds pronunciations whose word is not known yet. Knowledge entries are
// only written into an empty knowledge base, so restarts do not duplicate them.
func Apply(ctx context.Context, f File, dict Dictionary, kb KnowledgeBase) (Result, error) {
	var res Result
	for _, p := range f.Pronunciations {
		if _, ok := dict.Resolve(strings.TrimSpace(p.Word)); ok {
			continue
		}
		if err := dict.Add(ctx, p.Word, p.Pronunciation); err != nil {
			return res, fmt.Errorf("seed pronunciation %q: %w", p.Word, err)
		}
		res.Pronunciations++
	}

	if len(f.Knowledge) == 0 {
		return res, nil
	}
	existing, err := kb.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list knowledge: %w", err)
	}
	if len(existing) > 0 {
		return res, nil
	}
	for _, k := range f.Knowledge {
		if _, err := kb.Add(ctx, store.KnowledgeInput{Title: k.Title, Content: k.Content, Category: k.Category}); err != nil {
			return res, fmt.Errorf("seed knowledge %q: %w", k.Title, err)
		}
		res.Knowledge++
	}
	return res, nil
}
