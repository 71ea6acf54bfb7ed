// Package pronunciation keeps the custom word → spoken-form mapping that is
// applied to every reply before it reaches the synthesizer.
package pronunciation

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/aarso/diaa/internal/fault"
	"github.com/aarso/diaa/internal/store"
)

var ErrInvalidEntry = errors.New("word and pronunciation are required")

// Entry is one dictionary mapping.
type Entry struct {
	Word          string `json:"word"`
	Pronunciation string `json:"pronunciation"`
}

// Store is the subset of store.Store the dictionary persists through.
type Store interface {
	ListPronunciations(ctx context.Context) ([]store.Pronunciation, error)
	SavePronunciation(ctx context.Context, word, pronunciation string) (store.Pronunciation, error)
	DeactivatePronunciation(ctx context.Context, word string) error
}

type compiledEntry struct {
	Entry
	pattern *regexp.Regexp
}

// Dictionary is safe for concurrent use. Mutations reach memory only after
// the store accepted them.
type Dictionary struct {
	store Store

	mu      sync.RWMutex
	entries []compiledEntry
}

func NewDictionary(s Store) *Dictionary {
	return &Dictionary{store: s}
}

func compile(e Entry) compiledEntry {
	return compiledEntry{
		Entry:   e,
		pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(e.Word)),
	}
}

// LoadAll replaces the snapshot with the store's active rows.
func (d *Dictionary) LoadAll(ctx context.Context) error {
	rows, err := d.store.ListPronunciations(ctx)
	if err != nil {
		return fault.Persistence("pronunciation.load", err)
	}
	next := make([]compiledEntry, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, r := range rows {
		if strings.TrimSpace(r.Word) == "" {
			continue
		}
		e := compile(Entry{Word: r.Word, Pronunciation: r.Pronunciation})
		if i, ok := seen[r.Word]; ok {
			next[i] = e
			continue
		}
		seen[r.Word] = len(next)
		next = append(next, e)
	}

	d.mu.Lock()
	d.entries = next
	d.mu.Unlock()
	return nil
}

// Add inserts or overwrites the mapping for word.
func (d *Dictionary) Add(ctx context.Context, word, pronunciation string) error {
	word = strings.TrimSpace(word)
	pronunciation = strings.TrimSpace(pronunciation)
	if word == "" || pronunciation == "" {
		return ErrInvalidEntry
	}
	if _, err := d.store.SavePronunciation(ctx, word, pronunciation); err != nil {
		return fault.Persistence("pronunciation.add", err)
	}

	e := compile(Entry{Word: word, Pronunciation: pronunciation})
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.entries {
		if d.entries[i].Word == word {
			d.entries[i] = e
			return nil
		}
	}
	d.entries = append(d.entries, e)
	return nil
}

// Remove deletes the mapping for word. Removing an absent word is a no-op.
func (d *Dictionary) Remove(ctx context.Context, word string) error {
	word = strings.TrimSpace(word)
	d.mu.RLock()
	idx := d.indexLocked(word)
	var stored string
	if idx >= 0 {
		stored = d.entries[idx].Word
	}
	d.mu.RUnlock()
	if idx < 0 {
		return nil
	}

	if err := d.store.DeactivatePronunciation(ctx, stored); err != nil {
		return fault.Persistence("pronunciation.remove", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.entries {
		if d.entries[i].Word == stored {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			break
		}
	}
	return nil
}

// Resolve looks word up exactly first, then case-insensitively.
func (d *Dictionary) Resolve(word string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx := d.indexLocked(word)
	if idx < 0 {
		return "", false
	}
	return d.entries[idx].Pronunciation, true
}

func (d *Dictionary) indexLocked(word string) int {
	for i := range d.entries {
		if d.entries[i].Word == word {
			return i
		}
	}
	for i := range d.entries {
		if strings.EqualFold(d.entries[i].Word, word) {
			return i
		}
	}
	return -1
}

// Apply replaces every case-insensitive occurrence of each word with its
// pronunciation. Entries run in insertion order and each sees the output of
// the previous ones, so a pronunciation may itself be rewritten by a later entry.
func (d *Dictionary) Apply(text string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.entries {
		text = e.pattern.ReplaceAllLiteralString(text, e.Pronunciation)
	}
	return text
}

// Entries returns a copy of the mappings in insertion order.
func (d *Dictionary) Entries() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.Entry
	}
	return out
}

func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
