package speech

import (
	"strings"
	"sync"
)

// Voice is one entry of a host's voice list.
type Voice struct {
	Name         string `json:"name"`
	Lang         string `json:"lang"`
	URI          string `json:"voice_uri,omitempty"`
	Default      bool   `json:"default,omitempty"`
	LocalService bool   `json:"local_service,omitempty"`
}

// VoiceCatalog holds the host voice list and the voices picked from it.
// It is owned by a SynthesisController and rebuilt on every catalog change.
type VoiceCatalog struct {
	mu        sync.RWMutex
	voices    []Voice
	english   *Voice
	bengali   *Voice
	southAsia *Voice
}

func NewVoiceCatalog(voices []Voice) *VoiceCatalog {
	c := &VoiceCatalog{}
	c.Replace(voices)
	return c
}

// Replace swaps in a new voice list and re-selects the preferred voices.
func (c *VoiceCatalog) Replace(voices []Voice) {
	cp := append([]Voice(nil), voices...)
	english := pickEnglish(cp)
	bengali := pickBengali(cp)
	south := find(cp, isSouthAsian)

	c.mu.Lock()
	c.voices = cp
	c.english = english
	c.bengali = bengali
	c.southAsia = south
	c.mu.Unlock()
}

func (c *VoiceCatalog) Voices() []Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Voice(nil), c.voices...)
}

// PreferredEnglish returns the cached English voice, nil when the list is empty.
func (c *VoiceCatalog) PreferredEnglish() *Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.english
}

// ForBengali returns a Bengali voice, else a Hindi/Indian one, else nil for
// the host default.
func (c *VoiceCatalog) ForBengali() *Voice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bengali != nil {
		return c.bengali
	}
	return c.southAsia
}

func isBengaliVoice(v Voice) bool {
	name := strings.ToLower(v.Name)
	return strings.Contains(strings.ToLower(v.Lang), "bn") ||
		strings.Contains(name, "bangla") ||
		strings.Contains(name, "bengali")
}

func isSouthAsian(v Voice) bool {
	name := strings.ToLower(v.Name)
	return strings.Contains(name, "hindi") || strings.Contains(name, "indian")
}

func pickBengali(voices []Voice) *Voice {
	if v := find(voices, func(v Voice) bool {
		return (strings.Contains(v.Name, "Microsoft") || strings.Contains(v.Name, "Google")) && isBengaliVoice(v)
	}); v != nil {
		return v
	}
	return find(voices, isBengaliVoice)
}

func pickEnglish(voices []Voice) *Voice {
	if v := find(voices, func(v Voice) bool {
		return strings.Contains(v.Lang, "en") && strings.Contains(strings.ToLower(v.Name), "female")
	}); v != nil {
		return v
	}
	if v := find(voices, func(v Voice) bool { return strings.Contains(v.Lang, "en-US") }); v != nil {
		return v
	}
	if len(voices) > 0 {
		return &voices[0]
	}
	return nil
}

func find(voices []Voice, match func(Voice) bool) *Voice {
	for i := range voices {
		if match(voices[i]) {
			return &voices[i]
		}
	}
	return nil
}
