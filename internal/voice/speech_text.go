package voice

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/aarso/diaa/internal/speech"
)

// Applied in order: fenced code must go before inline code.
var speechDropPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`[^`]*`"), " "},
	{regexp.MustCompile(`\[(.*?)\]\((.*?)\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
}

var markdownMarkers = strings.NewReplacer(
	"*", " ", "_", " ", "\\", " ", "/", " ", "|", " ",
	"#", " ", "~", " ", "<", " ", ">", " ",
)

// speakableText strips markdown, links and symbol noise from a reply before a
// server TTS provider renders it. Browser hosts get the controller's
// preprocessed text as is.
func speakableText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, p := range speechDropPatterns {
		raw = p.re.ReplaceAllString(raw, p.repl)
	}
	raw = markdownMarkers.Replace(raw)
	return speech.CollapseSpace(strings.Map(speakableRune, raw))
}

// speakableRune returns -1 to drop r, ' ' to turn it into a word break, or r.
func speakableRune(r rune) rune {
	switch {
	case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		return -1
	case unicode.IsSpace(r):
		return ' '
	case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
		return -1
	case strings.ContainsRune(".,!?:;'\"-()।", r):
		return r
	case unicode.IsPunct(r):
		return ' '
	}
	return r
}
