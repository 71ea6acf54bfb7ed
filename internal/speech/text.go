package speech

import (
	"strings"
	"unicode"
)

type runeRange struct{ lo, hi rune }

// Emoji, pictograph, flag and keycap blocks removed before synthesis.
var emojiRanges = []runeRange{
	{0x1F300, 0x1F9FF},
	{0x1F600, 0x1F64F},
	{0x1F680, 0x1F6FF},
	{0x1FA00, 0x1FAFF},
	{0x2600, 0x26FF},
	{0x2700, 0x27BF},
	{0x1F1E0, 0x1F1FF},
	{0x1F191, 0x1F251},
	{0x1F004, 0x1F004},
	{0x1F0CF, 0x1F0CF},
	{0x1F170, 0x1F171},
	{0x1F17E, 0x1F17F},
	{0x1F18E, 0x1F18E},
	{0x3030, 0x3030},
	{0x2B50, 0x2B50},
	{0x2B55, 0x2B55},
	{0x2934, 0x2935},
	{0x2B05, 0x2B07},
	{0x2B1B, 0x2B1C},
	{0x3297, 0x3297},
	{0x3299, 0x3299},
	{0x303D, 0x303D},
	{0x00A9, 0x00A9},
	{0x00AE, 0x00AE},
	{0x2122, 0x2122},
	{0x23F3, 0x23F3},
	{0x24C2, 0x24C2},
	{0x23E9, 0x23EF},
	{0x25AA, 0x25AB},
	{0x25B6, 0x25B6},
	{0x25C0, 0x25C0},
	{0x25FB, 0x25FE},
	{0x2614, 0x2615},
	{0x2648, 0x2653},
	// tag characters used by subdivision flags
	{0xE0020, 0xE007F},
}

const (
	zeroWidthJoiner     = 0x200D
	variationSelector16 = 0xFE0F
	combiningKeycap     = 0x20E3
)

func isEmoji(r rune) bool {
	for _, rg := range emojiRanges {
		if r >= rg.lo && r <= rg.hi {
			return true
		}
	}
	return false
}

// isKeycapBase reports whether r can open a keycap sequence: U+0023 through U+0039.
func isKeycapBase(r rune) bool {
	return r >= '#' && r <= '9'
}

// StripEmoji removes emoji and pictographic symbols together with their
// joiners and presentation selectors. A keycap sequence such as "1️⃣" is
// dropped as a whole. StripEmoji(StripEmoji(s)) == StripEmoji(s).
func StripEmoji(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if isKeycapBase(r) {
			j := i + 1
			if j < len(rs) && rs[j] == variationSelector16 {
				j++
			}
			if j < len(rs) && rs[j] == combiningKeycap {
				i = j
				continue
			}
		}
		switch {
		case isEmoji(r), r == zeroWidthJoiner, r == variationSelector16, r == combiningKeycap:
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CollapseSpace folds every whitespace run into one space and trims the ends.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
