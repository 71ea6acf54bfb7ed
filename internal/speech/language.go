package speech

import (
	"fmt"
	"strings"
)

// Language is a BCP-47 tag understood by both hosts.
type Language string

const (
	Bengali Language = "bn-BD"
	English Language = "en-US"
)

// ParseLanguage accepts the two supported tags, case-insensitively.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bn-bd", "bn":
		return Bengali, nil
	case "en-us", "en":
		return English, nil
	default:
		return "", fmt.Errorf("unsupported language %q", s)
	}
}

func (l Language) IsBengali() bool { return l == Bengali }

// ContainsBengali reports whether s has any code point in the Bengali block.
func ContainsBengali(s string) bool {
	for _, r := range s {
		if r >= 0x0980 && r <= 0x09FF {
			return true
		}
	}
	return false
}

// MessageKey names a user-facing notification.
type MessageKey string

const (
	MsgListeningStarted       MessageKey = "listening_started"
	MsgNoSpeech               MessageKey = "no_speech"
	MsgMicrophone             MessageKey = "microphone"
	MsgPermission             MessageKey = "permission"
	MsgLanguageUnsupported    MessageKey = "language_unsupported"
	MsgUnknownError           MessageKey = "unknown_error"
	MsgSynthesisError         MessageKey = "synthesis_error"
	MsgRecognitionUnsupported MessageKey = "recognition_unsupported"
	MsgSynthesisUnsupported   MessageKey = "synthesis_unsupported"
)

type localized struct {
	bn string
	en string
}

var messages = map[MessageKey]localized{
	MsgListeningStarted:       {bn: "বাংলায় কথা বলুন...", en: "Start speaking..."},
	MsgNoSpeech:               {bn: "কোন কথা শোনা যায়নি", en: "No speech detected"},
	MsgMicrophone:             {bn: "মাইক্রোফোন সমস্যা", en: "Microphone error"},
	MsgPermission:             {bn: "মাইক্রোফোন অ্যাক্সেস দিন", en: "Please allow microphone access"},
	MsgLanguageUnsupported:    {bn: "বাংলা ভাষা সমর্থন করে না, ইংরেজিতে চেষ্টা করুন", en: "Language not supported"},
	MsgUnknownError:           {bn: "একটি সমস্যা হয়েছে", en: "An error occurred"},
	MsgSynthesisError:         {bn: "বাংলা উচ্চারণে সমস্যা হয়েছে", en: "Error in speech synthesis"},
	MsgRecognitionUnsupported: {en: "Speech recognition is not supported in your browser"},
	MsgSynthesisUnsupported:   {en: "Speech synthesis is not supported in your browser"},
}

// Message returns the text for key in lang. Keys without a Bengali rendering fall back to English.
func Message(lang Language, key MessageKey) string {
	m, ok := messages[key]
	if !ok {
		return string(key)
	}
	if lang == Bengali && m.bn != "" {
		return m.bn
	}
	return m.en
}
