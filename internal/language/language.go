// Package language handles the locale tags exchanged with the backend and the
// speech synthesizer.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Info describes a selectable language.
type Info struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// speechCodes maps bare language codes to the BCP 47 tag used to pick a voice.
var speechCodes = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"ja": "ja-JP",
	"zh": "zh-CN",
	"ru": "ru-RU",
	"ar": "ar-SA",
	"hi": "hi-IN",
	"pt": "pt-BR",
	"nl": "nl-NL",
	"tr": "tr-TR",
	"pl": "pl-PL",
}

var sourceCodes = []string{"en-US", "es-ES", "fr-FR", "de-DE", "it-IT", "ja-JP", "zh-CN", "ru-RU"}

var targetCodes = []string{"en", "es", "fr", "de", "it", "ja", "zh", "ru", "ar", "hi", "pt", "nl", "tr"}

// Base strips the region (and any other subtags) from tag: "en-US" -> "en".
// The backend only accepts base codes.
func Base(tag string) string {
	if t, err := language.Raw.Parse(tag); err == nil {
		if b, conf := t.Base(); conf == language.Exact {
			return b.String()
		}
	}
	base, _, _ := strings.Cut(tag, "-")
	base, _, _ = strings.Cut(base, "_")
	return strings.ToLower(strings.TrimSpace(base))
}

// SpeechCode expands a bare code to the tag used for voice selection.
// Tags that already carry a region are returned unchanged, as are unknown codes.
func SpeechCode(tag string) string {
	if strings.Contains(tag, "-") {
		return tag
	}
	if code, ok := speechCodes[tag]; ok {
		return code
	}
	return tag
}

// Valid reports whether tag is a well-formed BCP 47 tag.
func Valid(tag string) bool {
	if strings.TrimSpace(tag) == "" {
		return false
	}
	_, err := language.Raw.Parse(tag)
	return err == nil
}

// Name returns the English display name for tag, or tag itself when unknown.
func Name(tag string) string {
	t, err := language.Raw.Parse(tag)
	if err != nil {
		return tag
	}
	if n := display.English.Tags().Name(t); n != "" {
		return n
	}
	return tag
}

// SourceLanguages returns the recognizable input locales.
func SourceLanguages() []Info {
	return infos(sourceCodes)
}

// TargetLanguages returns the translation targets.
func TargetLanguages() []Info {
	return infos(targetCodes)
}

func infos(codes []string) []Info {
	out := make([]Info, 0, len(codes))
	for _, c := range codes {
		out = append(out, Info{Code: c, Name: Name(c)})
	}
	return out
}
