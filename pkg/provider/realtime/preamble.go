package realtime

import "fmt"

// weakTranscriptionProviders lists providers whose transcription quality on
// telephone-band audio is known weak enough that the spoken language must be
// stated explicitly in the prompt rather than relied upon implicitly.
var weakTranscriptionProviders = map[string]bool{
	"xai": true,
}

// languageNames maps a BCP-47-ish language code to the native name used in
// the bilingual directive. Unrecognised codes fall back to the code itself.
var languageNames = map[string]string{
	"tr": "Türkçe",
	"es": "español",
	"de": "Deutsch",
	"fr": "français",
}

// LanguagePreamble prepends a bilingual directive stating the spoken
// language to instructions, but only for providers in
// weakTranscriptionProviders (currently xAI). For every other provider it
// returns instructions unchanged.
//
// Modelled as a pure function per spec.md §9's redesign note: the source
// accumulates this as a provider-conditional string helper mixed into prompt
// assembly; here it is a single function with no side effects, kept off the
// hot path (called once at session configuration, not per audio chunk).
func LanguagePreamble(provider, language, instructions string) string {
	if !weakTranscriptionProviders[provider] || language == "" {
		return instructions
	}
	name, ok := languageNames[language]
	if !ok {
		name = language
	}
	preamble := fmt.Sprintf("You will speak %s. Tüm cevapları %s ver.", name, name)
	if instructions == "" {
		return preamble
	}
	return preamble + "\n\n" + instructions
}
