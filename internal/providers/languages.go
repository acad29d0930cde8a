package providers

import "translarr/internal/language"

// knownLanguageCodes returns the ISO 639-1 codes of the language table.
func knownLanguageCodes() []string {
	return language.NormalizeList([]string{
		"en", "es", "fr", "de", "it", "pt", "ro", "ja", "ko", "zh", "ru",
		"ar", "hi", "nl", "pl", "sv", "da", "no", "fi", "cs", "el", "hu",
		"tr", "uk",
	})
}
