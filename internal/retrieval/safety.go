package retrieval

import "strings"

// Indexed text is untrusted; packs carrying instruction-hijack phrasing are
// pushed to the bottom of the ranking rather than silently dropped.
var promptInjectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"jailbreak",
	"bypass safety",
	"do anything now",
}

func containsPromptInjectionPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range promptInjectionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
