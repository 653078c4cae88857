package behavior

import "strings"

// confusionPhrases trigger a confusion signal when found anywhere in the
// lower-cased message. Matching is by substring, so "however" matches "how".
var confusionPhrases = []string{"how", "what", "why", "confused", "don't understand"}

// ConfusionPhrases returns a copy of the phrase set used by DetectConfusion.
func ConfusionPhrases() []string {
	out := make([]string, len(confusionPhrases))
	copy(out, confusionPhrases)
	return out
}

// DetectConfusion reports whether a help request message signals confusion.
func DetectConfusion(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range confusionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
