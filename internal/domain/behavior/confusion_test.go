package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectConfusion(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"WHY does this fail", true},
		{"ok thanks", false},
		{"however", true},
		{"What is a closure?", true},
		{"I'm so CONFUSED", true},
		{"I don't understand recursion", true},
		{"i do not understand", false},
		{"", false},
		{"Show me an example please", true}, // "how" inside "show"
		{"give me a hint", false},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectConfusion(tt.message))
		})
	}
}

func TestConfusionPhrases_ReturnsCopy(t *testing.T) {
	phrases := ConfusionPhrases()
	phrases[0] = "zzz"

	assert.Equal(t, "how", ConfusionPhrases()[0])
	assert.True(t, DetectConfusion("how"))
}
