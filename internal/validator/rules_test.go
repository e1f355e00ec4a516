package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emojiPayload struct {
	Emoji string `json:"emoji" validate:"required,emoji"`
}

func TestEmojiRule(t *testing.T) {
	v := New()

	valid := []string{"👍", "🎉", "❤️", "👨‍👩‍👧", "🇰🇿"}
	for _, e := range valid {
		assert.NoError(t, v.Validate(&emojiPayload{Emoji: e}), "expected %q to be valid", e)
	}

	invalid := []string{"", "thumbsup", "a", "👍 👍", "👍👍👍👍👍👍👍👍👍👍👍👍👍"}
	for _, e := range invalid {
		assert.Error(t, v.Validate(&emojiPayload{Emoji: e}), "expected %q to be rejected", e)
	}
}

type subjectPayload struct {
	SubjectType string `json:"subject_type" validate:"required,subject_type"`
}

func TestSubjectTypeRule(t *testing.T) {
	v := New()

	for _, s := range []string{"client", "lead", "guest_session", "none"} {
		assert.NoError(t, v.Validate(&subjectPayload{SubjectType: s}))
	}
	for _, s := range []string{"company", "CLIENT", "client "} {
		assert.Error(t, v.Validate(&subjectPayload{SubjectType: s}))
	}
}

func TestValidationErrorUsesJSONFieldNames(t *testing.T) {
	v := New()

	err := v.Validate(&emojiPayload{Emoji: ""})
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Contains(t, verr.Errors, "emoji")
}
