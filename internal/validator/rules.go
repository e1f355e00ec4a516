package validator

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules wires the chat-specific validation tags.
func registerCustomRules(v *validator.Validate) error {
	if err := v.RegisterValidation("subject_type", validateSubjectType); err != nil {
		return err
	}
	return v.RegisterValidation("emoji", validateEmoji)
}

func validateSubjectType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "client", "lead", "guest_session", "none":
		return true
	}
	return false
}

// validateEmoji accepts a short non-blank token that is not plain ASCII
// text. Grapheme clusters (skin tones, ZWJ sequences) may span several
// runes, so the check is permissive on length and strict on content.
func validateEmoji(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}

	runes := []rune(s)
	if len(runes) > 12 {
		return false
	}

	for _, r := range runes {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}

	// Reject pure ASCII words ("thumbsup"); real emoji carry at least one
	// rune outside the ASCII range.
	for _, r := range runes {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}
