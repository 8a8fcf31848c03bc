package domain

// TruncationMarker is appended whenever stored text was cut at a cap, so a
// capped value is never mistaken for the full document.
const TruncationMarker = "\n\n[Texto truncado por límite de caracteres]"

const (
	DefaultInputCap  = 30000
	DefaultOutputCap = 10000

	// MaxErrorMessageLength bounds persisted error messages.
	MaxErrorMessageLength = 500
)

// TruncateWithMarker caps text at limit characters and appends the
// truncation marker. Text within the limit is returned unchanged. The limit
// counts runes, not bytes: a cut must never split a multi-byte character.
func TruncateWithMarker(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	cut, exceeds := runeCut(text, limit)
	if !exceeds {
		return text
	}
	return text[:cut] + TruncationMarker
}

// TruncateError caps an error message for persistence.
func TruncateError(message string) string {
	cut, exceeds := runeCut(message, MaxErrorMessageLength)
	if !exceeds {
		return message
	}
	return message[:cut]
}

// runeCut reports whether text holds more than limit runes and, if so, the
// byte offset right after the limit-th rune.
func runeCut(text string, limit int) (int, bool) {
	count := 0
	for i := range text {
		if count == limit {
			return i, true
		}
		count++
	}
	return 0, false
}
