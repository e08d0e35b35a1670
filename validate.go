package platauth

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinReasonLength is the floor used by [ValidReason] when no engine
// configuration is in play.
const DefaultMinReasonLength = 10

// ValidReason reports whether v is a justification string of at least min
// characters after trimming surrounding whitespace. Non-string values and
// invalid UTF-8 never pass. A min of zero or less falls back to
// [DefaultMinReasonLength]. Length is counted in runes so multibyte text
// is not penalized.
func ValidReason(v any, min int) bool {
	if min <= 0 {
		min = DefaultMinReasonLength
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	if !utf8.ValidString(s) {
		return false
	}
	trimmed := strings.TrimSpace(s)
	return utf8.RuneCountInString(trimmed) >= min
}

// ValidateReason applies [ValidReason] with the engine's configured
// minimum justification length.
func (e *Engine) ValidateReason(v any) bool {
	min := 0
	if e != nil {
		min = e.config.Impersonation.MinReasonLength
	}
	return ValidReason(v, min)
}
