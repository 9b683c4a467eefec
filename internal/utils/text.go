package utils

import (
	"strings"
	"unicode/utf8"
)

// MaxStoredErrorLength bounds error messages persisted on sync bookkeeping
// columns. External services can return arbitrarily large bodies on failure.
const MaxStoredErrorLength = 500

// TruncateError bounds an error message for storage, cleaning invalid UTF8
// on the way
func TruncateError(message string) string {
	cleaned, _ := CleanUTF8(message)
	if len(cleaned) <= MaxStoredErrorLength {
		return cleaned
	}

	truncated := cleaned[:MaxStoredErrorLength]
	// Avoid cutting a multi-byte rune in half
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}

// CleanUTF8 removes or replaces invalid UTF8 characters from a string.
// Returns the cleaned string and a boolean indicating if cleaning was needed.
func CleanUTF8(input string) (string, bool) {
	needsCleaning := strings.Contains(input, "\x00") || !utf8.ValidString(input)

	if !needsCleaning {
		return input, false
	}

	cleaned := strings.ToValidUTF8(input, "")
	cleaned = strings.ReplaceAll(cleaned, "\x00", "")

	return cleaned, true
}
