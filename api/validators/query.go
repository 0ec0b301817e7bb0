package validators

import (
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultQueryMaxLen = 128

// SanitizeString trims input, drops control characters and cuts the result to
// at most maxLen bytes without splitting a rune. maxLen <= 0 disables the cut.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return strings.TrimSpace(cleaned[:cut])
}

// QueryValue returns the sanitized query parameter, cut to maxLen bytes (128 when maxLen <= 0).
func QueryValue(r *http.Request, key string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultQueryMaxLen
	}
	return SanitizeString(r.URL.Query().Get(key), maxLen)
}
