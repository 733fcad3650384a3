package observability

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// cleanField drops control characters and cuts value to at most limit bytes
// on a rune boundary. Route and user values come from the client.
func cleanField(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
