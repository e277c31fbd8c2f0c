// Package util holds small helpers shared across the core packages.
package util

import "unicode/utf8"

// TruncateRunes truncates a string to a maximum number of runes, appending
// an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}
