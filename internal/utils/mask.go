package utils

import "strings"

// MaskName partially hides a display name for privacy: the first two
// characters are kept and the remainder is replaced with asterisks.
func MaskName(name string) string {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) <= 2 {
		return string(runes)
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-2)
}
