package referralcode

import "strings"

// profanityPatterns are substrings that must not appear in an issued code.
// Codes are uppercase alphanumerics, so the list covers common letter and
// leetspeak spellings.
var profanityPatterns = []string{
	"ASS", "AZZ", "FUK", "FCK", "FUC", "FUX",
	"SHT", "SH1T", "SHIT", "CUM", "SEX", "XXX",
	"DCK", "DIK", "COK", "CNT", "TIT", "FAG",
	"NGR", "N1G", "WTF", "STD", "HEL",
}

// containsProfanity reports whether a candidate code matches the blocklist
func containsProfanity(code string) bool {
	upper := strings.ToUpper(code)
	for _, pattern := range profanityPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
