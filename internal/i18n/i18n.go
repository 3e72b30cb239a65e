package i18n

import "strings"

// Default is used when a chat has no stored language.
const Default = "en"

// Normalize reduces a language tag to its lowercase primary subtag:
// "it-IT" and "IT" become "it". It returns "" for anything that is not a
// two or three letter code.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i >= 0 {
		s = s[:i]
	}
	if len(s) < 2 || len(s) > 3 {
		return ""
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return s
}

// OrDefault normalizes s and falls back to Default, e.g. for the
// language_code Telegram sends with a user.
func OrDefault(s string) string {
	if code := Normalize(s); code != "" {
		return code
	}
	return Default
}
