package openai

import (
	"strings"
	"unicode/utf8"
)

// truncateText cuts s to at most limit bytes on a rune boundary, preferring
// the last whitespace in the final quarter of the window.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if ws := strings.LastIndexAny(s[:cut], " \n\t"); ws > cut-cut/4 {
		cut = ws
	}
	return s[:cut]
}

// normalizeTopic lowercases a topic and collapses punctuation and runs of
// whitespace into single spaces.
func normalizeTopic(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(".,!?;:\"'()[]{}#*`", r) {
			return ' '
		}
		return r
	}, strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

func isKeyRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
