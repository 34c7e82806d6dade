package parser

import (
	"regexp"
	"strings"
)

var (
	titlePunctuation = regexp.MustCompile(`[\-'":()\[\].,!?]`)
	titleWhitespace  = regexp.MustCompile(`\s+`)
)

// NormalizeTitle reduces an album title to the normalized form used for
// matching against the band discography reference set: lowercased,
// punctuation stripped, whitespace collapsed.
func NormalizeTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}
	lowered := strings.ToLower(title)
	stripped := titlePunctuation.ReplaceAllString(lowered, "")
	collapsed := titleWhitespace.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(collapsed)
}
