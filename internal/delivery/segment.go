package delivery

import (
	"strings"
	"unicode"
)

// DefaultSegmentLimit is the largest message, in characters, the chat
// channel accepts.
const DefaultSegmentLimit = 4000

// Segment splits text into messages of at most limit characters. Cuts
// prefer a paragraph break, then a line break, then a space; a word longer
// than the limit is cut mid-word but never inside a character. Blank
// segments are dropped.
func Segment(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSegmentLimit
	}
	rest := []rune(text)
	var out []string
	for len(rest) > limit {
		cut := cutPoint(rest[:limit])
		if s := strings.TrimRightFunc(string(rest[:cut]), unicode.IsSpace); s != "" {
			out = append(out, s)
		}
		rest = trimLeadingBreaks(rest[cut:])
	}
	if s := strings.TrimRightFunc(string(rest), unicode.IsSpace); strings.TrimSpace(s) != "" {
		out = append(out, s)
	}
	return out
}

// cutPoint returns the exclusive end of the next segment within window.
func cutPoint(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(s, sep); i > 0 {
			return len([]rune(s[:i])) + len([]rune(sep))
		}
	}
	return len(window)
}

func trimLeadingBreaks(r []rune) []rune {
	for len(r) > 0 && (r[0] == '\n' || r[0] == '\r') {
		r = r[1:]
	}
	return r
}
