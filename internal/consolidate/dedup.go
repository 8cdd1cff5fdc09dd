package consolidate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	listMarker  = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	headingLine = regexp.MustCompile(`^\s{0,3}#{1,6}\s`)
	markupChars = strings.NewReplacer("*", "", "_", "", "`", "", ">", "", "#", "")
)

// Observations shorter than this, in runes, are never treated as duplicates.
const minDedupRunes = 12

// unit is one observation: a list item with its continuation lines, or a
// plain paragraph. Line indexes are half-open.
type unit struct {
	start, end int
	heading    bool
}

func splitUnits(lines []string) []unit {
	var units []unit
	cur := -1
	closeCur := func(i int) {
		if cur >= 0 {
			units = append(units, unit{start: cur, end: i})
			cur = -1
		}
	}
	for i, line := range lines {
		switch {
		case strings.TrimSpace(line) == "":
			closeCur(i)
		case headingLine.MatchString(line):
			closeCur(i)
			units = append(units, unit{start: i, end: i + 1, heading: true})
		case listMarker.MatchString(line):
			closeCur(i)
			cur = i
		default:
			if cur < 0 {
				cur = i
			}
		}
	}
	closeCur(len(lines))
	return units
}

// normalizeObservation case-folds, strips list and emphasis markup and
// collapses whitespace.
func normalizeObservation(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		b.WriteString(markupChars.Replace(line))
		b.WriteByte(' ')
	}
	return strings.ToLower(collapseSpace(b.String()))
}

// Dedupe drops, from each output, the observations whose normalized text
// already appeared in an earlier output. Headings and short lines are always
// kept, as are repeats inside a single output. It returns the rewritten
// outputs and the number of observations dropped.
func Dedupe(outputs []string) ([]string, int) {
	seen := make(map[string]string)
	dropped := 0
	out := make([]string, len(outputs))

	for i, o := range outputs {
		lines := strings.Split(o, "\n")
		drop := make([]bool, len(lines))
		local := make(map[string]string)

		for _, u := range splitUnits(lines) {
			raw := strings.Join(lines[u.start:u.end], "\n")
			key := normalizeObservation(raw)
			if u.heading || utf8.RuneCountInString(key) < minDedupRunes {
				continue
			}
			if earlier, ok := seen[key]; ok && quotesCovered(raw, earlier) {
				for j := u.start; j < u.end; j++ {
					drop[j] = true
				}
				dropped++
				continue
			}
			if _, ok := local[key]; !ok {
				local[key] = raw
			}
		}
		for k, v := range local {
			if _, ok := seen[k]; !ok {
				seen[k] = v
			}
		}

		kept := make([]string, 0, len(lines))
		for j, line := range lines {
			if !drop[j] {
				kept = append(kept, line)
			}
		}
		out[i] = squeezeBlankLines(strings.Join(kept, "\n"))
	}
	return out, dropped
}

// quotesCovered reports whether every quoted span of later is present
// verbatim in earlier, so dropping later loses no excerpt.
func quotesCovered(later, earlier string) bool {
	for _, q := range ExtractQuotes(later, 1) {
		if !strings.Contains(earlier, q) {
			return false
		}
	}
	return true
}

var blankRun = regexp.MustCompile(`\n{3,}`)

func squeezeBlankLines(s string) string {
	return strings.TrimSpace(blankRun.ReplaceAllString(s, "\n\n"))
}
