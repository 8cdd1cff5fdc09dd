package stage

import (
	"regexp"

	"github.com/dgallion1/contractlens/internal/document"
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|` +
		`new\s+instructions)`,
)

// SuspiciousChunks returns the indexes of chunks whose text reads like an
// instruction to the model rather than contract language.
func SuspiciousChunks(chunks []document.Chunk) []int {
	var out []int
	for _, c := range chunks {
		if injectionPattern.MatchString(c.Content) {
			out = append(out, c.Index)
		}
	}
	return out
}
