package document

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// DefaultChunkSize is the maximum chunk length in runes.
const DefaultChunkSize = 2000

// Chunk is a contiguous slice of a document's text.
type Chunk struct {
	Content    string
	SourceName string
	Offset     int // byte offset of Content within Document.Text
	Index      int
}

type splitConfig struct {
	size    int
	overlap int
}

// Option configures Split.
type Option func(*splitConfig)

// WithSize sets the maximum chunk size in runes. Non-positive values are ignored.
func WithSize(n int) Option {
	return func(c *splitConfig) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithOverlap sets how many runes consecutive chunks share. Zero (the default)
// keeps the chunks disjoint so that their concatenation is the original text.
func WithOverlap(n int) Option {
	return func(c *splitConfig) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// Split cuts doc.Text into ordered chunks of at most the configured size.
// The final chunk holds the remainder and may be shorter.
func Split(doc Document, opts ...Option) ([]Chunk, error) {
	cfg := splitConfig{size: DefaultChunkSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.overlap >= cfg.size {
		cfg.overlap = cfg.size / 4
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, errors.WithHint(ErrEmptyDocument, "upload a contract whose text can be selected or copied")
	}

	text := doc.Text
	chunks := make([]Chunk, 0, Count(text, cfg.size))
	start := 0
	for start < len(text) {
		end := advance(text, start, cfg.size)
		chunks = append(chunks, Chunk{
			Content:    text[start:end],
			SourceName: doc.Name,
			Offset:     start,
			Index:      len(chunks),
		})
		if end >= len(text) {
			break
		}
		if cfg.overlap > 0 {
			start = retreat(text, end, cfg.overlap)
		} else {
			start = end
		}
	}
	return chunks, nil
}

// Count returns how many disjoint chunks of size runes cover text.
func Count(text string, size int) int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	n := utf8.RuneCountInString(text)
	return (n + size - 1) / size
}

// advance moves n runes forward from byte offset from.
func advance(s string, from, n int) int {
	i := from
	for ; n > 0 && i < len(s); n-- {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
	}
	return i
}

// retreat moves n runes backward from byte offset from.
func retreat(s string, from, n int) int {
	i := from
	for ; n > 0 && i > 0; n-- {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}
	return i
}
