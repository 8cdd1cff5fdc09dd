package consolidate

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultMinQuoteLength is the shortest inline quoted span, in runes, that
// counts as a contract excerpt on length alone. Shorter spans count only
// when they occur in the contract text; otherwise they are usually defined
// terms or emphasis.
const DefaultMinQuoteLength = 12

var curlyQuote = regexp.MustCompile(`“([^”]+)”`)

// ExtractQuotes returns the contract excerpts quoted in a stage output, in
// order of first appearance and without duplicates. Blockquote paragraphs
// are taken whole; inline “…” and "..." spans count when at least minLen
// runes long.
func ExtractQuotes(output string, minLen int) []string {
	return ExtractQuotesIn(output, "", minLen)
}

// ExtractQuotesIn is ExtractQuotes with the contract text at hand: inline
// spans shorter than minLen are kept when they occur in docText.
func ExtractQuotesIn(output, docText string, minLen int) []string {
	if minLen <= 0 {
		minLen = DefaultMinQuoteLength
	}
	var quotes []string
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			return
		}
		seen[q] = true
		quotes = append(quotes, q)
	}

	for _, q := range blockquotes([]byte(output)) {
		add(q)
	}
	var inline []string
	for _, m := range curlyQuote.FindAllStringSubmatch(output, -1) {
		inline = append(inline, m[1])
	}
	inline = append(inline, straightQuotes(output)...)
	for _, q := range inline {
		q = strings.TrimSpace(q)
		if utf8.RuneCountInString(q) >= minLen || (docText != "" && inDocument(docText, q)) {
			add(q)
		}
	}
	return quotes
}

// straightQuotes pairs ASCII double quotes on one line. A mark opens a span
// only at the start of the text or after whitespace or an opening bracket,
// colon or dash, and closes it only before whitespace, punctuation or the
// end of the text, so inch marks and stray quotes do not shift the pairing.
func straightQuotes(s string) []string {
	var out []string
	for i := 0; i < len(s); {
		j := strings.IndexByte(s[i:], '"')
		if j < 0 {
			break
		}
		open := i + j
		if !opensQuote(s, open) {
			i = open + 1
			continue
		}
		end := closingQuote(s, open+1)
		if end < 0 {
			i = open + 1
			continue
		}
		out = append(out, s[open+1:end])
		i = end + 1
	}
	return out
}

func opensQuote(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsSpace(r) || strings.ContainsRune("([{:-–—", r)
}

func closingQuote(s string, from int) int {
	for k := from; k < len(s); k++ {
		switch s[k] {
		case '\n':
			return -1
		case '"':
			if k > from && closesQuote(s, k+1) {
				return k
			}
		}
	}
	return -1
}

func closesQuote(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

// blockquotes returns the raw source text of every paragraph nested in a
// Markdown blockquote, one entry per paragraph, lines joined by newlines.
func blockquotes(src []byte) []string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindBlockquote {
			return ast.WalkContinue, nil
		}
		_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if c.Kind() == ast.KindParagraph || c.Kind() == ast.KindTextBlock {
				lines := c.Lines()
				parts := make([]string, 0, lines.Len())
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					parts = append(parts, strings.TrimRight(string(seg.Value(src)), " \t\r\n"))
				}
				out = append(out, strings.Join(parts, "\n"))
				return ast.WalkSkipChildren, nil
			}
			return ast.WalkContinue, nil
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// collapseSpace folds every whitespace run to one space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// inDocument reports whether quote occurs in the document text, ignoring
// differences in whitespace such as the line wrapping of extracted PDFs.
func inDocument(docText, quote string) bool {
	q := collapseSpace(quote)
	if q == "" {
		return false
	}
	return strings.Contains(collapseSpace(docText), q)
}
