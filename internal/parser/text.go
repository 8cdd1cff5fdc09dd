package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextExtractor handles plain text files. Paragraphs are separated by blank
// lines; runs of blank or whitespace-only lines collapse into one separator.
type TextExtractor struct{}

func (p *TextExtractor) Extract(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paragraphs []string
	var current strings.Builder

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}
	if err := scanner.Err(); err != nil {
		return "", extractionFailed(err, "read text")
	}

	return joinParagraphs(paragraphs), nil
}
