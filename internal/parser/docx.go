package parser

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fumiama/go-docx"
)

// DOCXExtractor handles .docx files. Headings are kept as their own
// paragraphs so section locators survive extraction.
type DOCXExtractor struct{}

func (p *DOCXExtractor) Extract(r io.Reader) (string, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "contractlens-docx-*.docx")
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return "", errors.Wrap(err, "write temp file")
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", errors.Wrap(err, "seek temp file")
	}

	doc, err := docx.Parse(tmp, size)
	if err != nil {
		return "", extractionFailed(err, "parse docx")
	}

	var paras []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		paras = append(paras, docxParagraphText(para))
	}
	return joinParagraphs(paras), nil
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
