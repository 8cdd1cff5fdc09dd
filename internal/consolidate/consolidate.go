// Package consolidate merges the outputs of the analysis stages into the
// final contract report.
//
// The merge itself is delegated to the reasoning collaborator, but two
// guarantees are enforced locally: observations repeated across stages are
// removed before the merge, and every contract excerpt quoted by a stage
// appears byte-for-byte in the final text.
package consolidate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/reasoning"
	"github.com/dgallion1/contractlens/internal/stage"
)

// AppendixHeading titles the section that restores excerpts the merge dropped.
const AppendixHeading = "## Quoted excerpts"

// Excerpt is a contract passage quoted by one or more stages.
type Excerpt struct {
	Text       string   `json:"text"`
	Stages     []string `json:"stages"`
	InDocument bool     `json:"in_document"`
}

// Report is the consolidated analysis of one document.
type Report struct {
	RunID        string    `json:"run_id"`
	DocumentName string    `json:"document_name"`
	Text         string    `json:"text"`
	Excerpts     []Excerpt `json:"excerpts"`
	Stages       []string  `json:"stages"`
	Deduplicated int       `json:"deduplicated"`
	Restored     int       `json:"restored_excerpts"`
}

// Consolidator performs the single merge invocation of a run.
type Consolidator struct {
	reasoner reasoning.Reasoner
	dedup    bool
	minQuote int
	log      *slog.Logger
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithDedup toggles the deterministic pre-merge dedup pass (default on).
func WithDedup(on bool) Option {
	return func(c *Consolidator) { c.dedup = on }
}

// WithMinQuoteLength sets the minimum rune length of inline quoted spans.
func WithMinQuoteLength(n int) Option {
	return func(c *Consolidator) {
		if n > 0 {
			c.minQuote = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Consolidator) {
		if log != nil {
			c.log = log
		}
	}
}

func New(r reasoning.Reasoner, opts ...Option) *Consolidator {
	c := &Consolidator{
		reasoner: r,
		dedup:    true,
		minQuote: DefaultMinQuoteLength,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consolidate merges the successful results, given in pipeline order, into
// one report. It makes exactly one reasoning invocation.
func (c *Consolidator) Consolidate(ctx context.Context, doc document.Document, results []stage.Result) (*Report, error) {
	var names, outputs []string
	for _, r := range results {
		if r.OK() {
			names = append(names, r.Stage)
			outputs = append(outputs, r.Content)
		}
	}
	if len(outputs) == 0 {
		return nil, errors.New("no stage output to consolidate")
	}

	excerpts := collectExcerpts(doc.Text, names, outputs, c.minQuote)

	dropped := 0
	if c.dedup {
		outputs, dropped = Dedupe(outputs)
	}

	merged, err := c.reasoner.Invoke(ctx, reasoning.Request{
		System:    stage.ConsolidationMandate,
		Materials: mergeMaterials(doc, names, outputs),
	})
	if err != nil {
		return nil, errors.Wrap(err, "merge invocation")
	}
	if strings.TrimSpace(merged) == "" {
		return nil, errors.New("merge invocation returned no text")
	}

	text, restored := restoreExcerpts(strings.TrimSpace(merged), excerpts)
	for i := range excerpts {
		excerpts[i].InDocument = inDocument(doc.Text, excerpts[i].Text)
	}

	c.log.Debug("consolidated",
		"document", doc.Name,
		"stages", names,
		"excerpts", len(excerpts),
		"deduplicated", dropped,
		"restored", restored)

	return &Report{
		DocumentName: doc.Name,
		Text:         text,
		Excerpts:     excerpts,
		Stages:       names,
		Deduplicated: dropped,
		Restored:     restored,
	}, nil
}

// collectExcerpts gathers every quote from the original stage outputs,
// merging repeats and remembering which stages quoted each one. Short
// inline quotes count when they occur in docText.
func collectExcerpts(docText string, names, outputs []string, minQuote int) []Excerpt {
	var out []Excerpt
	index := make(map[string]int)
	for i, o := range outputs {
		for _, q := range ExtractQuotesIn(o, docText, minQuote) {
			j, ok := index[q]
			if !ok {
				index[q] = len(out)
				out = append(out, Excerpt{Text: q, Stages: []string{names[i]}})
				continue
			}
			if s := out[j].Stages; s[len(s)-1] != names[i] {
				out[j].Stages = append(s, names[i])
			}
		}
	}
	return out
}

func mergeMaterials(doc document.Document, names, outputs []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Contract: %q\n", doc.Name)
	for i, name := range names {
		fmt.Fprintf(&sb, "\n=== Findings of the %s stage ===\n", name)
		sb.WriteString(outputs[i])
		sb.WriteString("\n")
	}
	return sb.String()
}

// restoreExcerpts appends, under AppendixHeading, every excerpt missing from
// text, labeled with the stages that quoted it.
func restoreExcerpts(text string, excerpts []Excerpt) (string, int) {
	var missing []Excerpt
	for _, e := range excerpts {
		if !strings.Contains(text, e.Text) {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return text, 0
	}

	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\n")
	sb.WriteString(AppendixHeading)
	sb.WriteString("\n\nClauses quoted during the analysis, reproduced verbatim.\n")
	for _, e := range missing {
		fmt.Fprintf(&sb, "\n- [%s] \"%s\"", strings.Join(e.Stages, ", "), e.Text)
	}
	sb.WriteString("\n")
	return sb.String(), len(missing)
}
