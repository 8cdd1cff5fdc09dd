package consolidate

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/contractlens/internal/document"
	"github.com/dgallion1/contractlens/internal/reasoning"
	"github.com/dgallion1/contractlens/internal/stage"
)

type fakeMerger struct {
	reqs  []reasoning.Request
	reply string
	err   error
}

func (f *fakeMerger) Invoke(ctx context.Context, req reasoning.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

const riskOutput = `## Risks

- Termination is one-sided (Section 9):
  > The Supplier may terminate this Agreement at any time without notice.
- Payment terms are vague: "Fees are payable within a reasonable time." (Section 4)
- The term "Affiliate" is undefined.`

const contractText = `4. Fees. Fees are payable within a reasonable time.

9. Termination. The Supplier may terminate this
Agreement at any time without notice.`

func success(name, content string) stage.Result {
	return stage.Result{Stage: name, Status: stage.StatusSuccess, Content: content}
}

func TestExtractQuotes(t *testing.T) {
	quotes := ExtractQuotes(riskOutput, 0)
	assert.Equal(t, []string{
		"The Supplier may terminate this Agreement at any time without notice.",
		"Fees are payable within a reasonable time.",
	}, quotes)
}

func TestExtractQuotes_CurlyAndDuplicates(t *testing.T) {
	out := "- “The Buyer shall indemnify the Seller.” appears twice: “The Buyer shall indemnify the Seller.”"
	assert.Equal(t, []string{"The Buyer shall indemnify the Seller."}, ExtractQuotes(out, 0))
}

func TestConsolidate_RestoresMissingQuotes(t *testing.T) {
	merger := &fakeMerger{reply: "# Contract report\n\n> The Supplier may terminate this Agreement at any time without notice.\n"}
	c := New(merger)
	doc := document.New("msa.pdf", contractText, "s1")

	report, err := c.Consolidate(context.Background(), doc, []stage.Result{
		success(stage.Structure, "- Section numbering skips 5 to 9."),
		success(stage.Risk, riskOutput),
	})
	require.NoError(t, err)
	require.Len(t, merger.reqs, 1)
	assert.Equal(t, stage.ConsolidationMandate, merger.reqs[0].System)

	for _, e := range report.Excerpts {
		assert.Contains(t, report.Text, e.Text)
	}
	assert.Equal(t, 1, report.Restored)
	assert.Contains(t, report.Text, AppendixHeading)
	assert.Contains(t, report.Text, `- [risk] "Fees are payable within a reasonable time."`)
	assert.Equal(t, []string{stage.Structure, stage.Risk}, report.Stages)
	assert.Equal(t, "msa.pdf", report.DocumentName)
}

func TestConsolidate_NoAppendixWhenAllQuotesKept(t *testing.T) {
	merger := &fakeMerger{reply: "Report\n\n" + riskOutput}
	report, err := New(merger).Consolidate(context.Background(), document.New("a", contractText, ""), []stage.Result{
		success(stage.Risk, riskOutput),
	})
	require.NoError(t, err)
	assert.Zero(t, report.Restored)
	assert.NotContains(t, report.Text, AppendixHeading)
}

func TestConsolidate_Traceability(t *testing.T) {
	out := riskOutput + "\n- Liability: \"The Customer waives all claims forever.\""
	merger := &fakeMerger{reply: out}
	report, err := New(merger).Consolidate(context.Background(), document.New("a", contractText, ""), []stage.Result{
		success(stage.Risk, out),
	})
	require.NoError(t, err)

	trace := map[string]bool{}
	for _, e := range report.Excerpts {
		trace[e.Text] = e.InDocument
	}
	// Line wrapping in the document does not break the match.
	assert.True(t, trace["The Supplier may terminate this Agreement at any time without notice."])
	assert.True(t, trace["Fees are payable within a reasonable time."])
	assert.False(t, trace["The Customer waives all claims forever."])
}

func TestConsolidate_ExcerptStagesMerged(t *testing.T) {
	quote := `"Fees are payable within a reasonable time."`
	merger := &fakeMerger{reply: "merged " + quote}
	report, err := New(merger, WithDedup(false)).Consolidate(context.Background(), document.New("a", contractText, ""), []stage.Result{
		success(stage.Risk, "- Vague: "+quote),
		success(stage.Negotiation, "- Propose 30 days instead of "+quote),
	})
	require.NoError(t, err)
	require.Len(t, report.Excerpts, 1)
	assert.Equal(t, []string{stage.Risk, stage.Negotiation}, report.Excerpts[0].Stages)
}

func TestConsolidate_SkipsUnsuccessfulResults(t *testing.T) {
	merger := &fakeMerger{reply: "ok"}
	_, err := New(merger).Consolidate(context.Background(), document.New("a", "b", ""), []stage.Result{
		success(stage.Structure, "STRUCTURE"),
		{Stage: stage.Risk, Status: stage.StatusFailed, Content: "PARTIAL"},
	})
	require.NoError(t, err)
	assert.Contains(t, merger.reqs[0].Materials, "STRUCTURE")
	assert.NotContains(t, merger.reqs[0].Materials, "PARTIAL")
}

func TestConsolidate_Errors(t *testing.T) {
	_, err := New(&fakeMerger{reply: "x"}).Consolidate(context.Background(), document.New("a", "b", ""), nil)
	assert.Error(t, err)

	cause := errors.New("merge provider down")
	_, err = New(&fakeMerger{err: cause}).Consolidate(context.Background(), document.New("a", "b", ""), []stage.Result{
		success(stage.Structure, "x"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))

	_, err = New(&fakeMerger{reply: "  \n"}).Consolidate(context.Background(), document.New("a", "b", ""), []stage.Result{
		success(stage.Structure, "x"),
	})
	assert.Error(t, err)
}

func TestDedupe(t *testing.T) {
	structure := "- Section 5 lacks a termination date.\n- Headings are inconsistent."
	risk := "## Findings\n\n- section 5 lacks a **termination** date.\n- Clause 7 is ambiguous: \"the Buyer may adjust prices\""

	out, dropped := Dedupe([]string{structure, risk})
	assert.Equal(t, 1, dropped)
	assert.Equal(t, structure, out[0])
	assert.Equal(t, "## Findings\n\n- Clause 7 is ambiguous: \"the Buyer may adjust prices\"", out[1])
}

func TestDedupe_KeepsWhenQuotesDiffer(t *testing.T) {
	structure := `- Clause 7 says "THE BUYER MAY ADJUST PRICES"`
	risk := `- clause 7 says "the Buyer may adjust prices"`
	out, dropped := Dedupe([]string{structure, risk})
	assert.Zero(t, dropped)
	assert.Equal(t, risk, out[1])
}

func TestDedupe_RepeatsWithinOneOutputKept(t *testing.T) {
	o := "- Clause 3 is unclear about delivery.\n\n- Clause 3 is unclear about delivery."
	out, dropped := Dedupe([]string{o})
	assert.Zero(t, dropped)
	assert.Equal(t, o, out[0])
}

func TestConsolidate_DedupFeedsMerge(t *testing.T) {
	merger := &fakeMerger{reply: "merged"}
	report, err := New(merger).Consolidate(context.Background(), document.New("a", "b", ""), []stage.Result{
		success(stage.Structure, "- Section 5 lacks a termination date."),
		success(stage.Risk, "- Section 5 lacks a termination date."),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deduplicated)
	assert.Equal(t, 1, strings.Count(merger.reqs[0].Materials, "Section 5 lacks a termination date."))
}

const perpetualContract = "Section 1: Term. This Agreement is perpetual. Section 2: Liability. Neither party shall be liable."

func TestConsolidate_RestoresShortQuoteFromContract(t *testing.T) {
	merger := &fakeMerger{reply: "# Report\n\n- The term clause has no end date."}
	doc := document.New("lease.pdf", perpetualContract, "s1")

	report, err := New(merger).Consolidate(context.Background(), doc, []stage.Result{
		success(stage.Risk, `- Section 1: the word "perpetual" binds the parties forever.`),
	})
	require.NoError(t, err)

	require.Len(t, report.Excerpts, 1)
	assert.Equal(t, "perpetual", report.Excerpts[0].Text)
	assert.True(t, report.Excerpts[0].InDocument)
	assert.Equal(t, 1, report.Restored)
	assert.Contains(t, report.Text, AppendixHeading)
	assert.Contains(t, report.Text, `- [risk] "perpetual"`)
}

func TestExtractQuotesIn_ShortSpans(t *testing.T) {
	out := `- "perpetual" appears once; the term "Affiliate" is undefined.`

	assert.Empty(t, ExtractQuotes(out, 0))
	assert.Equal(t, []string{"perpetual"}, ExtractQuotesIn(out, perpetualContract, 0))
}

func TestExtractQuotes_StrayQuoteMarks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "inch mark before a clause",
			in:   "- The 5\" margin rule and \"Neither party shall be liable for any loss.\" conflict.",
			want: []string{"Neither party shall be liable for any loss."},
		},
		{
			name: "dangling opener",
			in:   "- Clause 3 \"is unclear\n- Clause 4: \"The Seller keeps all deposits.\"",
			want: []string{"The Seller keeps all deposits."},
		},
		{
			name: "parenthesised and colon openers",
			in:   `- ("The Buyer pays all taxes.") and:"Prices are fixed for ten years."`,
			want: []string{"The Buyer pays all taxes.", "Prices are fixed for ten years."},
		},
		{
			name: "quote mark inside a word",
			in:   `- The 12"x18" sign clause is odd.`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuotes(tt.in, 0))
		})
	}
}
