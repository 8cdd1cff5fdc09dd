package document

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioText = "Section 1: Term. This Agreement is perpetual. Section 2: Liability. Neither party shall be liable."

func TestSplit_Scenario(t *testing.T) {
	doc := New("msa.pdf", scenarioText, "")
	chunks, err := Split(doc, WithSize(40))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Len(t, chunks[0].Content, 40)
	assert.Len(t, chunks[1].Content, 40)
	assert.Len(t, chunks[2].Content, 18)
	assert.Equal(t, "y shall be liable.", chunks[2].Content)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "msa.pdf", c.SourceName)
		assert.Equal(t, c.Content, scenarioText[c.Offset:c.Offset+len(c.Content)])
	}
}

func TestSplit_CoverageProperty(t *testing.T) {
	texts := []string{
		"a",
		scenarioText,
		strings.Repeat("The Supplier shall indemnify the Customer. ", 97),
		"Prix: 100 €. Durée: illimitée. Clause « résiliation » ✓\n\n第1条 契約期間",
		strings.Repeat("ü", 4001),
	}
	sizes := []int{1, 2, 3, 7, 40, 2000, 5000}

	for _, text := range texts {
		for _, size := range sizes {
			chunks, err := Split(New("doc", text, "s"), WithSize(size))
			require.NoError(t, err)

			var sb strings.Builder
			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), size)
				assert.True(t, utf8.ValidString(c.Content), "chunk split inside a rune")
				sb.WriteString(c.Content)
			}
			assert.Equal(t, text, sb.String())

			want := (utf8.RuneCountInString(text) + size - 1) / size
			assert.Len(t, chunks, want, "size=%d", size)
			assert.Equal(t, want, Count(text, size))
		}
	}
}

func TestSplit_EmptyDocument(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t \r\n"} {
		chunks, err := Split(New("empty.pdf", text, ""))
		require.ErrorIs(t, err, ErrEmptyDocument)
		assert.Nil(t, chunks)
	}
}

func TestSplit_DefaultSize(t *testing.T) {
	text := strings.Repeat("x", DefaultChunkSize*2+1)
	chunks, err := Split(New("d", text, ""))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2].Content, 1)
}

func TestSplit_NonPositiveSizeIgnored(t *testing.T) {
	chunks, err := Split(New("d", "abc", ""), WithSize(0), WithSize(-5))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "abc", chunks[0].Content)
}

func TestSplit_Overlap(t *testing.T) {
	chunks, err := Split(New("d", "abcdefghij", ""), WithSize(4), WithOverlap(1))
	require.NoError(t, err)

	got := make([]string, 0, len(chunks))
	for _, c := range chunks {
		got = append(got, c.Content)
	}
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, got)
	assert.Equal(t, 3, chunks[1].Offset)
}

func TestSplit_OverlapClampedBelowSize(t *testing.T) {
	chunks, err := Split(New("d", "abcdefgh", ""), WithSize(4), WithOverlap(9))
	require.NoError(t, err)
	// overlap is reduced to size/4, so progress is always made
	assert.Equal(t, "abcd", chunks[0].Content)
	assert.Equal(t, "defg", chunks[1].Content)
	assert.Equal(t, "gh", chunks[2].Content)
}

func TestNew_GeneratesSessionID(t *testing.T) {
	a := New("a", "text", "")
	b := New("b", "text", "")
	assert.NotEmpty(t, a.SessionID)
	assert.NotEqual(t, a.SessionID, b.SessionID)

	c := New("c", "text", "session-42")
	assert.Equal(t, "session-42", c.SessionID)
}
