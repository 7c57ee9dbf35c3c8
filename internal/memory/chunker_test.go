package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitMarkdownByHeadings(t *testing.T) {
	doc := `# My Notes

Intro paragraph before any section.

## Projects

Working on the agent runtime.

## People

Monika likes hiking.
`
	chunks := SplitMarkdown("notes.md", doc)
	require.Len(t, chunks, 3)
	require.Equal(t, "My Notes", chunks[0].Heading)
	require.Contains(t, chunks[0].Content, "Intro paragraph")
	require.Equal(t, "Projects", chunks[1].Heading)
	require.Equal(t, "People", chunks[2].Heading)
}

func TestSplitMarkdownSyntheticPreamble(t *testing.T) {
	chunks := SplitMarkdown("loose.md", "just some text with no headings at all here")
	require.Len(t, chunks, 1)
	require.Equal(t, "loose.md (preamble)", chunks[0].Heading)
}

func TestSplitMarkdownEmptySectionsSkipped(t *testing.T) {
	chunks := SplitMarkdown("x.md", "## Empty\n\n## Full\n\ncontent here")
	require.Len(t, chunks, 1)
	require.Equal(t, "Full", chunks[0].Heading)
}

func TestSubdivideKeepsParagraphsWhole(t *testing.T) {
	para := strings.Repeat("word ", 300) // ~1500 chars
	doc := "## Big\n\n" + para + "\n\n" + para + "\n\n" + para
	chunks := SplitMarkdown("big.md", doc)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.Equal(t, "Big", c.Heading)
		// No paragraph was split mid-text.
		for _, p := range strings.Split(c.Content, "\n\n") {
			require.LessOrEqual(t, len(p), len(para)+1)
		}
	}
}
