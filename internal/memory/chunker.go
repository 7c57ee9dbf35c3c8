// Package memory indexes markdown memory files into a searchable store with
// keyword, vector, and hybrid retrieval, scoped per user or family.
package memory

import "strings"

// maxChunkChars caps a single chunk; longer sections are subdivided on
// blank-line boundaries so paragraphs stay intact.
const maxChunkChars = 2000

// Chunk is one indexable section of a markdown file.
type Chunk struct {
	Heading string
	Content string
}

// SplitMarkdown chunks a markdown document by level-2 headings. Content
// before the first heading becomes a preamble chunk labeled by the level-1
// title, or a synthetic label when there is none.
func SplitMarkdown(source, content string) []Chunk {
	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var title string
	heading := ""
	var buf []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if text == "" {
			return
		}
		h := heading
		if h == "" {
			h = title
			if h == "" {
				h = source + " (preamble)"
			}
		}
		for _, part := range subdivide(text) {
			chunks = append(chunks, Chunk{Heading: h, Content: part})
		}
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			heading = strings.TrimSpace(strings.TrimPrefix(line, "## "))
		case strings.HasPrefix(line, "# ") && title == "" && heading == "":
			title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
		default:
			buf = append(buf, line)
		}
	}
	flush()
	return chunks
}

// subdivide splits oversized text on blank lines, packing paragraphs
// greedily up to the chunk cap. A single paragraph over the cap stays whole.
func subdivide(text string) []string {
	if len(text) <= maxChunkChars {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	var out []string
	var cur strings.Builder
	for _, p := range paragraphs {
		if cur.Len() > 0 && cur.Len()+len(p)+2 > maxChunkChars {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}
