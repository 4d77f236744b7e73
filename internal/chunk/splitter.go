// Package chunk splits markdown documents into overlapping chunks for
// vector indexing (spec.md §4.4 word-photo/crystal/tech-RAG layers),
// adapted from manifold's internal/documents splitter idiom.
package chunk

import "strings"

// Options configures Split.
type Options struct {
	MaxChars int // target chunk size in characters
	Overlap  int // characters of overlap between consecutive chunks
}

// DefaultOptions mirrors the teacher's document-splitter defaults.
var DefaultOptions = Options{MaxChars: 1200, Overlap: 150}

// Chunk is one piece of a split document.
type Chunk struct {
	Num     int
	Content string
}

// Split breaks text into chunks along paragraph boundaries where possible,
// falling back to a hard cut at MaxChars. When a chunk is closed because the
// next paragraph does not fit, its last Overlap characters are repeated at
// the start of the following chunk (so semantic continuity survives the
// cut); pieces of a hard-split paragraph overlap each other by Overlap
// characters. The chunk that follows a hard-split paragraph starts without
// overlap.
func Split(text string, opts Options) []Chunk {
	if opts.MaxChars <= 0 {
		opts = DefaultOptions
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	paragraphs := strings.Split(text, "\n\n")

	var chunks []Chunk
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s == "" {
			return
		}
		chunks = append(chunks, Chunk{Num: len(chunks), Content: s})
		cur.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len()+len(p)+2 > opts.MaxChars && cur.Len() > 0 {
			tail := overlapTail(cur.String(), opts.Overlap)
			flush()
			cur.WriteString(tail)
		}
		if len(p) > opts.MaxChars {
			// A single paragraph longer than MaxChars is hard-split.
			for _, piece := range hardSplit(p, opts.MaxChars, opts.Overlap) {
				if cur.Len() > 0 {
					cur.WriteString("\n\n")
				}
				cur.WriteString(piece)
				flush()
			}
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()
	return chunks
}

func overlapTail(s string, overlap int) string {
	if overlap <= 0 || len(s) <= overlap {
		return ""
	}
	return s[len(s)-overlap:] + "\n\n"
}

func hardSplit(s string, maxChars, overlap int) []string {
	var out []string
	for len(s) > maxChars {
		out = append(out, s[:maxChars])
		next := maxChars - overlap
		if next <= 0 {
			next = maxChars
		}
		s = s[next:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
