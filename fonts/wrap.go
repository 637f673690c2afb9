package fonts

import (
	"strings"

	"github.com/go-text/typesetting/segmenter"
)

// Wrap breaks text into lines no wider than maxWidth points at size. Lines
// break at Unicode line-break opportunities; a single segment wider than
// maxWidth is split by characters. Explicit newlines always start a new line.
func (m *Metrics) Wrap(text string, size, maxWidth float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		lines = append(lines, m.wrapParagraph(para, size, maxWidth)...)
	}
	return lines
}

func (m *Metrics) wrapParagraph(para string, size, maxWidth float64) []string {
	if strings.TrimSpace(para) == "" {
		return []string{""}
	}
	var seg segmenter.Segmenter
	seg.Init([]rune(para))
	iter := seg.LineIterator()

	var (
		lines   []string
		current strings.Builder
	)
	flush := func() {
		lines = append(lines, strings.TrimRight(current.String(), " \t"))
		current.Reset()
	}
	for iter.Next() {
		piece := string(iter.Line().Text)
		candidate := current.String() + piece
		if m.TextWidth(strings.TrimRight(candidate, " \t"), size) <= maxWidth {
			current.WriteString(piece)
			continue
		}
		if current.Len() > 0 {
			flush()
		}
		for _, r := range piece {
			next := current.String() + string(r)
			if current.Len() > 0 && m.TextWidth(strings.TrimRight(next, " \t"), size) > maxWidth {
				flush()
			}
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		flush()
	}
	return lines
}
