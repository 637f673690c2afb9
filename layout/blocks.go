package layout

import "strings"

type BlockKind int

const (
	// Line is one source line drawn as-is, wrapped only when too wide.
	Line BlockKind = iota
	Paragraph
	Heading
	ListItem
)

// Block is a unit of laid-out text.
type Block struct {
	Kind  BlockKind
	Level int // heading level, 1-6
	Text  string
}

// PlainBlocks keeps the line structure of plain text: every source line,
// blank ones included, becomes a Line block.
func PlainBlocks(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	out := make([]Block, len(lines))
	for i, l := range lines {
		out[i] = Block{Kind: Line, Text: l}
	}
	return out
}

// collapse folds runs of whitespace into single spaces.
func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
