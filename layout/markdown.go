package layout

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownBlocks parses Markdown and reduces it to headings, paragraphs
// and list items. Inline styling is dropped; code blocks keep their lines.
func MarkdownBlocks(source []byte) []Block {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var out []Block
	walkMarkdown(doc, source, &out)
	return out
}

func walkMarkdown(node ast.Node, source []byte, out *[]Block) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			*out = append(*out, Block{Kind: Heading, Level: n.Level, Text: inlineText(n, source)})
		case *ast.Paragraph, *ast.TextBlock:
			if t := inlineText(n, source); t != "" {
				*out = append(*out, Block{Kind: Paragraph, Text: t})
			}
		case *ast.List, *ast.Blockquote:
			walkMarkdown(n, source, out)
		case *ast.ListItem:
			*out = append(*out, Block{Kind: ListItem, Text: listItemText(n, source)})
			// nested lists follow their item
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				if l, ok := c.(*ast.List); ok {
					walkMarkdown(l, source, out)
				}
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				*out = append(*out, Block{Kind: Line, Text: strings.TrimRight(string(seg.Value(source)), "\n")})
			}
		case *ast.ThematicBreak, *ast.HTMLBlock:
		default:
			walkMarkdown(n, source, out)
		}
	}
}

func listItemText(n *ast.ListItem, source []byte) string {
	var parts []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if _, nested := c.(*ast.List); nested {
			continue
		}
		parts = append(parts, inlineText(c, source))
	}
	return collapse(strings.Join(parts, " "))
}

// inlineText concatenates the text leaves under n. Soft line breaks become
// spaces.
func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return collapse(sb.String())
}
