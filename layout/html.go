package layout

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLBlocks parses an HTML document and reduces it to headings,
// paragraphs, list items and preformatted lines. Script and style content
// is ignored.
func HTMLBlocks(r io.Reader) ([]Block, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var out []Block
	walkHTML(doc, &out)
	return out, nil
}

func walkHTML(n *html.Node, out *[]Block) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Head:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			*out = append(*out, Block{Kind: Heading, Level: int(n.Data[1] - '0'), Text: collapse(nodeText(n))})
			return
		case atom.P, atom.Blockquote, atom.Dt, atom.Dd, atom.Td, atom.Th, atom.Caption:
			if t := collapse(nodeText(n)); t != "" {
				*out = append(*out, Block{Kind: Paragraph, Text: t})
			}
			return
		case atom.Li:
			*out = append(*out, Block{Kind: ListItem, Text: collapse(nodeText(n))})
			return
		case atom.Pre:
			*out = append(*out, PlainBlocks(strings.Trim(nodeText(n), "\n"))...)
			return
		}
	}
	if n.Type == html.TextNode {
		// loose text outside block elements
		if t := collapse(n.Data); t != "" {
			*out = append(*out, Block{Kind: Paragraph, Text: t})
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, out)
	}
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte('\n')
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}
