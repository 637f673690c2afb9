// Package layout flows blocks of text onto the pages of a document using
// the standard fonts, wrapping lines and breaking pages as needed.
package layout

import (
	"context"
	"strings"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/fonts"
)

// Engine lays out blocks onto new pages appended to a document.
type Engine struct {
	doc *document.Document

	Font       fonts.Family
	BoldFont   fonts.Family
	FontSize   float64
	LineHeight float64 // multiplier of the font size
	Margins    Margins
	Color      document.Color

	pageWidth  float64
	pageHeight float64

	regular *document.Font
	bold    *document.Font
	page    *document.Page
	canvas  *document.Canvas
	cursorY float64
	pages   int
}

// Margins are page margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

type Option func(*Engine)

func WithFont(f fonts.Family) Option   { return func(e *Engine) { e.Font = f; e.BoldFont = f.Bold() } }
func WithFontSize(size float64) Option { return func(e *Engine) { e.FontSize = size } }
func WithLineHeight(h float64) Option  { return func(e *Engine) { e.LineHeight = h } }
func WithMargins(m Margins) Option     { return func(e *Engine) { e.Margins = m } }

// WithPageSize sets the size of pages the engine creates.
func WithPageSize(size [2]float64) Option {
	return func(e *Engine) { e.pageWidth, e.pageHeight = size[0], size[1] }
}

// NewEngine returns an engine drawing Helvetica 12 with 1.2 line height and
// 50pt margins on Letter pages unless configured otherwise.
func NewEngine(doc *document.Document, opts ...Option) *Engine {
	e := &Engine{
		doc:        doc,
		Font:       fonts.Helvetica,
		BoldFont:   fonts.HelveticaBold,
		FontSize:   12,
		LineHeight: 1.2,
		Margins:    Margins{Top: 50, Bottom: 50, Left: 50, Right: 50},
		pageWidth:  document.Letter[0],
		pageHeight: document.Letter[1],
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pages returns how many pages the engine has created.
func (e *Engine) Pages() int { return e.pages }

// Render draws blocks in order and finishes the last page. An empty block
// list still produces one blank page.
func (e *Engine) Render(ctx context.Context, blocks []Block) error {
	var err error
	if e.regular, err = e.doc.EmbedStandardFont(e.Font); err != nil {
		return err
	}
	if e.bold, err = e.doc.EmbedStandardFont(e.BoldFont); err != nil {
		return err
	}
	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.renderBlock(b, i == 0); err != nil {
			return err
		}
	}
	if e.page == nil {
		if err := e.newPage(); err != nil {
			return err
		}
	}
	return e.finishPage()
}

func (e *Engine) renderBlock(b Block, first bool) error {
	font, size := e.regular, e.FontSize
	indent := 0.0
	switch b.Kind {
	case Heading:
		font, size = e.bold, e.headingSize(b.Level)
	case ListItem:
		indent = listIndent
	}
	lineHeight := size * e.LineHeight
	if !first && b.Kind != Line {
		// paragraph spacing
		if err := e.advance(e.FontSize * (e.LineHeight - 1) * 2); err != nil {
			return err
		}
	}

	x := e.Margins.Left + indent
	width := e.pageWidth - e.Margins.Right - x
	lines := font.Metrics.Wrap(b.Text, size, width)
	if b.Kind != Line {
		lines = trimBlank(lines)
	}
	for i, line := range lines {
		if err := e.ensureRoom(lineHeight); err != nil {
			return err
		}
		baseline := e.cursorY - size
		if b.Kind == ListItem && i == 0 {
			e.canvas.DrawText(bullet, e.Margins.Left, baseline, document.TextOptions{Font: font, Size: size, Color: e.Color})
		}
		if line != "" {
			e.canvas.DrawText(line, x, baseline, document.TextOptions{Font: font, Size: size, Color: e.Color})
		}
		e.cursorY -= lineHeight
	}
	return nil
}

const (
	listIndent = 15.0
	bullet     = "•"
)

func (e *Engine) headingSize(level int) float64 {
	switch level {
	case 1:
		return e.FontSize * 2
	case 2:
		return e.FontSize * 1.5
	}
	return e.FontSize * 1.25
}

// ensureRoom starts a new page when fewer than h points remain above the
// bottom margin.
func (e *Engine) ensureRoom(h float64) error {
	if e.page == nil {
		return e.newPage()
	}
	if e.cursorY-h < e.Margins.Bottom {
		if err := e.finishPage(); err != nil {
			return err
		}
		return e.newPage()
	}
	return nil
}

// advance moves the cursor down without drawing. Space is never carried
// onto a fresh page.
func (e *Engine) advance(h float64) error {
	if e.page == nil {
		return nil
	}
	e.cursorY -= h
	return nil
}

func (e *Engine) newPage() error {
	e.page = e.doc.NewPage(e.pageWidth, e.pageHeight)
	e.canvas = e.page.Canvas()
	e.cursorY = e.pageHeight - e.Margins.Top
	e.pages++
	return nil
}

func (e *Engine) finishPage() error {
	if e.canvas == nil {
		return nil
	}
	err := e.canvas.Finish()
	e.canvas = nil
	return err
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
