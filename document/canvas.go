package document

import (
	"errors"

	"github.com/wudi/pdfengine/contentstream"
	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/fonts"
)

// Color is an RGB color with components in [0,1].
type Color struct {
	R, G, B float64
}

var (
	Black = Color{}
	Red   = Color{R: 1}
	Gray  = Color{R: 0.5, G: 0.5, B: 0.5}
)

type TextOptions struct {
	Font  *Font
	Size  float64
	Color Color
	// Rotate is in degrees, counter-clockwise about the text origin.
	Rotate float64
	// Opacity in (0,1) draws translucently; other values draw opaque.
	Opacity float64
}

type ImageOptions struct {
	// Rotate is in degrees, counter-clockwise about the lower-left corner.
	Rotate  float64
	Opacity float64
}

type RectOptions struct {
	Fill    Color
	Opacity float64
}

// Canvas batches drawing operations for one page. Nothing reaches the page
// until Finish appends the batch as a new content stream.
type Canvas struct {
	page *Page
	b    contentstream.Builder
	err  error
}

func (p *Page) Canvas() *Canvas { return &Canvas{page: p} }

func (c *Canvas) opacity(alpha float64) {
	if alpha <= 0 || alpha >= 1 {
		return
	}
	gs := c.page.doc.Opacity(alpha)
	c.b.SetExtGState(c.page.addResource("ExtGState", gs.name, gs.ref))
}

// DrawText draws a single line of text with its baseline origin at (x, y).
func (c *Canvas) DrawText(text string, x, y float64, opts TextOptions) *Canvas {
	if c.err != nil {
		return c
	}
	if opts.Font == nil {
		f, err := c.page.doc.EmbedStandardFont(fonts.Helvetica)
		if err != nil {
			c.err = err
			return c
		}
		opts.Font = f
	}
	if opts.Size <= 0 {
		opts.Size = 12
	}
	name := c.page.addResource("Font", opts.Font.name, opts.Font.ref)
	c.b.Save()
	c.opacity(opts.Opacity)
	c.b.FillRGB(opts.Color.R, opts.Color.G, opts.Color.B)
	c.b.BeginText()
	c.b.SetFont(name, opts.Size)
	c.b.TextMatrix(coords.RotateDegrees(opts.Rotate).Multiply(coords.Translate(x, y)))
	c.b.ShowText(fonts.EncodeWinAnsi(text))
	c.b.EndText()
	c.b.Restore()
	return c
}

// DrawImage paints img into a w×h box whose lower-left corner is (x, y).
func (c *Canvas) DrawImage(img *Image, x, y, w, h float64, opts ImageOptions) *Canvas {
	if c.err != nil {
		return c
	}
	if img == nil {
		c.err = errors.New("nil image")
		return c
	}
	name := c.page.addResource("XObject", img.name, img.ref)
	c.b.Save()
	c.opacity(opts.Opacity)
	m := coords.Scale(w, h).Multiply(coords.RotateDegrees(opts.Rotate)).Multiply(coords.Translate(x, y))
	c.b.Transform(m)
	c.b.DrawXObject(name)
	c.b.Restore()
	return c
}

func (c *Canvas) DrawRectangle(x, y, w, h float64, opts RectOptions) *Canvas {
	if c.err != nil {
		return c
	}
	c.b.Save()
	c.opacity(opts.Opacity)
	c.b.FillRGB(opts.Fill.R, opts.Fill.G, opts.Fill.B)
	c.b.Rect(x, y, w, h)
	c.b.Fill()
	c.b.Restore()
	return c
}

// Finish appends the drawn operators to the page.
func (c *Canvas) Finish() error {
	if c.err != nil {
		return c.err
	}
	if c.b.Len() == 0 {
		return nil
	}
	return c.page.AppendContent(c.b.Bytes())
}
