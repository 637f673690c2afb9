package convert

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/filters"
)

var (
	panelFill    = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
	panelBorder  = color.RGBA{0xd1, 0xd5, 0xdb, 0xff}
	headingInk   = color.RGBA{0x37, 0x41, 0x51, 0xff}
	noteInk      = color.RGBA{0x6b, 0x72, 0x80, 0xff}
	errorFill    = color.RGBA{0xfe, 0xf2, 0xf2, 0xff}
	errorBorder  = color.RGBA{0xfc, 0xa5, 0xa5, 0xff}
	errorHeading = color.RGBA{0xdc, 0x26, 0x26, 0xff}
)

// PlaceholderRasterizer draws a labelled card of the page's size instead of
// its content. It is the fallback when no renderer is configured.
type PlaceholderRasterizer struct{}

func (PlaceholderRasterizer) Rasterize(ctx context.Context, doc *document.Document, idx int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := doc.Page(idx)
	if err != nil {
		return nil, err
	}
	w, h := page.Size()
	if r := page.Rotation(); r == 90 || r == 270 {
		w, h = h, w
	}
	return placeholderImage(w, h, scale, panelFill, panelBorder, []line{
		{fmt.Sprintf("PDF Page %d", idx+1), headingInk},
		{fmt.Sprintf("Original Size: %.0f x %.0f pts", w, h), headingInk},
		{"Page content is not rendered", noteInk},
	})
}

// errorPlaceholder stands in for a page whose rendering failed.
func errorPlaceholder(width, height, scale float64, idx int) (image.Image, error) {
	return placeholderImage(width, height, scale, errorFill, errorBorder, []line{
		{"Page Conversion Error", errorHeading},
		{fmt.Sprintf("Page %d could not be processed", idx+1), headingInk},
		{"This may be due to complex content or encryption", noteInk},
	})
}

type line struct {
	text string
	ink  color.Color
}

func placeholderImage(width, height, scale float64, fill, border color.Color, lines []line) (image.Image, error) {
	pw, ph := int(math.Ceil(width*scale)), int(math.Ceil(height*scale))
	if err := filters.ValidateImageBounds(pw, ph); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.Draw(img, img.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
	inset := int(10 * scale)
	frame := image.Rect(inset, inset, pw-inset, ph-inset)
	if !frame.Empty() {
		thick := max(1, int(scale))
		for _, edge := range []image.Rectangle{
			image.Rect(frame.Min.X, frame.Min.Y, frame.Max.X, frame.Min.Y+thick),
			image.Rect(frame.Min.X, frame.Max.Y-thick, frame.Max.X, frame.Max.Y),
			image.Rect(frame.Min.X, frame.Min.Y, frame.Min.X+thick, frame.Max.Y),
			image.Rect(frame.Max.X-thick, frame.Min.Y, frame.Max.X, frame.Max.Y),
		} {
			draw.Draw(img, edge, image.NewUniform(border), image.Point{}, draw.Src)
		}
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Face: face}
	lineHeight := face.Metrics().Height.Ceil() + 6
	y := ph/2 - lineHeight*len(lines)/2 + face.Metrics().Ascent.Ceil()
	for _, l := range lines {
		d.Src = image.NewUniform(l.ink)
		adv := d.MeasureString(l.text)
		d.Dot = fixed.Point26_6{X: fixed.I(pw/2) - adv/2, Y: fixed.I(y)}
		d.DrawString(l.text)
		y += lineHeight
	}
	return img, nil
}
