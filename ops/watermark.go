package ops

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

// Mark is the element drawn on each page: a TextMark or an ImageMark.
type Mark interface {
	validate() error
}

type TextMark struct {
	Text string
	// Font is Helvetica, Times-Roman or Courier; empty means Helvetica.
	Font fonts.Family
	// Size in points, 8 to 200; zero means 48.
	Size float64
	// Color defaults to 50% gray.
	Color *document.Color
}

type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpg"
	FormatPNG  ImageFormat = "png"
)

type ImageMark struct {
	Data   []byte
	Format ImageFormat
}

type Position string

const (
	Center      Position = "center"
	TopLeft     Position = "top-left"
	TopRight    Position = "top-right"
	BottomLeft  Position = "bottom-left"
	BottomRight Position = "bottom-right"
)

// watermarkMargin is the distance kept from the page edges in corner
// positions.
const watermarkMargin = 20.0

const (
	defaultWatermarkSize = 48.0
	minDrawnOpacity      = 0.1
	maxImageFraction     = 0.8
)

var watermarkFonts = map[fonts.Family]bool{fonts.Helvetica: true, fonts.TimesRoman: true, fonts.Courier: true}

func (m TextMark) validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return pdferr.Validationf("Text watermark requires text content")
	}
	if m.Size != 0 && (m.Size < 8 || m.Size > 200) {
		return pdferr.Validationf("Font size must be between 8 and 200")
	}
	if m.Font != "" && !watermarkFonts[m.Font] {
		return pdferr.Validationf("Unsupported watermark font: %s", m.Font)
	}
	if c := m.Color; c != nil {
		for _, v := range []float64{c.R, c.G, c.B} {
			if v < 0 || v > 1 {
				return pdferr.Validationf("Color components must be between 0 and 1")
			}
		}
	}
	return nil
}

func (m ImageMark) validate() error {
	if len(m.Data) == 0 {
		return pdferr.Validationf("Image watermark requires image data")
	}
	if m.Format != FormatJPEG && m.Format != FormatPNG {
		return pdferr.Validationf("Image type must be either \"jpg\" or \"png\"")
	}
	return nil
}

type WatermarkOptions struct {
	Mark Mark
	// Opacity in [0,1]; drawn opacity is never below 0.1.
	Opacity  float64
	Position Position
	// Rotation in degrees, applied to the mark only.
	Rotation float64
	// Scale in [0.1,2].
	Scale float64
	// Pages lists 0-based page indices; nil marks every page.
	Pages    []int
	Progress progress.Func
}

// DefaultWatermarkOptions returns centered, unrotated, half-transparent
// options at natural scale.
func DefaultWatermarkOptions(mark Mark) WatermarkOptions {
	return WatermarkOptions{Mark: mark, Opacity: 0.5, Position: Center, Scale: 1}
}

func (o WatermarkOptions) validate() error {
	if o.Mark == nil {
		return pdferr.Validationf("Watermark type must be either \"text\" or \"image\"")
	}
	if err := o.Mark.validate(); err != nil {
		return err
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return pdferr.Validationf("Opacity must be between 0 and 1")
	}
	if o.Scale < 0.1 || o.Scale > 2 {
		return pdferr.Validationf("Scale must be between 0.1 and 2.0")
	}
	switch o.Position {
	case Center, TopLeft, TopRight, BottomLeft, BottomRight, "":
	default:
		return pdferr.Validationf("Invalid watermark position: %s", o.Position)
	}
	return nil
}

type WatermarkResult struct {
	Data           []byte
	FileName       string
	OriginalSize   int64
	ProcessedSize  int64
	PagesProcessed int
	// Outcomes has one entry per targeted page, in processing order.
	Outcomes []PageOutcome
}

// Failed returns the outcomes that carry an error.
func (r *WatermarkResult) Failed() []PageOutcome {
	var out []PageOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Watermark draws the mark on each selected page. A page that cannot be
// marked is recorded in Outcomes and skipped; the rest are still processed.
func (e *Engine) Watermark(ctx context.Context, file validation.File, opts WatermarkOptions) (*WatermarkResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := e.validatePDFs("watermark", []validation.File{file}); err != nil {
		return nil, err
	}
	if opts.Position == "" {
		opts.Position = Center
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, e, "watermark", tracker, func(ctx context.Context) (*WatermarkResult, error) {
		defer e.release(file)
		tracker.Report(10)
		doc, err := e.load(ctx, file)
		if err != nil {
			return nil, err
		}
		tracker.Report(20)

		targets := opts.Pages
		if targets == nil {
			targets = allPages(doc.PageCount())
		}
		if err := checkPageIndices(targets, doc.PageCount()); err != nil {
			return nil, err
		}
		tracker.Report(30)

		draw, err := prepareMark(doc, opts)
		if err != nil {
			return nil, err
		}
		tracker.Report(40)

		res := &WatermarkResult{OriginalSize: file.Size()}
		for i, idx := range targets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p, _ := doc.Page(idx)
			if err := draw(p); err != nil {
				e.logger.Warn("failed to watermark page",
					observability.Int("page", idx), observability.Error("error", err))
				res.Outcomes = append(res.Outcomes, PageOutcome{Index: idx, Err: pdferr.PageFailure("watermark", idx, err)})
			} else {
				res.Outcomes = append(res.Outcomes, PageOutcome{Index: idx})
				res.PagesProcessed++
			}
			tracker.Fraction(i+1, len(targets), 40, 80)
		}
		tracker.Report(85)

		data, err := e.save(ctx, "watermark", doc, document.SaveOptions{Progress: tracker.Band(85, 99)})
		if err != nil {
			return nil, err
		}
		res.Data = data
		res.ProcessedSize = int64(len(data))
		res.FileName = fileStem(file.Name) + "_watermarked.pdf"
		return res, nil
	})
}

// prepareMark embeds the mark's resources once and returns the per-page
// drawing function.
func prepareMark(doc *document.Document, opts WatermarkOptions) (func(*document.Page) error, error) {
	opacity := math.Max(minDrawnOpacity, math.Min(1, opts.Opacity))
	switch m := opts.Mark.(type) {
	case TextMark:
		family := m.Font
		if family == "" {
			family = fonts.Helvetica
		}
		font, err := doc.EmbedStandardFont(family)
		if err != nil {
			return nil, pdferr.Processing("watermark", err)
		}
		size := m.Size
		if size == 0 {
			size = defaultWatermarkSize
		}
		size *= opts.Scale
		color := document.Gray
		if m.Color != nil {
			color = *m.Color
		}
		return func(p *document.Page) error {
			box, err := markArea(p)
			if err != nil {
				return err
			}
			w, h := font.Metrics.TextWidth(m.Text, size), size
			x, y := placement(box, w, h, opts.Position)
			return p.Canvas().DrawText(m.Text, x, y, document.TextOptions{
				Font: font, Size: size, Color: color, Rotate: opts.Rotation, Opacity: opacity,
			}).Finish()
		}, nil
	case ImageMark:
		var img *document.Image
		var err error
		if m.Format == FormatPNG {
			img, err = doc.EmbedPNG(m.Data)
		} else {
			img, err = doc.EmbedJPEG(m.Data)
		}
		if err != nil {
			return nil, pdferr.Processing("watermark", fmt.Errorf("embed watermark image: %w", err))
		}
		return func(p *document.Page) error {
			box, err := markArea(p)
			if err != nil {
				return err
			}
			w, h := fitImage(float64(img.Width)*opts.Scale, float64(img.Height)*opts.Scale, box.Width(), box.Height())
			x, y := placement(box, w, h, opts.Position)
			return p.Canvas().DrawImage(img, x, y, w, h, document.ImageOptions{
				Rotate: opts.Rotation, Opacity: opacity,
			}).Finish()
		}, nil
	}
	return nil, pdferr.Validationf("unsupported watermark mark %T", opts.Mark)
}

// markArea is the region of p a mark may cover.
func markArea(p *document.Page) (coords.Rect, error) {
	box := p.VisibleBox()
	if box.Width() <= 0 || box.Height() <= 0 {
		return box, fmt.Errorf("page has no visible area: media box %v", p.MediaBox())
	}
	return box, nil
}

// placement computes the lower-left corner of a w×h element inside box and
// clamps it so the element stays within the box.
func placement(box coords.Rect, w, h float64, pos Position) (float64, float64) {
	m := watermarkMargin
	pw, ph := box.Width(), box.Height()
	var x, y float64
	switch pos {
	case TopLeft:
		x, y = m, ph-h-m
	case TopRight:
		x, y = pw-w-m, ph-h-m
	case BottomLeft:
		x, y = m, m
	case BottomRight:
		x, y = pw-w-m, m
	default:
		x, y = (pw-w)/2, (ph-h)/2
	}
	return box.LLX + clamp(x, 0, pw-w), box.LLY + clamp(y, 0, ph-h)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}

// fitImage caps an image box to 80% of the page in each dimension,
// preserving its aspect ratio.
func fitImage(w, h, pw, ph float64) (float64, float64) {
	if maxW := pw * maxImageFraction; w > maxW {
		h *= maxW / w
		w = maxW
	}
	if maxH := ph * maxImageFraction; h > maxH {
		w *= maxH / h
		h = maxH
	}
	return w, h
}

// PositionDescription names a watermark position for display.
func PositionDescription(p Position) string {
	switch p {
	case TopLeft:
		return "Top Left Corner"
	case TopRight:
		return "Top Right Corner"
	case BottomLeft:
		return "Bottom Left Corner"
	case BottomRight:
		return "Bottom Right Corner"
	}
	return "Center of Page"
}
