package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

type ImageFormat string

const (
	ImageJPEG ImageFormat = "jpg"
	ImagePNG  ImageFormat = "png"
)

type rasterSettings struct {
	scale       float64
	jpegQuality int
}

var rasterByQuality = map[Quality]rasterSettings{
	QualityLow:    {scale: 1.0, jpegQuality: 60},
	QualityMedium: {scale: 1.5, jpegQuality: 80},
	QualityHigh:   {scale: 2.0, jpegQuality: 90},
}

type ToImagesOptions struct {
	// Format defaults to JPEG and Quality to medium.
	Format   ImageFormat
	Quality  Quality
	Progress progress.Func
}

// RenderedImage is one encoded page. Placeholder is set when the page
// could not be rendered and an error card was produced instead.
type RenderedImage struct {
	Page        int
	Data        []byte
	FileName    string
	Width       int
	Height      int
	Placeholder bool
}

type ImagesResult struct {
	Images       []RenderedImage
	OriginalSize int64
	Outcomes     []PageOutcome
}

// PDFToImages renders every page of file and encodes it as JPEG or PNG.
// A page that fails to render is replaced by an error card and recorded in
// Outcomes.
func (c *Converter) PDFToImages(ctx context.Context, file validation.File, opts ToImagesOptions) (*ImagesResult, error) {
	if opts.Format == "" {
		opts.Format = ImageJPEG
	}
	if opts.Quality == "" {
		opts.Quality = QualityMedium
	}
	if opts.Format != ImageJPEG && opts.Format != ImagePNG {
		return nil, pdferr.Validationf("Output format must be either \"jpg\" or \"png\"")
	}
	if !opts.Quality.valid() {
		return nil, pdferr.Validationf("Invalid quality: %s. Must be low, medium, or high.", opts.Quality)
	}
	if err := validation.One(file, c.limitsFor(budgetOp).MaxSize, validation.KindPDF); err != nil {
		return nil, err
	}
	settings := rasterByQuality[opts.Quality]
	rasterizer := c.rasterizer
	if rasterizer == nil {
		rasterizer = PlaceholderRasterizer{}
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, c, "pdf-to-image", tracker, func(ctx context.Context) (*ImagesResult, error) {
		tracker.Report(10)
		defer c.release(file)
		doc, err := c.load(ctx, file)
		if err != nil {
			return nil, err
		}
		tracker.Report(30)

		n := doc.PageCount()
		res := &ImagesResult{OriginalSize: file.Size(), Images: make([]RenderedImage, 0, n)}
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := c.midpoint(); err != nil {
				return nil, err
			}
			img, placeholder, err := c.renderPage(ctx, rasterizer, doc, i, settings.scale)
			if err != nil {
				return nil, pdferr.PageFailure("pdf-to-image", i, err)
			}
			data, err := encodeImage(img, opts.Format, settings.jpegQuality)
			if err != nil {
				return nil, pdferr.PageFailure("pdf-to-image", i, err)
			}
			b := img.Bounds()
			res.Images = append(res.Images, RenderedImage{
				Page:        i,
				Data:        data,
				FileName:    pageImageName(file.Name, i, n, opts.Format),
				Width:       b.Dx(),
				Height:      b.Dy(),
				Placeholder: placeholder != nil,
			})
			res.Outcomes = append(res.Outcomes, PageOutcome{Index: i, Err: placeholder})
			tracker.Fraction(i+1, n, 30, 90)
		}
		return res, nil
	})
}

// renderPage rasterizes page idx, falling back to an error card. The
// returned cause is non-nil when the fallback was used.
func (c *Converter) renderPage(ctx context.Context, r Rasterizer, doc *document.Document, idx int, scale float64) (img image.Image, cause, err error) {
	img, cause = r.Rasterize(ctx, doc, idx, scale)
	if cause == nil {
		return img, nil, nil
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	c.logger.Warn("page render failed, using placeholder",
		observability.Int("page", idx+1),
		observability.Error("error", cause))
	w, h := document.A4[0], document.A4[1]
	if page, perr := doc.Page(idx); perr == nil {
		w, h = page.Size()
		if rot := page.Rotation(); rot == 90 || rot == 270 {
			w, h = h, w
		}
	}
	img, err = errorPlaceholder(w, h, scale, idx)
	if err != nil {
		return nil, nil, err
	}
	return img, cause, nil
}

func encodeImage(img image.Image, format ImageFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case ImagePNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	default:
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// flatten composites img over white so transparent areas do not turn black
// in JPEG output.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}

func pageImageName(name string, idx, total int, format ImageFormat) string {
	if total == 1 {
		return fmt.Sprintf("%s.%s", stem(name), format)
	}
	return fmt.Sprintf("%s_page_%d.%s", stem(name), idx+1, format)
}
