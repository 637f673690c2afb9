package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

const (
	// imageMargin is kept on every side of a placed image.
	imageMargin = 20.0

	placeholderX    = 50.0
	placeholderDrop = 100.0
	placeholderSize = 14.0
)

var placeholderColor = document.Color{R: 0.8}

type ImagesOptions struct {
	// PageSize defaults to A4.
	PageSize [2]float64
	Progress progress.Func
}

type PDFResult struct {
	Data          []byte
	FileName      string
	OriginalSize  int64
	ProcessedSize int64
	PageCount     int
	// Outcomes has one entry per input, in order.
	Outcomes []PageOutcome
}

// Failed returns the outcomes that carry an error.
func (r *PDFResult) Failed() []PageOutcome {
	var out []PageOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// ImagesToPDF places each image on its own page, scaled to fit inside the
// margins and centered. An image that cannot be decoded yields a page
// carrying an error notice instead of failing the batch.
func (c *Converter) ImagesToPDF(ctx context.Context, files []validation.File, opts ImagesOptions) (*PDFResult, error) {
	if err := validation.Files(files, c.limitsFor("image-convert"), validation.ImageKinds...); err != nil {
		return nil, err
	}
	if opts.PageSize == ([2]float64{}) {
		opts.PageSize = document.A4
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, c, "image-to-pdf", tracker, func(ctx context.Context) (*PDFResult, error) {
		tracker.Report(10)
		doc := document.NewEmpty()
		doc.SetMetadata(document.Metadata{Creator: Producer, Producer: Producer})
		tracker.Report(20)

		res := &PDFResult{}
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res.OriginalSize += f.Size()
			if err := c.placeImage(doc, f, opts.PageSize); err != nil {
				c.logger.Warn("failed to convert image",
					observability.String("file", f.Name), observability.Error("error", err))
				if perr := placeholderPage(doc, f.Name, opts.PageSize); perr != nil {
					return nil, pdferr.Processing("image-to-pdf", perr)
				}
				res.Outcomes = append(res.Outcomes, PageOutcome{Index: i, Err: pdferr.PageFailure("image-to-pdf", i, err)})
			} else {
				res.Outcomes = append(res.Outcomes, PageOutcome{Index: i})
			}
			tracker.Fraction(i+1, len(files), 20, 90)
		}

		data, err := c.save(ctx, "image-to-pdf", doc, tracker)
		if err != nil {
			return nil, err
		}
		res.Data = data
		res.ProcessedSize = int64(len(data))
		res.PageCount = doc.PageCount()
		res.FileName = "converted-images.pdf"
		if len(files) == 1 {
			res.FileName = stem(files[0].Name) + ".pdf"
		}
		return res, nil
	})
}

func (c *Converter) placeImage(doc *document.Document, f validation.File, size [2]float64) error {
	img, err := embed(doc, f)
	if err != nil {
		return err
	}
	if img.Width == 0 || img.Height == 0 {
		return fmt.Errorf("image %s has no pixels", f.Name)
	}
	w, h := fitInside(float64(img.Width), float64(img.Height), size[0]-2*imageMargin, size[1]-2*imageMargin)
	page := doc.NewPage(size[0], size[1])
	return page.Canvas().DrawImage(img, (size[0]-w)/2, (size[1]-h)/2, w, h, document.ImageOptions{}).Finish()
}

// embed stores JPEG data untouched and decodes everything else to pixels.
func embed(doc *document.Document, f validation.File) (*document.Image, error) {
	switch validation.DetectKind(f.Name, f.Data) {
	case validation.KindJPEG:
		return doc.EmbedJPEG(f.Data)
	case validation.KindPNG:
		return doc.EmbedPNG(f.Data)
	}
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return doc.EmbedImage(img)
}

// fitInside scales w×h to the largest size within maxW×maxH that keeps
// the aspect ratio.
func fitInside(w, h, maxW, maxH float64) (float64, float64) {
	if w/h > maxW/maxH {
		return maxW, maxW * h / w
	}
	return maxH * w / h, maxH
}

func placeholderPage(doc *document.Document, name string, size [2]float64) error {
	font, err := doc.EmbedStandardFont(fonts.Helvetica)
	if err != nil {
		return err
	}
	page := doc.NewPage(size[0], size[1])
	return page.Canvas().DrawText("Failed to load image: "+name, placeholderX, size[1]-placeholderDrop,
		document.TextOptions{Font: font, Size: placeholderSize, Color: placeholderColor}).Finish()
}
