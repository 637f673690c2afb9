package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/extractor"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/governor"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/validation"
)

func newConverter(opts ...Option) *Converter {
	return New(append([]Option{WithGovernor(governor.New(governor.WithSampler(governor.Fixed(0))))}, opts...)...)
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngFile(t *testing.T, name string, w, h int, c color.Color) validation.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h, c)))
	return validation.File{Name: name, Data: buf.Bytes()}
}

func jpegFile(t *testing.T, name string, w, h int) validation.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h, color.RGBA{0, 128, 0, 255}), nil))
	return validation.File{Name: name, Data: buf.Bytes()}
}

// pdfFile builds a document whose pages each show the given line of text.
func pdfFile(t *testing.T, name string, lines ...string) validation.File {
	t.Helper()
	doc := document.NewEmpty()
	font, err := doc.EmbedStandardFont(fonts.Helvetica)
	require.NoError(t, err)
	for _, line := range lines {
		p := doc.NewPage(document.Letter[0], document.Letter[1])
		require.NoError(t, p.Canvas().DrawText(line, 72, 700, document.TextOptions{Font: font, Size: 12}).Finish())
	}
	data, err := doc.Save(context.Background(), document.SaveOptions{Deterministic: true})
	require.NoError(t, err)
	return validation.File{Name: name, Data: data}
}

func loadPDF(t *testing.T, data []byte) *document.Document {
	t.Helper()
	doc, err := document.Load(context.Background(), data, document.LoadOptions{})
	require.NoError(t, err)
	return doc
}

type recorder struct {
	mu     sync.Mutex
	values []int
}

func (r *recorder) fn(p int) {
	r.mu.Lock()
	r.values = append(r.values, p)
	r.mu.Unlock()
}

func (r *recorder) assertComplete(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.values)
	for i := 1; i < len(r.values); i++ {
		assert.GreaterOrEqual(t, r.values[i], r.values[i-1], "progress went backwards: %v", r.values)
	}
	assert.Equal(t, 100, r.values[len(r.values)-1])
}

func TestImagesToPDF(t *testing.T) {
	rec := &recorder{}
	files := []validation.File{
		pngFile(t, "wide.png", 400, 100, color.RGBA{255, 0, 0, 255}),
		{Name: "broken.gif", Data: []byte("GIF89a not really")},
		jpegFile(t, "photo.jpg", 100, 300),
	}
	res, err := newConverter().ImagesToPDF(context.Background(), files, ImagesOptions{Progress: rec.fn})
	require.NoError(t, err)
	rec.assertComplete(t)

	assert.Equal(t, "converted-images.pdf", res.FileName)
	assert.Equal(t, 3, res.PageCount)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, 1, res.Failed()[0].Index)

	doc := loadPDF(t, res.Data)
	require.Equal(t, 3, doc.PageCount())
	w, h := mustPage(t, doc, 0).Size()
	assert.InDelta(t, document.A4[0], w, 0.01)
	assert.InDelta(t, document.A4[1], h, 0.01)

	ex, err := extractor.New(doc.Raw(), doc.Filters())
	require.NoError(t, err)
	text, err := ex.PageText(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, text, "Failed to load image: broken.gif")
	assert.Equal(t, Producer, doc.Metadata().Producer)
}

func mustPage(t *testing.T, doc *document.Document, i int) *document.Page {
	t.Helper()
	p, err := doc.Page(i)
	require.NoError(t, err)
	return p
}

func TestImagesToPDFSingleNameAndValidation(t *testing.T) {
	c := newConverter()
	res, err := c.ImagesToPDF(context.Background(), []validation.File{jpegFile(t, "scan.jpeg", 20, 20)}, ImagesOptions{PageSize: document.Letter})
	require.NoError(t, err)
	assert.Equal(t, "scan.pdf", res.FileName)
	w, _ := mustPage(t, loadPDF(t, res.Data), 0).Size()
	assert.InDelta(t, document.Letter[0], w, 0.01)

	_, err = c.ImagesToPDF(context.Background(), []validation.File{pdfFile(t, "doc.pdf", "x")}, ImagesOptions{})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
	_, err = c.ImagesToPDF(context.Background(), nil, ImagesOptions{})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func TestFitInside(t *testing.T) {
	w, h := fitInside(1000, 500, 100, 100)
	assert.InDelta(t, 100, w, 1e-9)
	assert.InDelta(t, 50, h, 1e-9)
	w, h = fitInside(10, 20, 100, 100)
	assert.InDelta(t, 50, w, 1e-9)
	assert.InDelta(t, 100, h, 1e-9)
}

// shapesPDF draws a red square in the lower-left quarter of a 100pt page
// and a blue image in the upper-right quarter.
func shapesPDF(t *testing.T) validation.File {
	t.Helper()
	doc := document.NewEmpty()
	p := doc.NewPage(100, 100)
	img, err := doc.EmbedImage(solid(10, 10, color.RGBA{0, 0, 255, 255}))
	require.NoError(t, err)
	require.NoError(t, p.Canvas().
		DrawRectangle(0, 0, 50, 50, document.RectOptions{Fill: document.Red}).
		DrawImage(img, 50, 50, 50, 50, document.ImageOptions{}).
		Finish())
	data, err := doc.Save(context.Background(), document.SaveOptions{Deterministic: true})
	require.NoError(t, err)
	return validation.File{Name: "shapes.pdf", Data: data}
}

func TestPDFToImagesRendersContent(t *testing.T) {
	rec := &recorder{}
	res, err := newConverter().PDFToImages(context.Background(), shapesPDF(t),
		ToImagesOptions{Format: ImagePNG, Quality: QualityLow, Progress: rec.fn})
	require.NoError(t, err)
	rec.assertComplete(t)
	require.Len(t, res.Images, 1)

	out := res.Images[0]
	assert.Equal(t, "shapes.png", out.FileName)
	assert.False(t, out.Placeholder)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 100, out.Height)

	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	r, g, b, _ := img.At(25, 75).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b}, "lower-left is red")
	r, g, b, _ = img.At(75, 25).RGBA()
	assert.Less(t, r, uint32(0x2000))
	assert.Less(t, g, uint32(0x2000))
	assert.Greater(t, b, uint32(0xe000), "upper-right is blue")
	r, g, b, _ = img.At(75, 75).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b}, "lower-right is blank")
}

type failingRasterizer struct{ failOn int }

func (f failingRasterizer) Rasterize(ctx context.Context, doc *document.Document, idx int, scale float64) (image.Image, error) {
	if idx == f.failOn {
		return nil, errors.New("boom")
	}
	return PlaceholderRasterizer{}.Rasterize(ctx, doc, idx, scale)
}

func TestPDFToImagesFallsBackPerPage(t *testing.T) {
	c := newConverter(WithRasterizer(failingRasterizer{failOn: 1}))
	res, err := c.PDFToImages(context.Background(), pdfFile(t, "report.pdf", "one", "two", "three"), ToImagesOptions{})
	require.NoError(t, err)
	require.Len(t, res.Images, 3)

	names := []string{res.Images[0].FileName, res.Images[1].FileName, res.Images[2].FileName}
	assert.Equal(t, []string{"report_page_1.jpg", "report_page_2.jpg", "report_page_3.jpg"}, names)
	assert.False(t, res.Images[0].Placeholder)
	assert.True(t, res.Images[1].Placeholder)
	require.Len(t, res.Outcomes, 3)
	assert.Error(t, res.Outcomes[1].Err)
	assert.NoError(t, res.Outcomes[2].Err)

	// medium quality renders at 1.5 pixels per point
	assert.Equal(t, 918, res.Images[1].Width)
	assert.Equal(t, 1188, res.Images[1].Height)
	_, err = jpeg.Decode(bytes.NewReader(res.Images[1].Data))
	require.NoError(t, err)
}

func TestPDFToImagesValidation(t *testing.T) {
	c := newConverter()
	file := pdfFile(t, "a.pdf", "x")
	_, err := c.PDFToImages(context.Background(), file, ToImagesOptions{Format: "gif"})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
	_, err = c.PDFToImages(context.Background(), file, ToImagesOptions{Quality: "ultra"})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
	_, err = c.PDFToImages(context.Background(), pngFile(t, "a.png", 2, 2, color.Black), ToImagesOptions{})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func TestDeviceMatrixRotation(t *testing.T) {
	box := coords.Rect{LLX: 0, LLY: 0, URX: 200, URY: 100}
	tests := []struct {
		rotation   int
		w, h       int
		lowerLeft  coords.Point
		upperRight coords.Point
	}{
		{0, 200, 100, coords.Point{X: 0, Y: 100}, coords.Point{X: 200, Y: 0}},
		{90, 100, 200, coords.Point{X: 0, Y: 0}, coords.Point{X: 100, Y: 200}},
		{180, 200, 100, coords.Point{X: 200, Y: 0}, coords.Point{X: 0, Y: 100}},
		{270, 100, 200, coords.Point{X: 100, Y: 200}, coords.Point{X: 0, Y: 0}},
	}
	for _, tt := range tests {
		m, w, h := deviceMatrix(box, tt.rotation, 1)
		assert.Equal(t, tt.w, w, "rotation %d", tt.rotation)
		assert.Equal(t, tt.h, h, "rotation %d", tt.rotation)
		ll := m.Transform(coords.Point{X: 0, Y: 0})
		ur := m.Transform(coords.Point{X: 200, Y: 100})
		assert.InDelta(t, tt.lowerLeft.X, ll.X, 1e-9, "rotation %d", tt.rotation)
		assert.InDelta(t, tt.lowerLeft.Y, ll.Y, 1e-9, "rotation %d", tt.rotation)
		assert.InDelta(t, tt.upperRight.X, ur.X, 1e-9, "rotation %d", tt.rotation)
		assert.InDelta(t, tt.upperRight.Y, ur.Y, 1e-9, "rotation %d", tt.rotation)
	}
}

func TestPlaceholderRasterizer(t *testing.T) {
	file := pdfFile(t, "a.pdf", "x")
	doc := loadPDF(t, file.Data)
	img, err := PlaceholderRasterizer{}.Rasterize(context.Background(), doc, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1224, 1584), img.Bounds())
	r, g, b, _ := img.At(1, 1).RGBA()
	assert.Equal(t, [3]uint32{0xf3f3, 0xf4f4, 0xf6f6}, [3]uint32{r, g, b})

	_, err = PlaceholderRasterizer{}.Rasterize(context.Background(), doc, 5, 1)
	assert.Error(t, err)
}

func TestPDFToText(t *testing.T) {
	file := pdfFile(t, "notes.pdf", "Hello {world}", "Second page")
	c := newConverter()

	rec := &recorder{}
	res, err := c.PDFToText(context.Background(), file, ToTextOptions{Progress: rec.fn})
	require.NoError(t, err)
	rec.assertComplete(t)
	assert.Equal(t, "notes.rtf", res.FileName)
	assert.Equal(t, TextRTF, res.Format)
	rtf := string(res.Data)
	assert.True(t, strings.HasPrefix(rtf, `{\rtf1\ansi`))
	assert.Contains(t, rtf, `Hello \{world\}\par`)
	assert.Contains(t, rtf, `\page Second page\par`)
	assert.True(t, strings.HasSuffix(rtf, "}"))

	res, err = c.PDFToText(context.Background(), file, ToTextOptions{Format: TextPlain})
	require.NoError(t, err)
	assert.Equal(t, "Hello {world}\n\nSecond page", string(res.Data))
	assert.Equal(t, "notes.txt", res.FileName)

	res, err = c.PDFToText(context.Background(), file, ToTextOptions{Format: TextHTML})
	require.NoError(t, err)
	out := string(res.Data)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, `<section id="page-1"><p>Hello {world}</p></section>`)
	assert.Contains(t, out, `<section id="page-2"><p>Second page</p></section>`)

	_, err = c.PDFToText(context.Background(), file, ToTextOptions{Format: "doc"})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func TestWriteRTFText(t *testing.T) {
	var b bytes.Buffer
	writeRTFText(&b, "a{b}\\c\té€😀")
	assert.Equal(t, `a\{b\}\\c\tab \u233?\u8364?\u-10179?\u-8704?`, b.String())
}

func TestHTMLDocumentEscapes(t *testing.T) {
	data, err := htmlDocument("t", []string{"a < b\nc\n\nnext"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "<p>a &lt; b<br/>c</p><p>next</p>")
}

func TestTextToPDF(t *testing.T) {
	c := newConverter()
	rec := &recorder{}
	md := validation.File{Name: "readme.md", Data: []byte("# Title\n\nBody text here.\n\n- first\n- second\n")}
	res, err := c.TextToPDF(context.Background(), md, FromTextOptions{Progress: rec.fn})
	require.NoError(t, err)
	rec.assertComplete(t)
	assert.Equal(t, "readme.pdf", res.FileName)
	assert.Equal(t, 1, res.PageCount)

	doc := loadPDF(t, res.Data)
	assert.Equal(t, "readme", doc.Metadata().Title)
	ex, err := extractor.New(doc.Raw(), doc.Filters())
	require.NoError(t, err)
	text, err := ex.PageText(context.Background(), 0)
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Body text here.")
	assert.Contains(t, text, "second")
	assert.NotContains(t, text, "#")

	long := validation.File{Name: "long.txt", Data: []byte(strings.Repeat("line\n", 120))}
	res, err = c.TextToPDF(context.Background(), long, FromTextOptions{FontSize: 24})
	require.NoError(t, err)
	assert.Greater(t, res.PageCount, 1)

	_, err = c.TextToPDF(context.Background(), long, FromTextOptions{FontSize: 200})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
	_, err = c.TextToPDF(context.Background(), long, FromTextOptions{Font: "Comic"})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func docx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><w:document><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestWordText(t *testing.T) {
	data := docx(t, `<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> Word &amp; co</w:t></w:r></w:p><w:p><w:r><w:t>Line two</w:t></w:r></w:p>`)
	text, err := wordText(data)
	require.NoError(t, err)
	assert.Equal(t, "Hello Word & co\nLine two\n", text)

	_, err = wordText(docx(t, `<w:p></w:p>`))
	assert.ErrorIs(t, err, errNoWordText)

	legacy := append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0, 1, 2}, []byte("Plain legacy text\x00\x01\x02ok")...)
	text, err = wordText(legacy)
	require.NoError(t, err)
	assert.Equal(t, "Plain legacy text\n", text)
}

func TestTextToPDFWordInput(t *testing.T) {
	file := validation.File{Name: "letter.docx", Data: docx(t, `<w:p><w:r><w:t>Dear reader</w:t></w:r></w:p>`)}
	res, err := newConverter().TextToPDF(context.Background(), file, FromTextOptions{})
	require.NoError(t, err)
	assert.Equal(t, "letter.pdf", res.FileName)

	doc := loadPDF(t, res.Data)
	ex, err := extractor.New(doc.Raw(), doc.Filters())
	require.NoError(t, err)
	text, err := ex.PageText(context.Background(), 0)
	require.NoError(t, err)
	assert.Contains(t, text, "Dear reader")
}
