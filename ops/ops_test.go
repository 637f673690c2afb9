package ops

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/governor"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/optimize"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/validation"
)

// fixture builds a PDF with one page per size, each labelled with its
// 1-based number.
func fixture(t *testing.T, name, title string, sizes ...[2]float64) validation.File {
	t.Helper()
	doc := document.NewEmpty()
	font, err := doc.EmbedStandardFont(fonts.Helvetica)
	require.NoError(t, err)
	for i, s := range sizes {
		p := doc.NewPage(s[0], s[1])
		label := "Page " + string(rune('1'+i%9))
		require.NoError(t, p.Canvas().DrawText(label, 10, 10, document.TextOptions{Font: font, Size: 10}).Finish())
	}
	doc.SetMetadata(document.Metadata{Title: title, Author: "Fixture Author", Subject: "Fixtures"})
	data, err := doc.Save(context.Background(), document.SaveOptions{Deterministic: true})
	require.NoError(t, err)
	return validation.File{Name: name, Data: data}
}

func pages(n int) [][2]float64 {
	out := make([][2]float64, n)
	for i := range out {
		out[i] = document.Letter
	}
	return out
}

func loadResult(t *testing.T, data []byte) *document.Document {
	t.Helper()
	doc, err := document.Load(context.Background(), data, document.LoadOptions{})
	require.NoError(t, err)
	return doc
}

// recorder collects progress values.
type recorder struct {
	mu     sync.Mutex
	values []int
}

func (r *recorder) fn(p int) {
	r.mu.Lock()
	r.values = append(r.values, p)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
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

func (r *recorder) assertNoCompletion(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.NotContains(t, r.values, 100)
}

func newEngine() *Engine {
	return New(WithGovernor(governor.New(governor.WithSampler(governor.Fixed(0)))), WithDeterministicOutput(true))
}

func TestMergeTwoDocuments(t *testing.T) {
	a := fixture(t, "a.pdf", "Doc A", [2]float64{100, 100})
	b := fixture(t, "b.pdf", "Doc B", [2]float64{200, 200})
	var rec recorder
	opts := DefaultMergeOptions()
	opts.Progress = rec.fn

	res, err := newEngine().Merge(context.Background(), []validation.File{a, b}, opts)
	require.NoError(t, err)
	assert.Equal(t, "merged.pdf", res.FileName)
	assert.Equal(t, 2, res.PagesMerged)
	assert.Equal(t, a.Size()+b.Size(), res.OriginalSize)
	assert.Equal(t, int64(len(res.Data)), res.ProcessedSize)

	out := loadResult(t, res.Data)
	require.Equal(t, 2, out.PageCount())
	p0, _ := out.Page(0)
	p1, _ := out.Page(1)
	w, h := p0.Size()
	assert.Equal(t, [2]float64{100, 100}, [2]float64{w, h})
	w, h = p1.Size()
	assert.Equal(t, [2]float64{200, 200}, [2]float64{w, h})

	md := out.Metadata()
	assert.Equal(t, "Doc A", md.Title)
	assert.Equal(t, "Fixture Author", md.Author)
	assert.Equal(t, Producer, md.Producer)
	assert.Equal(t, Producer, md.Creator)
	rec.assertComplete(t)
}

func TestMergeWithoutMetadata(t *testing.T) {
	a := fixture(t, "a.pdf", "Doc A", [2]float64{100, 100})
	b := fixture(t, "b.pdf", "Doc B", [2]float64{100, 100})
	res, err := newEngine().Merge(context.Background(), []validation.File{a, b}, MergeOptions{})
	require.NoError(t, err)
	assert.Empty(t, loadResult(t, res.Data).Metadata().Title)
}

func TestMergePageCountIsSum(t *testing.T) {
	files := []validation.File{
		fixture(t, "one.pdf", "", pages(1)...),
		fixture(t, "three.pdf", "", pages(3)...),
		fixture(t, "twelve.pdf", "", pages(12)...),
	}
	res, err := newEngine().Merge(context.Background(), files, DefaultMergeOptions())
	require.NoError(t, err)
	assert.Equal(t, 16, res.PagesMerged)
	assert.Equal(t, 16, loadResult(t, res.Data).PageCount())
}

func TestMergeSingleFileIsIdentity(t *testing.T) {
	a := fixture(t, "solo.pdf", "Solo", pages(2)...)
	var rec recorder
	res, err := newEngine().Merge(context.Background(), []validation.File{a}, MergeOptions{Progress: rec.fn})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a.Data, res.Data))
	assert.Equal(t, 2, res.PagesMerged)
	rec.assertComplete(t)
}

func TestMergeRejectsBadInput(t *testing.T) {
	e := newEngine()
	_, err := e.Merge(context.Background(), nil, DefaultMergeOptions())
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))

	notPDF := validation.File{Name: "notes.txt", Data: []byte("hello")}
	_, err = e.Merge(context.Background(), []validation.File{notPDF, notPDF}, DefaultMergeOptions())
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func TestMergeCorruptSourceNamesFile(t *testing.T) {
	good := fixture(t, "good.pdf", "", pages(1)...)
	bad := validation.File{Name: "broken.pdf", Data: []byte("%PDF-1.7\nthis is not a document")}
	var rec recorder
	_, err := newEngine().Merge(context.Background(), []validation.File{good, bad}, MergeOptions{Progress: rec.fn})
	require.Error(t, err)
	assert.Equal(t, pdferr.KindDocumentProcessing, pdferr.KindOf(err))
	var pe *pdferr.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "broken.pdf", pe.File)
	assert.Contains(t, err.Error(), "broken.pdf")
	rec.assertNoCompletion(t)
}

func TestMergeWithOrder(t *testing.T) {
	a := fixture(t, "a.pdf", "A", [2]float64{100, 100})
	b := fixture(t, "b.pdf", "B", [2]float64{300, 300})
	e := newEngine()
	res, err := e.MergeWithOrder(context.Background(), []validation.File{a, b}, []int{1, 0}, DefaultMergeOptions())
	require.NoError(t, err)
	out := loadResult(t, res.Data)
	p0, _ := out.Page(0)
	w, _ := p0.Size()
	assert.Equal(t, 300.0, w)
	assert.Equal(t, "B", out.Metadata().Title)

	_, err = e.MergeWithOrder(context.Background(), []validation.File{a, b}, []int{0, 0}, DefaultMergeOptions())
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
	_, err = e.MergeWithOrder(context.Background(), []validation.File{a, b}, []int{0}, DefaultMergeOptions())
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func TestMergeMemoryPressure(t *testing.T) {
	e := New(WithGovernor(governor.New(governor.WithSampler(governor.Fixed(0.95)))))
	a := fixture(t, "a.pdf", "", pages(1)...)
	var rec recorder
	_, err := e.Merge(context.Background(), []validation.File{a, a}, MergeOptions{Progress: rec.fn})
	assert.True(t, pdferr.Is(err, pdferr.KindMemoryExceeded))
	rec.assertNoCompletion(t)
}

func TestSplitFixedChunks(t *testing.T) {
	src := fixture(t, "report.pdf", "", pages(10)...)
	var rec recorder
	res, err := newEngine().Split(context.Background(), src, SplitOptions{Mode: FixedChunks{Size: 3}, Progress: rec.fn})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 4)

	var counts []int
	var names []string
	for _, o := range res.Outputs {
		counts = append(counts, loadResult(t, o.Data).PageCount())
		names = append(names, o.FileName)
	}
	assert.Equal(t, []int{3, 3, 3, 1}, counts)
	assert.Equal(t, []string{
		"report_pages_1-3.pdf", "report_pages_4-6.pdf", "report_pages_7-9.pdf", "report_pages_10-10.pdf",
	}, names)
	rec.assertComplete(t)
}

func TestSplitRangesAndPages(t *testing.T) {
	src := fixture(t, "doc.pdf", "", [2]float64{100, 100}, [2]float64{200, 200}, [2]float64{300, 300}, [2]float64{400, 400})
	e := newEngine()

	res, err := e.Split(context.Background(), src, SplitOptions{Mode: Ranges{Ranges: []PageRange{{2, 3}, {1, 1}}}})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	first := loadResult(t, res.Outputs[0].Data)
	require.Equal(t, 2, first.PageCount())
	p, _ := first.Page(0)
	w, _ := p.Size()
	assert.Equal(t, 200.0, w)
	assert.Equal(t, "doc_pages_1-1.pdf", res.Outputs[1].FileName)

	res, err = e.Split(context.Background(), src, SplitOptions{Mode: ExplicitPages{Pages: []int{4, 2, 4}}})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 3)
	assert.Equal(t, "doc_page_4.pdf", res.Outputs[0].FileName)
	assert.Equal(t, "doc_page_2.pdf", res.Outputs[1].FileName)
	assert.Equal(t, "doc_page_4_2.pdf", res.Outputs[2].FileName)
	for _, o := range res.Outputs {
		assert.Equal(t, 1, loadResult(t, o.Data).PageCount())
	}
}

func TestSplitBounds(t *testing.T) {
	src := fixture(t, "doc.pdf", "", pages(3)...)
	e := newEngine()
	for name, mode := range map[string]SplitMode{
		"range past end":   Ranges{Ranges: []PageRange{{1, 2}, {2, 4}}},
		"inverted range":   Ranges{Ranges: []PageRange{{3, 2}}},
		"page zero":        ExplicitPages{Pages: []int{0}},
		"page past end":    ExplicitPages{Pages: []int{1, 4}},
		"zero chunk size":  FixedChunks{},
		"no ranges at all": Ranges{},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := e.Split(context.Background(), src, SplitOptions{Mode: mode})
			assert.Nil(t, res)
			assert.True(t, pdferr.Is(err, pdferr.KindValidation), "got %v", err)
		})
	}

	_, err := e.Split(context.Background(), src, SplitOptions{Mode: Ranges{Ranges: []PageRange{{2, 4}}}})
	assert.EqualError(t, err, "Invalid page range: 2-4. Document has 3 pages.")
}

func TestRotateSelectedPage(t *testing.T) {
	src := fixture(t, "scan.pdf", "", pages(3)...)
	var rec recorder
	res, err := newEngine().Rotate(context.Background(), src, RotateOptions{Angle: 90, Pages: []int{1}, Progress: rec.fn})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PagesRotated)
	assert.Equal(t, "scan_rotated.pdf", res.FileName)

	out := loadResult(t, res.Data)
	var got []int
	for _, p := range out.Pages() {
		got = append(got, p.Rotation())
	}
	assert.Equal(t, []int{0, 90, 0}, got)
	rec.assertComplete(t)
}

func TestRotateIsAdditive(t *testing.T) {
	e := newEngine()
	src := fixture(t, "doc.pdf", "", pages(2)...)
	once, err := e.Rotate(context.Background(), src, RotateOptions{Angle: 270})
	require.NoError(t, err)
	twice, err := e.Rotate(context.Background(), validation.File{Name: "doc.pdf", Data: once.Data}, RotateOptions{Angle: 180})
	require.NoError(t, err)
	for _, p := range loadResult(t, twice.Data).Pages() {
		assert.Equal(t, (270+180)%360, p.Rotation())
	}
}

func TestRotateValidation(t *testing.T) {
	e := newEngine()
	src := fixture(t, "doc.pdf", "", pages(3)...)

	_, err := e.Rotate(context.Background(), src, RotateOptions{Angle: 45})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))

	var rec recorder
	res, err := e.Rotate(context.Background(), src, RotateOptions{Angle: 90, Pages: []int{0, 3}, Progress: rec.fn})
	assert.Nil(t, res)
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
	rec.assertNoCompletion(t)

	_, err = e.Rotate(context.Background(), src, RotateOptions{Angle: 90, Pages: []int{-1}})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func pngMark(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestWatermarkText(t *testing.T) {
	src := fixture(t, "contract.pdf", "", pages(3)...)
	opts := DefaultWatermarkOptions(TextMark{Text: "CONFIDENTIAL"})
	opts.Rotation = 45
	var rec recorder
	opts.Progress = rec.fn

	res, err := newEngine().Watermark(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PagesProcessed)
	assert.Len(t, res.Outcomes, 3)
	assert.Empty(t, res.Failed())
	assert.Equal(t, "contract_watermarked.pdf", res.FileName)

	out := loadResult(t, res.Data)
	for _, p := range out.Pages() {
		content, err := p.Content(context.Background())
		require.NoError(t, err)
		assert.Contains(t, string(content), "(CONFIDENTIAL) Tj")
	}
	rec.assertComplete(t)
}

func TestWatermarkImageOnSelectedPages(t *testing.T) {
	src := fixture(t, "doc.pdf", "", pages(4)...)
	opts := DefaultWatermarkOptions(ImageMark{Data: pngMark(t, 40, 20), Format: FormatPNG})
	opts.Position = BottomRight
	opts.Pages = []int{0, 2}

	res, err := newEngine().Watermark(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PagesProcessed)

	out := loadResult(t, res.Data)
	for i, p := range out.Pages() {
		content, err := p.Content(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i == 0 || i == 2, bytes.Contains(content, []byte(" Do")), "page %d", i)
	}
}

func TestWatermarkValidation(t *testing.T) {
	src := fixture(t, "doc.pdf", "", pages(2)...)
	e := newEngine()
	cases := map[string]WatermarkOptions{
		"empty text":    DefaultWatermarkOptions(TextMark{Text: "  "}),
		"no mark":       {Opacity: 0.5, Scale: 1},
		"opacity":       {Mark: TextMark{Text: "x"}, Opacity: 1.5, Scale: 1},
		"scale":         {Mark: TextMark{Text: "x"}, Opacity: 0.5, Scale: 3},
		"font size":     DefaultWatermarkOptions(TextMark{Text: "x", Size: 4}),
		"font":          DefaultWatermarkOptions(TextMark{Text: "x", Font: fonts.HelveticaBold}),
		"empty image":   DefaultWatermarkOptions(ImageMark{Format: FormatPNG}),
		"image format":  DefaultWatermarkOptions(ImageMark{Data: []byte{1}, Format: "gif"}),
		"page past end": {Mark: TextMark{Text: "x"}, Opacity: 0.5, Scale: 1, Pages: []int{2}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := e.Watermark(context.Background(), src, opts)
			assert.Nil(t, res)
			assert.True(t, pdferr.Is(err, pdferr.KindValidation), "got %v", err)
		})
	}
}

func TestPlacementStaysOnPage(t *testing.T) {
	letter := coords.Rect{URX: 612, URY: 792}
	offset := coords.Rect{LLX: 200, LLY: 200, URX: 812, URY: 992}
	for _, box := range []coords.Rect{letter, offset} {
		for _, pos := range []Position{Center, TopLeft, TopRight, BottomLeft, BottomRight} {
			x, y := placement(box, 100, 50, pos)
			assert.GreaterOrEqual(t, x, box.LLX, "%v %s", box, pos)
			assert.GreaterOrEqual(t, y, box.LLY, "%v %s", box, pos)
			assert.LessOrEqual(t, x+100, box.URX, "%v %s", box, pos)
			assert.LessOrEqual(t, y+50, box.URY, "%v %s", box, pos)
		}
	}
	x, y := placement(letter, 100, 50, TopRight)
	assert.Equal(t, [2]float64{492, 722}, [2]float64{x, y})
	x, y = placement(offset, 100, 50, BottomLeft)
	assert.Equal(t, [2]float64{220, 220}, [2]float64{x, y})

	// wider than the page: pinned to the left edge
	x, _ = placement(coords.Rect{URX: 100, URY: 100}, 300, 10, Center)
	assert.Equal(t, 0.0, x)
}

func mustPage(t *testing.T, doc *document.Document, i int) *document.Page {
	t.Helper()
	p, err := doc.Page(i)
	require.NoError(t, err)
	return p
}

// withMediaBoxes rewrites the media box of the given pages of src.
func withMediaBoxes(t *testing.T, src validation.File, boxes map[int][4]float64) validation.File {
	t.Helper()
	doc := loadResult(t, src.Data)
	for i, b := range boxes {
		mustPage(t, doc, i).Dict().Set("MediaBox", raw.Numbers(b[0], b[1], b[2], b[3]))
	}
	data, err := doc.Save(context.Background(), document.SaveOptions{Deterministic: true})
	require.NoError(t, err)
	return validation.File{Name: src.Name, Data: data}
}

func TestWatermarkHonoursMediaBoxOrigin(t *testing.T) {
	src := withMediaBoxes(t, fixture(t, "shifted.pdf", "", pages(1)...), map[int][4]float64{0: {200, 200, 812, 992}})
	opts := DefaultWatermarkOptions(TextMark{Text: "X", Size: 20})
	opts.Position = BottomLeft

	res, err := newEngine().Watermark(context.Background(), src, opts)
	require.NoError(t, err)
	require.Equal(t, 1, res.PagesProcessed)

	content, err := mustPage(t, loadResult(t, res.Data), 0).Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(content), "1 0 0 1 220 220 Tm")
}

func TestWatermarkRecordsFailedPages(t *testing.T) {
	src := withMediaBoxes(t, fixture(t, "mixed.pdf", "", pages(3)...), map[int][4]float64{1: {0, 0, 0, 0}})
	var rec recorder
	opts := DefaultWatermarkOptions(TextMark{Text: "DRAFT"})
	opts.Progress = rec.fn

	res, err := newEngine().Watermark(context.Background(), src, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PagesProcessed)
	require.Len(t, res.Outcomes, 3)
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].Index)
	assert.True(t, pdferr.Is(failed[0].Err, pdferr.KindDocumentProcessing), "got %v", failed[0].Err)
	rec.assertComplete(t)

	out := loadResult(t, res.Data)
	for i, p := range out.Pages() {
		content, err := p.Content(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i != 1, bytes.Contains(content, []byte("(DRAFT) Tj")), "page %d", i)
	}
}

func TestOperationTimeout(t *testing.T) {
	gov := governor.New(
		governor.WithSampler(governor.Fixed(0)),
		governor.WithBudget("watermark", governor.Budget{Timeout: time.Nanosecond, Start: 0.8, Midpoint: 0.9}),
	)
	e := New(WithGovernor(gov))
	var rec recorder
	opts := DefaultWatermarkOptions(TextMark{Text: "late"})
	opts.Progress = rec.fn

	res, err := e.Watermark(context.Background(), fixture(t, "slow.pdf", "", pages(20)...), opts)
	assert.Nil(t, res)
	require.True(t, pdferr.Is(err, pdferr.KindTimeout), "got %v", err)
	var perr *pdferr.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, time.Nanosecond, perr.Budget)

	seen := rec.len()
	assert.Never(t, func() bool { return rec.len() != seen }, 200*time.Millisecond, 10*time.Millisecond,
		"progress reported after the timeout")
	rec.assertNoCompletion(t)
}

func TestLenientLoadingRepairsDamagedInput(t *testing.T) {
	src := fixture(t, "damaged.pdf", "", pages(3)...)
	i := bytes.LastIndex(src.Data, []byte("startxref\n"))
	require.Positive(t, i)
	broken := validation.File{
		Name: src.Name,
		Data: append(append([]byte{}, src.Data[:i]...), []byte("startxref\n999999\n%%EOF\n")...),
	}

	_, err := newEngine().Rotate(context.Background(), broken, RotateOptions{Angle: 90})
	require.True(t, pdferr.Is(err, pdferr.KindDocumentLoad), "got %v", err)

	lenient := New(WithGovernor(governor.New(governor.WithSampler(governor.Fixed(0)))), WithLenientLoading(true))
	res, err := lenient.Rotate(context.Background(), broken, RotateOptions{Angle: 90})
	require.NoError(t, err)
	assert.Equal(t, 3, res.PagesRotated)
	for _, p := range loadResult(t, res.Data).Pages() {
		assert.Equal(t, 90, p.Rotation())
	}
}

func TestFitImage(t *testing.T) {
	w, h := fitImage(1000, 500, 600, 800)
	assert.InDelta(t, 480, w, 1e-9)
	assert.InDelta(t, 240, h, 1e-9)
	w, h = fitImage(50, 60, 600, 800)
	assert.Equal(t, [2]float64{50, 60}, [2]float64{w, h})
}

func TestCompress(t *testing.T) {
	src := fixture(t, "big.pdf", "Keep me?", pages(6)...)
	for _, q := range []Quality{QualityLow, QualityMedium, QualityHigh} {
		t.Run(string(q), func(t *testing.T) {
			var rec recorder
			res, err := newEngine().Compress(context.Background(), src, CompressOptions{Quality: q, Progress: rec.fn})
			require.NoError(t, err)
			assert.Equal(t, "big_compressed.pdf", res.FileName)
			assert.Equal(t, src.Size(), res.OriginalSize)
			assert.Equal(t, int64(len(res.Data)), res.CompressedSize)
			assert.GreaterOrEqual(t, res.Ratio, 0)
			assert.Contains(t, []Strategy{StrategyInPlace, StrategyReconstruction}, res.Strategy)
			assert.NotEmpty(t, res.Message)

			out := loadResult(t, res.Data)
			assert.Equal(t, 6, out.PageCount())
			if q == QualityHigh {
				assert.Equal(t, "Keep me?", out.Metadata().Title)
			} else {
				assert.Empty(t, out.Metadata().Title)
			}
			rec.assertComplete(t)
		})
	}
}

func TestReconstructSkipsPagesThatFailToCopy(t *testing.T) {
	orig := copyPage
	t.Cleanup(func() { copyPage = orig })
	copyPage = func(out, src *document.Document, i int) error {
		if i == 1 {
			return assert.AnError
		}
		return orig(out, src, i)
	}

	src := fixture(t, "three.pdf", "", pages(3)...)
	res, err := newEngine().reconstruct(context.Background(), src, QualityMedium)
	require.NoError(t, err)
	require.Len(t, res.skipped, 1)
	assert.Equal(t, 1, res.skipped[0].Index)
	assert.True(t, pdferr.Is(res.skipped[0].Err, pdferr.KindDocumentProcessing), "got %v", res.skipped[0].Err)
	assert.ErrorIs(t, res.skipped[0].Err, assert.AnError)

	out := loadResult(t, res.data)
	require.Equal(t, 2, out.PageCount())
	for i, want := range []string{"(Page 1) Tj", "(Page 3) Tj"} {
		content, err := mustPage(t, out, i).Content(context.Background())
		require.NoError(t, err)
		assert.Contains(t, string(content), want)
	}
}

func TestCompressValidation(t *testing.T) {
	src := fixture(t, "doc.pdf", "", pages(1)...)
	_, err := newEngine().Compress(context.Background(), src, CompressOptions{Quality: "ultra"})
	assert.True(t, pdferr.Is(err, pdferr.KindValidation))
}

func TestCompressBothStrategiesFail(t *testing.T) {
	bad := validation.File{Name: "bad.pdf", Data: []byte("%PDF-1.4\ngarbage")}
	_, err := newEngine().Compress(context.Background(), bad, CompressOptions{Quality: QualityLow})
	require.Error(t, err)
	assert.Equal(t, pdferr.KindDocumentProcessing, pdferr.KindOf(err))
	assert.Contains(t, err.Error(), "all compression methods failed")
}

func TestCompressionRatioNeverNegative(t *testing.T) {
	assert.Equal(t, 0, compressionRatio(100, 150))
	assert.Equal(t, 50, compressionRatio(100, 50))
	assert.Equal(t, 33, compressionRatio(3, 2))
	assert.Equal(t, 0, compressionRatio(0, 10))

	res := newEngine().compressResult(validation.File{Name: "x.pdf", Data: make([]byte, 1000)},
		&strategyResult{strategy: StrategyInPlace, data: make([]byte, 1200)})
	assert.Equal(t, 0, res.Ratio)
	assert.Equal(t, "File size: 1.17 KB (no significant compression achieved)", res.Message)
}

func TestCompressNotesImageHeavyDocuments(t *testing.T) {
	res := newEngine().compressResult(validation.File{Name: "x.pdf", Data: make([]byte, 1000)},
		&strategyResult{data: make([]byte, 900), report: optimize.Report{Recompressed: 1, SkippedImages: 4}})
	assert.Equal(t, 10, res.Ratio)
	assert.Equal(t, "Compressed from 1000 Bytes to 900 Bytes (10% reduction)", res.Message)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "4 embedded images")
}

func TestRotationAndPositionDescriptions(t *testing.T) {
	assert.Equal(t, "Rotate 180° (upside down)", RotationDescription(180))
	assert.Equal(t, "Top Right Corner", PositionDescription(TopRight))
	assert.Equal(t, "Center of Page", PositionDescription(Center))
}
