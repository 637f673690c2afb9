package document

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/extractor"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ir/raw"
)

func buildDoc(t *testing.T, sizes ...[2]float64) []byte {
	t.Helper()
	doc := NewEmpty()
	font, err := doc.EmbedStandardFont(fonts.Helvetica)
	require.NoError(t, err)
	for i, s := range sizes {
		p := doc.NewPage(s[0], s[1])
		require.NoError(t, p.Canvas().DrawText("Page "+string(rune('A'+i)), 10, 10, TextOptions{Font: font, Size: 12}).Finish())
	}
	doc.SetMetadata(Metadata{Title: "Fixture", Author: "Tests", CreationDate: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)})
	data, err := doc.Save(context.Background(), SaveOptions{Deterministic: true})
	require.NoError(t, err)
	return data
}

func load(t *testing.T, data []byte) *Document {
	t.Helper()
	doc, err := Load(context.Background(), data, LoadOptions{})
	require.NoError(t, err)
	return doc
}

func pageText(t *testing.T, doc *Document, i int) string {
	t.Helper()
	ex, err := extractor.New(doc.Raw(), nil)
	require.NoError(t, err)
	txt, err := ex.PageText(context.Background(), i)
	require.NoError(t, err)
	return txt
}

func TestRoundTripPreservesPagesAndRotation(t *testing.T) {
	doc := load(t, buildDoc(t, [2]float64{100, 100}, [2]float64{200, 300}, Letter))
	require.Equal(t, 3, doc.PageCount())
	p1, err := doc.Page(1)
	require.NoError(t, err)
	require.NoError(t, p1.SetRotation(90))

	data, err := doc.Save(context.Background(), SaveOptions{})
	require.NoError(t, err)
	again := load(t, data)

	var got [][3]float64
	for _, p := range again.Pages() {
		w, h := p.Size()
		got = append(got, [3]float64{w, h, float64(p.Rotation())})
	}
	want := [][3]float64{{100, 100, 0}, {200, 300, 90}, {612, 792, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pages mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Page B", pageText(t, again, 1))
}

func TestMetadataRoundTrip(t *testing.T) {
	doc := load(t, buildDoc(t, Letter))
	md := doc.Metadata()
	assert.Equal(t, "Fixture", md.Title)
	assert.Equal(t, "Tests", md.Author)
	assert.True(t, md.CreationDate.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	doc.UpdateMetadata(func(m *Metadata) { m.Title = "Überschrift" })
	data, err := doc.Save(context.Background(), SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Überschrift", load(t, data).Metadata().Title)
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load(context.Background(), []byte("not a pdf"), LoadOptions{})
	assert.Error(t, err)
}

func TestLoadLenientRepairsBrokenXRef(t *testing.T) {
	data := buildDoc(t, [2]float64{100, 100}, Letter)
	i := bytes.LastIndex(data, []byte("startxref\n"))
	require.Positive(t, i)
	broken := append(append([]byte{}, data[:i]...), []byte("startxref\n999999\n%%EOF\n")...)

	_, err := Load(context.Background(), broken, LoadOptions{})
	require.Error(t, err)

	doc, err := Load(context.Background(), broken, LoadOptions{Lenient: true})
	require.NoError(t, err)
	assert.True(t, doc.Raw().Repaired)
	require.Equal(t, 2, doc.PageCount())
	w, h := mustPageSize(t, doc, 1)
	assert.Equal(t, Letter, [2]float64{w, h})
	assert.Equal(t, "Page B", pageText(t, doc, 1))
}

func mustPageSize(t *testing.T, doc *Document, i int) (float64, float64) {
	t.Helper()
	p, err := doc.Page(i)
	require.NoError(t, err)
	return p.Size()
}

func TestLoadFlattensInheritedAttributes(t *testing.T) {
	rd := raw.NewDocument()
	font := raw.Dict()
	font.Set("Type", raw.NameLiteral("Font"))
	font.Set("Subtype", raw.NameLiteral("Type1"))
	font.Set("BaseFont", raw.NameLiteral("Helvetica"))
	fontsDict := raw.Dict()
	fontsDict.Set("F1", rd.Add(font))
	res := raw.Dict()
	res.Set("Font", fontsDict)

	root := raw.Dict()
	rootRef := rd.Add(root)
	mid := raw.Dict()
	midRef := rd.Add(mid)
	leaf := raw.Dict()
	leaf.Set("Type", raw.NameLiteral("Page"))
	leaf.Set("Parent", midRef)
	leaf.Set("Contents", rd.Add(raw.NewStream(nil, []byte("BT /F1 12 Tf 10 10 Td (inherited) Tj ET"))))
	leafRef := rd.Add(leaf)

	mid.Set("Type", raw.NameLiteral("Pages"))
	mid.Set("Parent", rootRef)
	mid.Set("Kids", raw.NewArray(leafRef))
	mid.Set("Count", raw.NumberInt(1))
	mid.Set("Rotate", raw.NumberInt(180))
	root.Set("Type", raw.NameLiteral("Pages"))
	root.Set("Kids", raw.NewArray(midRef))
	root.Set("Count", raw.NumberInt(1))
	root.Set("MediaBox", raw.Numbers(0, 0, 300, 400))
	root.Set("Resources", res)
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", rootRef)
	rd.Trailer.Set("Root", rd.Add(catalog))

	doc := newDocument(rd, nil, nil)
	doc.filters = NewEmpty().filters
	require.NoError(t, doc.indexPages())
	require.Equal(t, 1, doc.PageCount())
	p, _ := doc.Page(0)
	w, h := p.Size()
	assert.Equal(t, [2]float64{300, 400}, [2]float64{w, h})
	assert.Equal(t, 180, p.Rotation())
	_, stillThere := rd.Objects[midRef.R]
	assert.False(t, stillThere, "intermediate page tree nodes are removed")

	content, err := p.Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(content), "(inherited) Tj")
}

func TestRotationNormalization(t *testing.T) {
	doc := NewEmpty()
	p := doc.NewPage(10, 10)
	require.NoError(t, p.Rotate(270))
	require.NoError(t, p.Rotate(180))
	assert.Equal(t, 90, p.Rotation())
	require.NoError(t, p.SetRotation(-90))
	assert.Equal(t, 270, p.Rotation())
	require.NoError(t, p.Rotate(90))
	assert.Equal(t, 0, p.Rotation())
	_, has := p.Dict().Get("Rotate")
	assert.False(t, has)
	assert.Error(t, p.SetRotation(45))
}

func TestCopyPagesKeepsSourceIntact(t *testing.T) {
	srcData := buildDoc(t, [2]float64{100, 100}, [2]float64{200, 200})
	src := load(t, srcData)
	srcP0, _ := src.Page(0)
	require.NoError(t, srcP0.SetRotation(180))
	before := len(src.Raw().Objects)

	dst := NewEmpty()
	pages, err := dst.CopyPages(src, []int{1, 0, 1})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for _, p := range pages {
		require.NoError(t, dst.AddPage(p))
	}
	assert.Equal(t, before, len(src.Raw().Objects))
	assert.NotSame(t, pages[0], pages[2])
	assert.NotEqual(t, pages[0].Ref(), pages[2].Ref())

	data, err := dst.Save(context.Background(), SaveOptions{})
	require.NoError(t, err)
	out := load(t, data)
	require.Equal(t, 3, out.PageCount())
	sizes := []float64{}
	for _, p := range out.Pages() {
		w, _ := p.Size()
		sizes = append(sizes, w)
	}
	assert.Equal(t, []float64{200, 100, 200}, sizes)
	p1, _ := out.Page(1)
	assert.Equal(t, 180, p1.Rotation())
	assert.Equal(t, "Page A", pageText(t, out, 1))
	assert.Equal(t, "Page B", pageText(t, out, 2))
}

func TestCopyPagesValidatesIndices(t *testing.T) {
	src := load(t, buildDoc(t, Letter))
	_, err := NewEmpty().CopyPages(src, []int{0, 1})
	assert.ErrorIs(t, err, ErrPageRange)
}

func TestCopyPagesRejectsNonDictionaryPage(t *testing.T) {
	src := load(t, buildDoc(t, Letter, Letter))
	p1, _ := src.Page(1)
	src.Raw().Objects[p1.Ref()] = raw.NullObj{}

	dst := NewEmpty()
	_, err := dst.CopyPages(src, []int{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a dictionary")

	pages, err := dst.CopyPages(src, []int{0})
	require.NoError(t, err)
	require.NoError(t, dst.AddPage(pages[0]))
	assert.Equal(t, 1, dst.PageCount())
}

func TestPageOwnership(t *testing.T) {
	a, b := NewEmpty(), NewEmpty()
	p := a.NewPage(10, 10)
	assert.ErrorIs(t, b.AddPage(p), ErrForeignPage)
	assert.Error(t, a.AddPage(p), "a page cannot appear twice")
	_, err := a.Page(1)
	assert.ErrorIs(t, err, ErrPageRange)
	q := a.NewPage(20, 20)
	require.NoError(t, a.RemovePage(0))
	require.Equal(t, 1, a.PageCount())
	first, _ := a.Page(0)
	assert.Same(t, q, first)
}

func TestEmbedResourcesOncePerDocument(t *testing.T) {
	doc := NewEmpty()
	f1, err := doc.EmbedStandardFont(fonts.TimesRoman)
	require.NoError(t, err)
	f2, err := doc.EmbedStandardFont(fonts.TimesRoman)
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	_, err = doc.EmbedStandardFont("Comic-Sans")
	assert.Error(t, err)
	assert.Same(t, doc.Opacity(0.5), doc.Opacity(0.5000001))

	p1 := doc.NewPage(100, 100)
	p2 := doc.NewPage(100, 100)
	for _, p := range []*Page{p1, p2} {
		require.NoError(t, p.Canvas().DrawText("x", 1, 1, TextOptions{Font: f1, Opacity: 0.5}).Finish())
	}
	for _, p := range []*Page{p1, p2} {
		fontsDict := p.Resources().KV["Font"].(*raw.DictObj)
		assert.Equal(t, raw.RefObj(f1.ref), fontsDict.KV[f1.name])
	}
}

func TestEmbedImages(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 10})

	var pngBuf, jpgBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	require.NoError(t, jpeg.Encode(&jpgBuf, img, nil))

	doc := NewEmpty()
	pi, err := doc.EmbedPNG(pngBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, [2]int{4, 3}, [2]int{pi.Width, pi.Height})
	st := doc.Raw().Objects[pi.ref.R].(*raw.StreamObj)
	_, hasMask := st.Dict.Get("SMask")
	assert.True(t, hasMask)

	ji, err := doc.EmbedJPEG(jpgBuf.Bytes())
	require.NoError(t, err)
	js := doc.Raw().Objects[ji.ref.R].(*raw.StreamObj)
	filter, _ := js.Dict.Name("Filter")
	assert.Equal(t, "DCTDecode", filter)
	assert.Equal(t, jpgBuf.Bytes(), js.Data)

	_, err = doc.EmbedJPEG([]byte("nope"))
	assert.Error(t, err)

	page := doc.NewPage(200, 200)
	require.NoError(t, page.Canvas().DrawImage(ji, 10, 10, 40, 30, ImageOptions{Rotate: 45}).Finish())
	content, err := page.Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(content), " Do")
}

func TestAppendContentIsolatesExistingState(t *testing.T) {
	doc := NewEmpty()
	p := doc.NewPage(100, 100)
	require.NoError(t, p.Canvas().DrawRectangle(0, 0, 10, 10, RectOptions{Fill: Red}).Finish())
	require.NoError(t, p.Canvas().DrawRectangle(0, 0, 5, 5, RectOptions{Fill: Gray}).Finish())
	arr, ok := p.Dict().KV["Contents"].(*raw.ArrayObj)
	require.True(t, ok)
	assert.Equal(t, 4, arr.Len())
	content, err := p.Content(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(content, []byte("q\n")))
}

func TestSaveOptions(t *testing.T) {
	doc := load(t, buildDoc(t, Letter, Letter))
	var ticks int
	data, err := doc.Save(context.Background(), SaveOptions{UseObjectStreams: true, ObjectsPerTick: 1, Progress: func(int, int) { ticks++ }})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.7")))
	assert.Contains(t, string(data), "/ObjStm")
	assert.Greater(t, ticks, 1)
	assert.Equal(t, 2, load(t, data).PageCount())
}
