package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/ir/raw"
)

const cmapData = `/CIDInit /ProcSet findresource begin
begincmap
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0001> <0048>
<0002> <0069>
endbfchar
1 beginbfrange
<0010> <0012> <0061>
endbfrange
endcmap`

func fixture(t *testing.T) *raw.Document {
	t.Helper()
	doc := raw.NewDocument()
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pagesRef := doc.Add(pages)

	helv := raw.Dict()
	helv.Set("Type", raw.NameLiteral("Font"))
	helv.Set("Subtype", raw.NameLiteral("Type1"))
	helv.Set("BaseFont", raw.NameLiteral("Helvetica"))

	desc := raw.Dict()
	desc.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	desc.Set("W", raw.NewArray(raw.NumberInt(1), raw.NewArray(raw.NumberInt(700), raw.NumberInt(300))))
	cid := raw.Dict()
	cid.Set("Subtype", raw.NameLiteral("Type0"))
	cid.Set("BaseFont", raw.NameLiteral("ABCDEF+Custom"))
	cid.Set("DescendantFonts", raw.NewArray(doc.Add(desc)))
	cid.Set("ToUnicode", doc.Add(raw.NewStream(nil, []byte(cmapData))))

	fontsDict := raw.Dict()
	fontsDict.Set("F1", doc.Add(helv))
	fontsDict.Set("F2", doc.Add(cid))
	res := raw.Dict()
	res.Set("Font", fontsDict)
	// resources inherited from the page tree
	pages.Set("Resources", res)

	contents := []string{
		"BT /F1 12 Tf 72 720 Td (Hello) Tj ( World) Tj 0 -14 Td (Line two) Tj 0 -14 Td [(A) -500 (B)] TJ ET",
		"BT /F2 10 Tf 100 100 Td <00010002> Tj 0 -20 Td <00100011 0012> Tj ET",
	}
	kids := raw.NewArray()
	var pageRefs []raw.RefObj
	for _, c := range contents {
		page := raw.Dict()
		page.Set("Type", raw.NameLiteral("Page"))
		page.Set("Parent", pagesRef)
		page.Set("Contents", doc.Add(raw.NewStream(nil, []byte(c))))
		ref := doc.Add(page)
		pageRefs = append(pageRefs, ref)
		kids.Append(ref)
	}
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(int64(len(contents))))

	item := raw.Dict()
	item.Set("Title", raw.Str([]byte("Second")))
	item.Set("Dest", raw.NewArray(pageRefs[1], raw.NameLiteral("Fit")))
	itemRef := doc.Add(item)
	outlines := raw.Dict()
	outlines.Set("First", itemRef)

	label := raw.Dict()
	label.Set("P", raw.Str([]byte("A-")))
	labels := raw.Dict()
	labels.Set("Nums", raw.NewArray(raw.NumberInt(0), label))

	cat := raw.Dict()
	cat.Set("Type", raw.NameLiteral("Catalog"))
	cat.Set("Pages", pagesRef)
	cat.Set("Outlines", doc.Add(outlines))
	cat.Set("PageLabels", labels)
	cat.Set("Lang", raw.Str([]byte("en-US")))
	doc.Trailer.Set("Root", doc.Add(cat))
	return doc
}

func TestExtractText(t *testing.T) {
	ext, err := New(fixture(t), nil)
	require.NoError(t, err)
	require.Equal(t, 2, ext.PageCount())

	texts, errs := ext.ExtractText(context.Background())
	require.Empty(t, errs)
	require.Len(t, texts, 2)
	assert.Equal(t, "Hello World\nLine two\nA B", texts[0].Content)
	assert.Equal(t, "Hi\nabc", texts[1].Content)
	assert.Equal(t, "A-1", texts[0].Label)
	assert.Equal(t, "A-2", texts[1].Label)
}

func TestPageRuns(t *testing.T) {
	ext, err := New(fixture(t), nil)
	require.NoError(t, err)
	runs, err := ext.PageRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 5)

	first := runs[0]
	assert.Equal(t, "Hello", first.Text)
	assert.Equal(t, "Helvetica", first.BaseFont)
	assert.Equal(t, "F1", first.Font)
	assert.InDelta(t, 12, first.Size(), 1e-9)
	assert.InDelta(t, 72, first.Origin().X, 1e-9)
	assert.InDelta(t, 720, first.Origin().Y, 1e-9)

	// the second run starts where "Hello" ended
	assert.Greater(t, runs[1].Origin().X, first.Origin().X)
	assert.InDelta(t, 706, runs[2].Origin().Y, 1e-9)
}

func TestPageTextOutOfRange(t *testing.T) {
	ext, err := New(fixture(t), nil)
	require.NoError(t, err)
	_, err = ext.PageText(context.Background(), 5)
	assert.Error(t, err)
}

func TestBookmarksAndMetadata(t *testing.T) {
	ext, err := New(fixture(t), nil)
	require.NoError(t, err)

	toc := ext.ExtractTableOfContents()
	require.Len(t, toc, 1)
	assert.Equal(t, TOCEntry{Title: "Second", Page: 1, Label: "A-2", Depth: 0}, toc[0])

	meta := ext.ExtractMetadata()
	assert.Equal(t, "en-US", meta.Lang)
	assert.Equal(t, 2, meta.PageCount)

	fonts := ext.ExtractFonts()
	require.Len(t, fonts, 2)
	assert.Equal(t, "ABCDEF+Custom", fonts[0].BaseFont)
	assert.True(t, fonts[0].HasToUnicode)
	assert.Equal(t, []int{0, 1}, fonts[1].Pages)
}

func TestToUnicodeCMap(t *testing.T) {
	m := parseToUnicodeCMap([]byte(cmapData))
	assert.Equal(t, []int{2}, m.lengths)
	text, n, ok := m.lookup([]byte{0x00, 0x11})
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, "b", text)
}

func TestOutlineCycleTerminates(t *testing.T) {
	doc := fixture(t)
	cat, _ := doc.Catalog()
	outlines, _ := doc.ResolveDict(cat.KV["Outlines"])
	first, _ := doc.ResolveDict(outlines.KV["First"])
	first.Set("Next", outlines.KV["First"])

	ext, err := New(doc, nil)
	require.NoError(t, err)
	assert.Len(t, ext.ExtractBookmarks(), 1)
}
