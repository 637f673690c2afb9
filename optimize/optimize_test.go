package optimize

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
)

// docWithDuplicates has two pages sharing identical but separately stored
// font dictionaries and content streams, plus an orphan object.
func docWithDuplicates() *raw.Document {
	doc := raw.NewDocument()
	font := func() *raw.DictObj {
		d := raw.Dict()
		d.Set("Type", raw.NameLiteral("Font"))
		d.Set("Subtype", raw.NameLiteral("Type1"))
		d.Set("BaseFont", raw.NameLiteral("Helvetica"))
		return d
	}
	content := bytes.Repeat([]byte("BT /F1 12 Tf 72 720 Td (Hello) Tj ET\n"), 20)

	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catRef := doc.Add(catalog)
	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pagesRef := doc.Add(pages)
	catalog.Set("Pages", pagesRef)
	kids := raw.NewArray()
	for i := 0; i < 2; i++ {
		fontRef := doc.Add(font())
		contentRef := doc.Add(raw.NewStream(nil, append([]byte(nil), content...)))
		fonts := raw.Dict()
		fonts.Set("F1", fontRef)
		res := raw.Dict()
		res.Set("Font", fonts)
		page := raw.Dict()
		page.Set("Type", raw.NameLiteral("Page"))
		page.Set("Parent", pagesRef)
		page.Set("MediaBox", raw.Numbers(0, 0, 612, 792))
		page.Set("Resources", res)
		page.Set("Contents", contentRef)
		page.Set("Thumb", doc.Add(raw.NewStream(nil, []byte("thumb"))))
		kids.Append(doc.Add(page))
	}
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(2))
	catalog.Set("Metadata", doc.Add(raw.NewStream(nil, []byte("<x:xmpmeta/>"))))
	doc.Add(raw.Str([]byte("orphan")))
	doc.Trailer.Set("Root", catRef)
	return doc
}

func TestOptimizeCombinesAndPrunes(t *testing.T) {
	doc := docWithDuplicates()
	before := len(doc.Objects)

	rep, err := New(Config{CombineDuplicates: true, PruneUnreachable: true}).Optimize(context.Background(), doc)
	require.NoError(t, err)

	// two thumbnails, one font and one content stream merge
	assert.Equal(t, 3, rep.Combined)
	assert.Equal(t, 1, rep.Pruned)
	assert.Equal(t, before-4, len(doc.Objects))

	cat, ok := doc.Catalog()
	require.True(t, ok)
	kids, ok := doc.ResolveArray(doc.Lookup(cat, "Pages").(*raw.DictObj).KV["Kids"])
	require.True(t, ok)
	require.Equal(t, 2, kids.Len())
	p0, _ := doc.ResolveDict(kids.Items[0])
	p1, _ := doc.ResolveDict(kids.Items[1])
	assert.NotSame(t, p0, p1, "page dictionaries are never combined")
	assert.Equal(t, p0.KV["Contents"], p1.KV["Contents"])
}

func TestOptimizeStripMetadata(t *testing.T) {
	doc := docWithDuplicates()
	rep, err := New(Config{StripMetadata: true, PruneUnreachable: true}).Optimize(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Stripped)
	// the XMP stream and both thumbnails become unreachable, plus the orphan
	assert.Equal(t, 4, rep.Pruned)
	cat, _ := doc.Catalog()
	_, has := cat.Get("Metadata")
	assert.False(t, has)
}

func TestCompressStreams(t *testing.T) {
	doc := docWithDuplicates()
	jpeg := raw.Dict()
	jpeg.Set("Filter", raw.NameLiteral("DCTDecode"))
	jpegRef := doc.Add(raw.NewStream(jpeg, bytes.Repeat([]byte{0xFF}, 200)))

	rep, err := New(Config{CompressStreams: true, CompressionLevel: 9}).Optimize(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Recompressed, "only the repetitive content streams shrink")
	assert.Equal(t, 1, rep.SkippedImages)

	st := doc.Objects[jpegRef.R].(*raw.StreamObj)
	assert.Len(t, st.Data, 200)

	for _, obj := range doc.Objects {
		s, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if name, _ := s.Dict.Name("Filter"); name != "FlateDecode" {
			continue
		}
		plain, err := filters.Standard().DecodeStream(context.Background(), s)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(plain, []byte("BT /F1 12 Tf")))
	}
}

func TestOptimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{CombineDuplicates: true}).Optimize(ctx, docWithDuplicates())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashIgnoresLengthAndKeyOrder(t *testing.T) {
	a := raw.Dict()
	a.Set("Length", raw.NumberInt(3))
	a.Set("A", raw.NameLiteral("x"))
	b := raw.Dict()
	b.Set("A", raw.NameLiteral("x"))
	assert.Equal(t, hashObject(raw.NewStream(a, []byte("abc"))), hashObject(raw.NewStream(b, []byte("abc"))))
	assert.NotEqual(t, hashObject(raw.NumberInt(1)), hashObject(raw.NumberFloat(1)))
	assert.NotEqual(t, hashObject(raw.Str([]byte("ab"))), hashObject(raw.NameLiteral("ab")))
}
