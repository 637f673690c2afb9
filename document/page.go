package document

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
)

// Page is one page of the Document that created it.
type Page struct {
	doc  *Document
	ref  raw.RefObj
	dict *raw.DictObj
}

func (p *Page) Ref() raw.ObjectRef { return p.ref.R }

// Dict is the page dictionary. Inherited attributes have already been
// copied onto it by Load.
func (p *Page) Dict() *raw.DictObj { return p.dict }

func (p *Page) Document() *Document { return p.doc }

// MediaBox returns the normalized media box.
func (p *Page) MediaBox() coords.Rect {
	return p.box("MediaBox", coords.Rect{URX: Letter[0], URY: Letter[1]})
}

// CropBox falls back to the media box.
func (p *Page) CropBox() coords.Rect {
	return p.box("CropBox", p.MediaBox())
}

// VisibleBox is the part of the media box a viewer shows: the crop box
// clipped to the media box, or the media box when they do not overlap.
func (p *Page) VisibleBox() coords.Rect {
	media := p.MediaBox()
	if r, ok := p.CropBox().Intersect(media); ok {
		return r
	}
	return media
}

func (p *Page) box(key string, def coords.Rect) coords.Rect {
	arr, ok := p.doc.raw.ResolveArray(p.dict.KV[key])
	if !ok || arr.Len() != 4 {
		return def
	}
	var v [4]float64
	for i, it := range arr.Items {
		n, ok := p.doc.raw.ResolveNumber(it)
		if !ok {
			return def
		}
		v[i] = n
	}
	return coords.Rect{LLX: v[0], LLY: v[1], URX: v[2], URY: v[3]}.Normalize()
}

// Size returns the media box width and height in points, ignoring rotation.
func (p *Page) Size() (width, height float64) {
	r := p.MediaBox()
	return r.Width(), r.Height()
}

// Rotation returns the clockwise display rotation, one of 0, 90, 180, 270.
func (p *Page) Rotation() int {
	n, ok := p.doc.raw.ResolveNumber(p.dict.KV["Rotate"])
	if !ok {
		return 0
	}
	return normalizeRotation(int(n))
}

// SetRotation stores deg, which must be a multiple of 90, normalized into
// [0,360).
func (p *Page) SetRotation(deg int) error {
	if deg%90 != 0 {
		return fmt.Errorf("rotation %d is not a multiple of 90", deg)
	}
	deg = normalizeRotation(deg)
	if deg == 0 {
		p.dict.Delete("Rotate")
		return nil
	}
	p.dict.Set("Rotate", raw.NumberInt(int64(deg)))
	return nil
}

// Rotate adds deg to the current rotation.
func (p *Page) Rotate(deg int) error {
	return p.SetRotation(p.Rotation() + deg)
}

func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg - deg%90
}

// Resources returns the page's resource dictionary, making it a direct
// dictionary owned by the page so additions do not leak to other pages.
func (p *Page) Resources() *raw.DictObj {
	obj, ok := p.dict.Get("Resources")
	if ok {
		if d, isDict := obj.(*raw.DictObj); isDict {
			return d
		}
		if d, isDict := p.doc.raw.ResolveDict(obj); isDict {
			own := raw.CloneDict(d)
			p.dict.Set("Resources", own)
			return own
		}
	}
	own := raw.Dict()
	p.dict.Set("Resources", own)
	return own
}

// addResource registers ref under category in the page resources and
// returns the key used. A key already bound to ref is reused; a key bound
// to something else gets a numeric suffix.
func (p *Page) addResource(category, name string, ref raw.RefObj) string {
	res := p.Resources()
	sub, ok := res.Get(category)
	var dict *raw.DictObj
	if ok {
		if d, isDict := sub.(*raw.DictObj); isDict {
			dict = d
		} else if d, isDict := p.doc.raw.ResolveDict(sub); isDict {
			dict = raw.CloneDict(d)
			res.Set(category, dict)
		}
	}
	if dict == nil {
		dict = raw.Dict()
		res.Set(category, dict)
	}
	key := name
	for i := 1; ; i++ {
		existing, taken := dict.Get(key)
		if !taken {
			dict.Set(key, ref)
			return key
		}
		if r, same := existing.(raw.RefObj); same && r == ref {
			return key
		}
		key = name + "_" + strconv.Itoa(i)
	}
}

// AppendContent adds a content stream drawn after the existing content.
// The existing content is wrapped in q/Q so its graphics state cannot
// leak into the appended operators. content is Flate compressed.
func (p *Page) AppendContent(content []byte) error {
	enc, err := filters.FlateEncode(content, 6)
	if err != nil {
		return err
	}
	dict := raw.Dict()
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	newRef := p.doc.raw.Add(raw.NewStream(dict, enc))

	var existing []raw.Object
	switch c := p.dict.KV["Contents"].(type) {
	case raw.RefObj:
		if arr, ok := p.doc.raw.ResolveArray(c); ok {
			existing = append(existing, arr.Items...)
		} else {
			existing = append(existing, c)
		}
	case *raw.ArrayObj:
		existing = append(existing, c.Items...)
	}
	if len(existing) == 0 {
		p.dict.Set("Contents", newRef)
		return nil
	}
	open := p.doc.raw.Add(raw.NewStream(nil, []byte("q\n")))
	closeRef := p.doc.raw.Add(raw.NewStream(nil, []byte("\nQ\n")))
	items := make([]raw.Object, 0, len(existing)+3)
	items = append(items, open)
	items = append(items, existing...)
	items = append(items, closeRef, newRef)
	p.dict.Set("Contents", raw.NewArray(items...))
	return nil
}

// Content returns the decoded, concatenated content streams of the page.
func (p *Page) Content(ctx context.Context) ([]byte, error) {
	var out []byte
	var streams []raw.Object
	switch c := p.doc.raw.Resolve(p.dict.KV["Contents"]).(type) {
	case *raw.StreamObj:
		streams = append(streams, c)
	case *raw.ArrayObj:
		streams = c.Items
	}
	for _, s := range streams {
		st, ok := p.doc.raw.Resolve(s).(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := p.doc.filters.DecodeStream(ctx, st)
		if err != nil {
			return out, err
		}
		out = append(out, data...)
		out = append(out, '\n')
	}
	return out, nil
}
