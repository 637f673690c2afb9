package document

import (
	"fmt"

	"github.com/wudi/pdfengine/ir/raw"
)

// CopyPages deep-copies the pages of src at indices into d and returns the
// new pages in the same order. The pages are not added to d's page list.
// Everything a page references is copied once per call, so pages sharing a
// font still share it in d. src is not modified. Requesting the same index
// twice yields two distinct pages.
func (d *Document) CopyPages(src *Document, indices []int) ([]*Page, error) {
	for _, i := range indices {
		if i < 0 || i >= len(src.pages) {
			return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrPageRange, i, len(src.pages))
		}
	}
	c := &copier{
		src:   src.raw,
		dst:   d.raw,
		refs:  make(map[raw.ObjectRef]raw.RefObj),
		pages: make(map[raw.ObjectRef]bool),
	}
	for _, i := range indices {
		c.pages[src.pages[i].ref.R] = true
	}

	out := make([]*Page, len(indices))
	copied := make(map[raw.ObjectRef]bool, len(indices))
	for n, i := range indices {
		sp := src.pages[i]
		if copied[sp.ref.R] {
			out[n] = d.duplicatePage(c.refs[sp.ref.R])
			continue
		}
		copied[sp.ref.R] = true
		ref := c.reserve(sp.ref)
		c.drain()
		dict, ok := d.raw.Objects[ref.R].(*raw.DictObj)
		if !ok {
			return nil, fmt.Errorf("page %d: object %s is not a dictionary", i, sp.ref.R)
		}
		out[n] = &Page{doc: d, ref: ref, dict: dict}
	}
	return out, nil
}

// duplicatePage makes a second page object sharing the content and
// resources of the page at ref. Annotations are cloned so each points back
// to its own page.
func (d *Document) duplicatePage(ref raw.RefObj) *Page {
	orig := d.raw.Objects[ref.R].(*raw.DictObj)
	dict := raw.CloneDict(orig)
	dict.Delete("Parent")
	newRef := d.raw.Add(dict)
	if annots, ok := d.raw.ResolveArray(orig.KV["Annots"]); ok {
		cloned := raw.NewArray()
		for _, a := range annots.Items {
			ad, ok := d.raw.ResolveDict(a)
			if !ok {
				continue
			}
			ac := raw.CloneDict(ad)
			ac.Set("P", newRef)
			cloned.Append(d.raw.Add(ac))
		}
		dict.Set("Annots", cloned)
	}
	return &Page{doc: d, ref: newRef, dict: dict}
}

// copier moves an object graph from src to dst, renumbering as it goes.
// Page and page-tree nodes other than the pages being copied are replaced
// by null so that annotations and outlines cannot drag whole documents in.
type copier struct {
	src, dst *raw.Document
	refs     map[raw.ObjectRef]raw.RefObj
	pages    map[raw.ObjectRef]bool
	queue    []raw.ObjectRef
}

func (c *copier) reserve(r raw.RefObj) raw.RefObj {
	if to, ok := c.refs[r.R]; ok {
		return to
	}
	to := c.dst.Add(raw.NullObj{})
	c.refs[r.R] = to
	c.queue = append(c.queue, r.R)
	return to
}

func (c *copier) drain() {
	for len(c.queue) > 0 {
		from := c.queue[0]
		c.queue = c.queue[1:]
		obj := c.src.Objects[from]
		c.dst.Objects[c.refs[from].R] = c.copy(obj, c.pages[from])
	}
}

func (c *copier) ref(r raw.RefObj) raw.Object {
	obj, ok := c.src.Objects[r.R]
	if !ok {
		return raw.NullObj{}
	}
	if d, isDict := obj.(*raw.DictObj); isDict && !c.pages[r.R] {
		if t, _ := d.Name("Type"); t == "Page" || t == "Pages" {
			return raw.NullObj{}
		}
	}
	return c.reserve(r)
}

func (c *copier) copy(obj raw.Object, isPage bool) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		return c.ref(v)
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = c.copy(it, false)
		}
		return out
	case *raw.DictObj:
		return c.copyDict(v, isPage)
	case *raw.StreamObj:
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		return &raw.StreamObj{Dict: c.copyDict(v.Dict, false), Data: data}
	default:
		return raw.Clone(obj)
	}
}

func (c *copier) copyDict(d *raw.DictObj, isPage bool) *raw.DictObj {
	out := &raw.DictObj{KV: make(map[string]raw.Object, len(d.KV))}
	for k, v := range d.KV {
		if isPage && k == "Parent" {
			continue
		}
		out.KV[k] = c.copy(v, false)
	}
	return out
}
