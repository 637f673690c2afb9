package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
)

// Extractor exposes helper routines for pulling text and structure out of a parsed PDF.
type Extractor struct {
	raw        *raw.Document
	catalog    *raw.DictObj
	pages      []*raw.DictObj
	pageLabels map[int]string
	filters    *filters.Pipeline
	fontCache  map[*raw.DictObj]*fontDecoder
}

// New creates an extractor over doc. A nil pipeline selects filters.Standard.
func New(doc *raw.Document, pipeline *filters.Pipeline) (*Extractor, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	catalog, ok := doc.Catalog()
	if !ok {
		return nil, errors.New("pdf catalog not found in trailer")
	}
	if pipeline == nil {
		pipeline = filters.Standard()
	}
	e := &Extractor{
		raw:       doc,
		catalog:   catalog,
		pages:     collectPages(doc, catalog),
		filters:   pipeline,
		fontCache: make(map[*raw.DictObj]*fontDecoder),
	}
	e.pageLabels = collectPageLabels(doc, catalog, len(e.pages))
	return e, nil
}

func (e *Extractor) PageCount() int { return len(e.pages) }

// Metadata holds high-level document metadata and flags.
type Metadata struct {
	Version   string
	Info      raw.DocumentMetadata
	Lang      string
	Marked    bool
	PageCount int
}

func (e *Extractor) ExtractMetadata() Metadata {
	meta := Metadata{
		Version:   e.raw.Version,
		Info:      e.raw.Metadata,
		PageCount: len(e.pages),
	}
	if s, ok := e.raw.Lookup(e.catalog, "Lang").(raw.StringObj); ok {
		meta.Lang = raw.DecodeTextString(s.Bytes)
	}
	if markInfo, ok := e.raw.ResolveDict(e.catalog.KV["MarkInfo"]); ok {
		if b, ok := e.raw.Lookup(markInfo, "Marked").(raw.BoolObj); ok {
			meta.Marked = b.V
		}
	}
	return meta
}

// PageLabels returns the computed label for every labelled page index.
func (e *Extractor) PageLabels() map[int]string {
	out := make(map[int]string, len(e.pageLabels))
	for k, v := range e.pageLabels {
		out[k] = v
	}
	return out
}

func (e *Extractor) streamBytes(ctx context.Context, obj raw.Object) ([]byte, bool) {
	st, ok := e.raw.Resolve(obj).(*raw.StreamObj)
	if !ok {
		return nil, false
	}
	data, err := e.filters.DecodeStream(ctx, st)
	if err != nil {
		return nil, false
	}
	return data, true
}

func collectPages(doc *raw.Document, catalog *raw.DictObj) []*raw.DictObj {
	var pages []*raw.DictObj
	seen := make(map[*raw.DictObj]bool)
	var walk func(obj raw.Object, depth int)
	walk = func(obj raw.Object, depth int) {
		dict, ok := doc.ResolveDict(obj)
		if !ok || seen[dict] || depth > 64 {
			return
		}
		seen[dict] = true
		if typ, _ := dict.Name("Type"); typ == "Pages" {
			if kids, ok := doc.ResolveArray(dict.KV["Kids"]); ok {
				for _, kid := range kids.Items {
					walk(kid, depth+1)
				}
			}
			return
		}
		pages = append(pages, dict)
	}
	walk(catalog.KV["Pages"], 0)
	return pages
}

// inherited looks key up on the page and then its /Parent chain.
func inherited(doc *raw.Document, page *raw.DictObj, key string) raw.Object {
	for i := 0; page != nil && i < 64; i++ {
		if v, ok := page.Get(key); ok {
			return doc.Resolve(v)
		}
		page, _ = doc.ResolveDict(page.KV["Parent"])
	}
	return nil
}

func collectPageLabels(doc *raw.Document, catalog *raw.DictObj, pageCount int) map[int]string {
	labels := make(map[int]string)
	pageLabels, ok := doc.ResolveDict(catalog.KV["PageLabels"])
	if !ok {
		return labels
	}
	nums, ok := doc.ResolveArray(pageLabels.KV["Nums"])
	if !ok {
		return labels
	}
	// ranges are listed in ascending order; each runs until the next one
	type labelRange struct {
		start  int
		prefix string
		first  int
	}
	var ranges []labelRange
	for i := 0; i+1 < len(nums.Items); i += 2 {
		idx, ok := doc.Resolve(nums.Items[i]).(raw.NumberObj)
		if !ok {
			continue
		}
		entry, ok := doc.ResolveDict(nums.Items[i+1])
		if !ok {
			continue
		}
		r := labelRange{start: int(idx.Int()), first: 1}
		if p, ok := doc.Lookup(entry, "P").(raw.StringObj); ok {
			r.prefix = raw.DecodeTextString(p.Bytes)
		}
		if st, ok := doc.Lookup(entry, "St").(raw.NumberObj); ok {
			r.first = int(st.Int())
		}
		ranges = append(ranges, r)
	}
	for i, r := range ranges {
		end := pageCount
		if i+1 < len(ranges) && ranges[i+1].start < end {
			end = ranges[i+1].start
		}
		for p := r.start; p < end; p++ {
			labels[p] = fmt.Sprintf("%s%d", r.prefix, r.first+(p-r.start))
		}
	}
	return labels
}
