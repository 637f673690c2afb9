package extractor

import "github.com/wudi/pdfengine/ir/raw"

// Bookmark describes a PDF outline entry.
type Bookmark struct {
	Title    string
	Page     int
	Children []Bookmark
}

// TOCEntry is a flattened bookmark entry augmented with labels and depth.
type TOCEntry struct {
	Title string
	Page  int
	Label string
	Depth int
}

const maxOutlineItems = 10000

// ExtractBookmarks walks the document outline tree (if present).
func (e *Extractor) ExtractBookmarks() []Bookmark {
	outlines, ok := e.raw.ResolveDict(e.catalog.KV["Outlines"])
	if !ok {
		return nil
	}
	budget := maxOutlineItems
	return e.outlineBranch(outlines.KV["First"], make(map[*raw.DictObj]bool), &budget)
}

// ExtractTableOfContents flattens bookmarks and attaches page labels.
func (e *Extractor) ExtractTableOfContents() []TOCEntry {
	var entries []TOCEntry
	var walk func(items []Bookmark, depth int)
	walk = func(items []Bookmark, depth int) {
		for _, item := range items {
			entries = append(entries, TOCEntry{
				Title: item.Title,
				Page:  item.Page,
				Label: e.pageLabels[item.Page],
				Depth: depth,
			})
			walk(item.Children, depth+1)
		}
	}
	walk(e.ExtractBookmarks(), 0)
	return entries
}

func (e *Extractor) outlineBranch(obj raw.Object, seen map[*raw.DictObj]bool, budget *int) []Bookmark {
	var list []Bookmark
	for obj != nil && *budget > 0 {
		dict, ok := e.raw.ResolveDict(obj)
		if !ok || seen[dict] {
			break
		}
		seen[dict] = true
		*budget--

		var title string
		if s, ok := e.raw.Lookup(dict, "Title").(raw.StringObj); ok {
			title = raw.DecodeTextString(s.Bytes)
		}
		page := e.destPage(dict.KV["Dest"])
		if page == -1 {
			page = e.actionDestPage(dict.KV["A"])
		}
		list = append(list, Bookmark{
			Title:    title,
			Page:     page,
			Children: e.outlineBranch(dict.KV["First"], seen, budget),
		})
		obj = dict.KV["Next"]
	}
	return list
}

func (e *Extractor) destPage(obj raw.Object) int {
	switch v := e.raw.Resolve(obj).(type) {
	case *raw.ArrayObj:
		if v.Len() == 0 {
			return -1
		}
		page, _ := e.raw.ResolveDict(v.Items[0])
		return e.indexOfPage(page)
	case *raw.DictObj:
		// named destinations resolve to a dictionary holding /D
		return e.destPage(v.KV["D"])
	}
	return -1
}

func (e *Extractor) actionDestPage(obj raw.Object) int {
	action, ok := e.raw.ResolveDict(obj)
	if !ok {
		return -1
	}
	if typ, _ := action.Name("S"); typ != "GoTo" {
		return -1
	}
	return e.destPage(action.KV["D"])
}

func (e *Extractor) indexOfPage(target *raw.DictObj) int {
	if target == nil {
		return -1
	}
	for idx, page := range e.pages {
		if page == target {
			return idx
		}
	}
	return -1
}
