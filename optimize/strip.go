package optimize

import "github.com/wudi/pdfengine/ir/raw"

// stripMetadata removes optional payloads that viewers do not need to
// render: the catalog XMP packet, PieceInfo and page thumbnails.
func stripMetadata(doc *raw.Document) int {
	removed := 0
	drop := func(d *raw.DictObj, keys ...string) {
		for _, k := range keys {
			if _, ok := d.Get(k); ok {
				d.Delete(k)
				removed++
			}
		}
	}
	if cat, ok := doc.Catalog(); ok {
		drop(cat, "Metadata", "PieceInfo")
	}
	for _, obj := range doc.Objects {
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := d.Name("Type"); typ == "Page" {
			drop(d, "Thumb", "PieceInfo", "Metadata")
		}
	}
	return removed
}
