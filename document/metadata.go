package document

import (
	"time"

	"github.com/wudi/pdfengine/ir/raw"
)

// Metadata holds the document information dictionary fields.
type Metadata struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate time.Time
	ModDate      time.Time
}

func (d *Document) Metadata() Metadata {
	var md Metadata
	info, ok := d.raw.ResolveDict(d.raw.Trailer.KV["Info"])
	if !ok {
		return md
	}
	text := func(key string) string {
		s, ok := d.raw.Lookup(info, key).(raw.StringObj)
		if !ok {
			return ""
		}
		return raw.DecodeTextString(s.Bytes)
	}
	md.Title = text("Title")
	md.Author = text("Author")
	md.Subject = text("Subject")
	md.Keywords = text("Keywords")
	md.Creator = text("Creator")
	md.Producer = text("Producer")
	md.CreationDate, _ = raw.ParseDate(text("CreationDate"))
	md.ModDate, _ = raw.ParseDate(text("ModDate"))
	return md
}

// SetMetadata replaces the information dictionary. Empty strings and zero
// times are omitted.
func (d *Document) SetMetadata(md Metadata) {
	info := raw.Dict()
	set := func(key, val string) {
		if val != "" {
			info.Set(key, raw.TextString(val))
		}
	}
	set("Title", md.Title)
	set("Author", md.Author)
	set("Subject", md.Subject)
	set("Keywords", md.Keywords)
	set("Creator", md.Creator)
	set("Producer", md.Producer)
	if !md.CreationDate.IsZero() {
		info.Set("CreationDate", raw.Str([]byte(raw.FormatDate(md.CreationDate))))
	}
	if !md.ModDate.IsZero() {
		info.Set("ModDate", raw.Str([]byte(raw.FormatDate(md.ModDate))))
	}
	if ref, ok := d.raw.Trailer.KV["Info"].(raw.RefObj); ok {
		if _, exists := d.raw.Objects[ref.R]; exists {
			d.raw.Objects[ref.R] = info
			d.raw.Metadata = toRaw(md)
			return
		}
	}
	d.raw.Trailer.Set("Info", d.raw.Add(info))
	d.raw.Metadata = toRaw(md)
}

// UpdateMetadata applies fn to the current metadata and stores the result.
func (d *Document) UpdateMetadata(fn func(*Metadata)) {
	md := d.Metadata()
	fn(&md)
	d.SetMetadata(md)
}

func toRaw(md Metadata) raw.DocumentMetadata {
	return raw.DocumentMetadata(md)
}
