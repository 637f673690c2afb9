package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/xref"
)

var (
	// ErrEncrypted is returned for documents carrying an /Encrypt dictionary.
	ErrEncrypted = errors.New("document is encrypted")
	ErrNotPDF    = errors.New("missing %PDF header")
	ErrNoCatalog = errors.New("document has no catalog")
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Filters  *filters.Pipeline
	Logger   observability.Logger
	// MaxSize bounds how many bytes are read from the input. Zero means no limit.
	MaxSize int64
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Filters == nil {
		cfg.Filters = filters.Standard()
	}
	if cfg.XRef.Filters == nil {
		cfg.XRef.Filters = cfg.Filters
	}
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &DocumentParser{cfg: cfg}
}

var _ raw.Parser = (*DocumentParser)(nil)

func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	data, err := readAll(r, p.cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return p.ParseBytes(ctx, data)
}

// ParseBytes parses an in-memory PDF file.
func (p *DocumentParser) ParseBytes(ctx context.Context, data []byte) (*raw.Document, error) {
	version, ok := headerVersion(data)
	if !ok {
		return nil, ErrNotPDF
	}

	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	trailer := raw.CloneDict(table.Trailer())
	if _, enc := trailer.Get("Encrypt"); enc {
		return nil, ErrEncrypted
	}

	doc := raw.NewDocument()
	doc.Trailer = trailer
	doc.Version = version
	doc.Repaired = table.Type() == "repaired"

	loader := newObjectLoader(data, table, p.cfg.Filters)
	for _, num := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, _ := table.Lookup(num)
		obj, err := loader.Load(ctx, num)
		if err != nil {
			loc := recovery.Location{ObjectNum: num, ObjectGen: e.Gen, ByteOffset: e.Offset, Component: "object"}
			if p.onError(ctx, err, loc) == recovery.ActionFail {
				return nil, fmt.Errorf("load object %d: %w", num, err)
			}
			continue
		}
		doc.Objects[raw.ObjectRef{Num: num, Gen: entryGen(e)}] = obj
	}

	if doc.Repaired {
		p.unpackStrayObjectStreams(ctx, doc)
	}
	dropStructuralStreams(doc)

	if _, ok := doc.Catalog(); !ok {
		if !doc.Repaired {
			return nil, ErrNoCatalog
		}
		ref, ok := findCatalog(doc)
		if !ok {
			return nil, ErrNoCatalog
		}
		doc.Trailer.Set("Root", ref)
	}
	doc.Metadata = readInfo(doc)
	p.cfg.Logger.Debug("parsed document",
		observability.Int("objects", len(doc.Objects)),
		observability.String("version", doc.Version),
		observability.Bool("repaired", doc.Repaired))
	return doc, nil
}

func (p *DocumentParser) onError(ctx context.Context, err error, loc recovery.Location) recovery.Action {
	if p.cfg.Recovery == nil {
		return recovery.ActionFail
	}
	return p.cfg.Recovery.OnError(ctx, err, loc)
}

// entryGen keeps compressed objects at generation zero; their xref Gen slot
// holds nothing meaningful.
func entryGen(e xref.Entry) int {
	if e.Kind == xref.EntryCompressed {
		return 0
	}
	return e.Gen
}

// unpackStrayObjectStreams adds members of object streams that a rebuilt
// xref could not see. Objects found at top level win.
func (p *DocumentParser) unpackStrayObjectStreams(ctx context.Context, doc *raw.Document) {
	refs := make([]raw.ObjectRef, 0)
	for ref, obj := range doc.Objects {
		if st, ok := obj.(*raw.StreamObj); ok {
			if t, _ := st.Dict.Name("Type"); t == "ObjStm" {
				refs = append(refs, ref)
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Num < refs[j].Num })
	for _, ref := range refs {
		members, err := unpackObjectStream(ctx, doc.Objects[ref].(*raw.StreamObj), p.cfg.Filters)
		if err != nil {
			p.onError(ctx, err, recovery.Location{ObjectNum: ref.Num, Component: "objstm"})
			continue
		}
		for num, obj := range members {
			key := raw.ObjectRef{Num: num}
			if _, taken := doc.Objects[key]; !taken {
				doc.Objects[key] = obj
			}
		}
	}
}

// dropStructuralStreams removes xref and object streams; the writer
// regenerates them when asked to.
func dropStructuralStreams(doc *raw.Document) {
	for ref, obj := range doc.Objects {
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		switch t, _ := st.Dict.Name("Type"); t {
		case "XRef", "ObjStm":
			delete(doc.Objects, ref)
		}
	}
}

func findCatalog(doc *raw.Document) (raw.RefObj, bool) {
	var best *raw.ObjectRef
	for ref, obj := range doc.Objects {
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if t, _ := d.Name("Type"); t != "Catalog" {
			continue
		}
		if best == nil || ref.Num > best.Num {
			r := ref
			best = &r
		}
	}
	if best == nil {
		return raw.RefObj{}, false
	}
	return raw.RefObj{R: *best}, true
}

func readInfo(doc *raw.Document) raw.DocumentMetadata {
	var md raw.DocumentMetadata
	info, ok := doc.ResolveDict(doc.Trailer.KV["Info"])
	if !ok {
		return md
	}
	text := func(key string) string {
		s, ok := doc.Lookup(info, key).(raw.StringObj)
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

// headerVersion finds "%PDF-x.y" within the first KiB, tolerating leading junk.
func headerVersion(data []byte) (string, bool) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		return "", false
	}
	v := head[i+5:]
	end := 0
	for end < len(v) && end < 4 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "1.4", true
	}
	return string(v[:end]), true
}

type sizer interface{ Size() int64 }

func readAll(r io.ReaderAt, max int64) ([]byte, error) {
	if s, ok := r.(sizer); ok {
		n := s.Size()
		if max > 0 && n > max {
			return nil, fmt.Errorf("input of %d bytes exceeds limit %d", n, max)
		}
		buf := make([]byte, n)
		if _, err := r.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return buf, nil
	}
	var out bytes.Buffer
	chunk := make([]byte, 64*1024)
	var off int64
	for {
		n, err := r.ReadAt(chunk, off)
		out.Write(chunk[:n])
		off += int64(n)
		if max > 0 && off > max {
			return nil, fmt.Errorf("input exceeds limit %d", max)
		}
		if errors.Is(err, io.EOF) {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
