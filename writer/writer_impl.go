package writer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
)

type impl struct{}

func (w *impl) SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error) {
	var buf []byte
	buf = append(buf, fmt.Sprintf("%d %d obj\n", ref.Num, ref.Gen)...)
	buf = append(buf, serializePrimitive(obj)...)
	buf = append(buf, "\nendobj\n"...)
	return buf, nil
}

// countingWriter tracks the byte offset of everything written so far.
type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
	sum io.Writer
}

func (c *countingWriter) Write(p []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	if c.sum != nil {
		c.sum.Write(p[:n])
	}
}

type xrefEntry struct {
	typ    int
	offset int64 // or object stream number
	index  int
}

func (w *impl) Write(ctx context.Context, doc *raw.Document, out io.Writer, cfg Config) error {
	if doc == nil {
		return errors.New("nil document")
	}
	logger := observability.OrNop(cfg.Logger)
	if cfg.ObjectsPerTick <= 0 {
		cfg.ObjectsPerTick = defaultObjectsPerTick
	}
	if cfg.ObjectStreams {
		cfg.XRefStreams = true
	}

	objects, trailer, err := renumber(doc)
	if err != nil {
		return err
	}
	if cfg.UpdateFieldAppearances {
		markNeedAppearances(objects, trailer)
	}
	size := len(objects) + 1

	var packed [][]int
	if cfg.ObjectStreams {
		packed = packObjects(objects)
	}
	total := len(objects)

	hash, _ := blake2b.New256(nil)
	cw := &countingWriter{w: bufio.NewWriter(out), sum: hash}
	cw.Write([]byte("%PDF-" + headerVersion(doc, cfg) + "\n%\xE2\xE3\xCF\xD3\n"))

	entries := make([]xrefEntry, size)
	written := 0
	lastTick := 0
	tick := func(n int) error {
		written += n
		if written-lastTick < cfg.ObjectsPerTick && written != total {
			return nil
		}
		lastTick = written
		if cfg.Progress != nil {
			cfg.Progress(written, total)
		}
		return ctx.Err()
	}

	inStream := make(map[int]bool)
	for _, group := range packed {
		for _, n := range group {
			inStream[n] = true
		}
	}
	for num := 1; num < size; num++ {
		if inStream[num] {
			continue
		}
		obj := objects[num]
		if st, ok := obj.(*raw.StreamObj); ok {
			if obj, err = encodeStream(st, cfg.Compression); err != nil {
				return fmt.Errorf("object %d: %w", num, err)
			}
		}
		entries[num] = xrefEntry{typ: 1, offset: cw.n}
		b, _ := w.SerializeObject(raw.ObjectRef{Num: num}, obj)
		cw.Write(b)
		if err := tick(1); err != nil {
			return err
		}
	}

	for _, group := range packed {
		stmNum := size
		size++
		entries = append(entries, xrefEntry{typ: 1, offset: cw.n})
		st, err := buildObjectStream(objects, group, cfg.Compression)
		if err != nil {
			return err
		}
		for i, n := range group {
			entries[n] = xrefEntry{typ: 2, offset: int64(stmNum), index: i}
		}
		b, _ := w.SerializeObject(raw.ObjectRef{Num: stmNum}, st)
		cw.Write(b)
		if err := tick(len(group)); err != nil {
			return err
		}
	}
	if cw.err != nil {
		return cw.err
	}

	trailer.Set("Size", raw.NumberInt(int64(size)))
	trailer.Set("ID", fileID(doc.Trailer, hash.Sum(nil), cfg.Deterministic))

	xrefOffset := cw.n
	if cfg.XRefStreams {
		// the xref stream describes itself
		entries = append(entries, xrefEntry{typ: 1, offset: xrefOffset})
		trailer.Set("Size", raw.NumberInt(int64(size+1)))
		st := buildXRefStream(entries, trailer)
		b, _ := w.SerializeObject(raw.ObjectRef{Num: size}, st)
		cw.Write(b)
	} else {
		cw.Write(classicXRef(entries))
		cw.Write([]byte("trailer\n"))
		cw.Write(serializePrimitive(trailer))
		cw.Write([]byte("\n"))
	}
	cw.Write([]byte(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOffset)))
	if cw.err != nil {
		return cw.err
	}
	if err := cw.w.Flush(); err != nil {
		return err
	}
	logger.Debug("document written",
		observability.Int("objects", total),
		observability.Int64("bytes", cw.n),
		observability.Bool("xref_stream", cfg.XRefStreams))
	return nil
}

func headerVersion(doc *raw.Document, cfg Config) string {
	v := string(cfg.Version)
	if v == "" {
		v = doc.Version
	}
	if v == "" {
		v = string(PDF17)
	}
	if (cfg.XRefStreams || cfg.ObjectStreams) && v < string(PDF15) {
		v = string(PDF15)
	}
	return v
}

// renumber assigns compact object numbers in ascending order of the
// original references and rewrites every reference accordingly. Dangling
// references become null. The returned map is indexed by new number.
func renumber(doc *raw.Document) (map[int]raw.Object, *raw.DictObj, error) {
	refs := make([]raw.ObjectRef, 0, len(doc.Objects))
	for ref := range doc.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	mapping := make(map[raw.ObjectRef]int, len(refs))
	for i, ref := range refs {
		mapping[ref] = i + 1
	}
	objects := make(map[int]raw.Object, len(refs))
	for _, ref := range refs {
		objects[mapping[ref]] = remap(doc.Objects[ref], mapping)
	}

	trailer := raw.Dict()
	root, ok := doc.Trailer.Get("Root")
	if !ok {
		return nil, nil, errors.New("trailer has no /Root")
	}
	root = remap(root, mapping)
	if _, ok := root.(raw.RefObj); !ok {
		return nil, nil, errors.New("/Root does not reference an object")
	}
	trailer.Set("Root", root)
	if info, ok := doc.Trailer.Get("Info"); ok {
		if info = remap(info, mapping); info.Type() == "ref" {
			trailer.Set("Info", info)
		}
	}
	return objects, trailer, nil
}

func remap(obj raw.Object, mapping map[raw.ObjectRef]int) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		n, ok := mapping[v.R]
		if !ok {
			return raw.NullObj{}
		}
		return raw.Ref(n, 0)
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = remap(it, mapping)
		}
		return out
	case *raw.DictObj:
		return remapDict(v, mapping)
	case *raw.StreamObj:
		return &raw.StreamObj{Dict: remapDict(v.Dict, mapping), Data: v.Data}
	default:
		return obj
	}
}

func remapDict(d *raw.DictObj, mapping map[raw.ObjectRef]int) *raw.DictObj {
	out := raw.Dict()
	if d == nil {
		return out
	}
	for k, v := range d.KV {
		v = remap(v, mapping)
		if _, null := v.(raw.NullObj); null {
			continue
		}
		out.KV[k] = v
	}
	return out
}

func markNeedAppearances(objects map[int]raw.Object, trailer *raw.DictObj) {
	deref := func(o raw.Object) raw.Object {
		if r, ok := o.(raw.RefObj); ok {
			return objects[r.R.Num]
		}
		return o
	}
	cat, ok := deref(trailer.KV["Root"]).(*raw.DictObj)
	if !ok {
		return
	}
	form, ok := deref(cat.KV["AcroForm"]).(*raw.DictObj)
	if !ok {
		return
	}
	if fields, ok := deref(form.KV["Fields"]).(*raw.ArrayObj); ok && fields.Len() > 0 {
		form.Set("NeedAppearances", raw.Bool(true))
	}
}

// encodeStream flate-compresses unfiltered streams when that saves space and
// always sets /Length to the stored size.
func encodeStream(st *raw.StreamObj, level int) (*raw.StreamObj, error) {
	dict := raw.CloneDict(st.Dict)
	data := st.Data
	if _, filtered := dict.Get("Filter"); !filtered && level != 0 && len(data) > 32 {
		enc, err := filters.FlateEncode(data, level)
		if err != nil {
			return nil, err
		}
		if len(enc) < len(data) {
			data = enc
			dict.Set("Filter", raw.NameLiteral("FlateDecode"))
			dict.Delete("DecodeParms")
		}
	}
	dict.Set("Length", raw.NumberInt(int64(len(data))))
	return &raw.StreamObj{Dict: dict, Data: data}, nil
}

// fileID keeps the first element of an existing /ID and derives the second
// from the written body, or from a random UUID when output need not be
// reproducible.
func fileID(old *raw.DictObj, sum []byte, deterministic bool) *raw.ArrayObj {
	second := append([]byte(nil), sum[:16]...)
	if !deterministic {
		u := uuid.New()
		second = u[:]
	}
	first := append([]byte(nil), sum[:16]...)
	if arr, ok := old.KV["ID"].(*raw.ArrayObj); ok && arr.Len() == 2 {
		if s, ok := arr.Items[0].(raw.StringObj); ok && len(s.Bytes) > 0 {
			first = s.Bytes
		}
	}
	return raw.NewArray(raw.HexStr(first), raw.HexStr(second))
}
