package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/scanner"
)

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	// EntryCompressed marks an object stored inside an object stream.
	EntryCompressed
)

type Entry struct {
	Kind   EntryKind
	Offset int64 // byte offset for in-use entries
	Gen    int
	Stream int // object stream number for compressed entries
	Index  int // index within the object stream
}

// Table holds the merged cross-reference information of a file.
type Table interface {
	Lookup(objNum int) (Entry, bool)
	Objects() []int
	Trailer() *raw.DictObj
	Type() string // "table", "stream" or "repaired"
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	// Recovery decides what happens when the xref data is damaged. With no
	// strategy the error is returned.
	Recovery recovery.Strategy
	Filters  *filters.Pipeline
}

func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.Standard()
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg ResolverConfig
}

type table struct {
	entries map[int]Entry
	trailer *raw.DictObj
	kind    string
}

func (t *table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok && e.Kind != EntryFree
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) Type() string          { return t.kind }

func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if r.cfg.Recovery == nil {
		return nil, err
	}
	switch r.cfg.Recovery.OnError(ctx, err, recovery.Location{Component: "xref"}) {
	case recovery.ActionFix, recovery.ActionSkip:
		return repair(ctx, data)
	}
	return nil, err
}

var startxrefKeyword = []byte("startxref")

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, startxrefKeyword)
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len(startxrefKeyword):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	if off <= 0 || off >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", off)
	}
	return off, nil
}

// resolveChain walks the newest section first, following /Prev and
// /XRefStm. Entries from newer sections shadow older ones.
func (r *resolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	off, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &table{entries: make(map[int]Entry), kind: "table"}
	visited := make(map[int64]bool)
	queue := []int64{off}
	for depth := 0; len(queue) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, errors.New("xref chain too long")
		}
		off, queue = queue[0], queue[1:]
		if visited[off] {
			continue
		}
		visited[off] = true
		if off < 0 || off >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset out of range: %d", off)
		}

		var trailer *raw.DictObj
		if bytes.HasPrefix(bytes.TrimLeft(data[off:], " \t\r\n\f\x00"), []byte("xref")) {
			trailer, err = parseClassic(data, off, t.entries)
		} else {
			trailer, err = r.parseStream(ctx, data, off, t.entries)
			t.kind = "stream"
		}
		if err != nil {
			return nil, fmt.Errorf("xref section at %d: %w", off, err)
		}
		if t.trailer == nil {
			t.trailer = trailer
		} else {
			for _, k := range trailer.Keys() {
				if _, ok := t.trailer.Get(k); !ok && k != "Prev" && k != "XRefStm" {
					t.trailer.Set(k, trailer.KV[k])
				}
			}
		}
		// hybrid files: the xref stream takes precedence over the table
		if stm, ok := trailer.KV["XRefStm"].(raw.NumberObj); ok {
			queue = append([]int64{stm.Int()}, queue...)
		}
		if prev, ok := trailer.KV["Prev"].(raw.NumberObj); ok {
			queue = append(queue, prev.Int())
		}
	}
	if _, ok := t.trailer.Get("Root"); !ok {
		return nil, errors.New("trailer has no /Root")
	}
	t.trailer.Delete("Prev", "XRefStm")
	return t, nil
}

func parseClassic(data []byte, off int64, entries map[int]Entry) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(off); err != nil {
		return nil, err
	}
	if tok, err := s.Next(); err != nil || !tok.IsKeyword("xref") {
		return nil, errors.New("xref keyword not found at offset")
	}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.IsKeyword("trailer") {
			break
		}
		start, ok := tok.Int()
		if !ok {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		countTok, err := s.Next()
		if err != nil {
			return nil, err
		}
		count, ok := countTok.Int()
		if !ok || count < 0 {
			return nil, fmt.Errorf("invalid xref subsection count at %d", countTok.Pos)
		}
		for i := int64(0); i < count; i++ {
			offTok, err1 := s.Next()
			genTok, err2 := s.Next()
			kindTok, err3 := s.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("unexpected end of xref section: %w", err)
			}
			offset, ok1 := offTok.Int()
			gen, ok2 := genTok.Int()
			if !ok1 || !ok2 || kindTok.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("invalid xref entry at %d", offTok.Pos)
			}
			num := int(start + i)
			if _, seen := entries[num]; seen {
				continue
			}
			switch kindTok.Str() {
			case "n":
				entries[num] = Entry{Kind: EntryInUse, Offset: offset, Gen: int(gen)}
			case "f":
				entries[num] = Entry{Kind: EntryFree, Gen: int(gen)}
			default:
				return nil, fmt.Errorf("invalid xref entry type %q", kindTok.Str())
			}
		}
	}
	rd := raw.NewObjectReader(s)
	obj, err := rd.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("trailer is not a dictionary")
	}
	return trailer, nil
}

func (r *resolver) parseStream(ctx context.Context, data []byte, off int64, entries map[int]Entry) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(off); err != nil {
		return nil, err
	}
	_, obj, err := raw.NewObjectReader(s).ReadIndirect()
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("xref stream expected")
	}
	if typ, _ := stream.Dict.Name("Type"); typ != "XRef" {
		return nil, errors.New("object at startxref is not an xref stream")
	}
	decoded, err := r.cfg.Filters.DecodeStream(ctx, stream)
	if err != nil {
		return nil, err
	}

	widths, err := intArray(stream.Dict.KV["W"])
	if err != nil || len(widths) != 3 {
		return nil, errors.New("xref stream /W must hold three integers")
	}
	size := 0
	if n, ok := stream.Dict.KV["Size"].(raw.NumberObj); ok {
		size = int(n.Int())
	}
	index := []int{0, size}
	if idx, ok := stream.Dict.KV["Index"]; ok {
		if index, err = intArray(idx); err != nil || len(index)%2 != 0 {
			return nil, errors.New("invalid xref stream /Index")
		}
	}
	rowLen := widths[0] + widths[1] + widths[2]
	if rowLen == 0 {
		return nil, errors.New("xref stream has zero-width rows")
	}

	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(decoded) {
				return nil, errors.New("xref stream truncated")
			}
			row := decoded[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1) // default when the first field is absent
			if widths[0] > 0 {
				typ = readField(row[:widths[0]])
			}
			f2 := readField(row[widths[0] : widths[0]+widths[1]])
			f3 := readField(row[widths[0]+widths[1]:])
			num := start + j
			if _, seen := entries[num]; seen {
				continue
			}
			switch typ {
			case 0:
				entries[num] = Entry{Kind: EntryFree, Gen: int(f3)}
			case 1:
				entries[num] = Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)}
			case 2:
				entries[num] = Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)}
			}
		}
	}

	trailer := raw.CloneDict(stream.Dict)
	trailer.Delete("Type", "W", "Index", "Length", "Filter", "DecodeParms")
	return trailer, nil
}

func readField(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(obj raw.Object) ([]int, error) {
	arr, ok := obj.(*raw.ArrayObj)
	if !ok {
		return nil, errors.New("expected array")
	}
	out := make([]int, len(arr.Items))
	for i, it := range arr.Items {
		n, ok := it.(raw.NumberObj)
		if !ok {
			return nil, errors.New("expected integer")
		}
		out[i] = int(n.Int())
	}
	return out, nil
}
