package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/scanner"
	"github.com/wudi/pdfengine/xref"
)

// objectLoader resolves objects through the xref table, caching both
// direct loads and unpacked object streams.
type objectLoader struct {
	data    []byte
	table   xref.Table
	filters *filters.Pipeline

	cache   map[int]raw.Object
	objstm  map[int]map[int]raw.Object
	loading map[int]bool
}

func newObjectLoader(data []byte, table xref.Table, pipeline *filters.Pipeline) *objectLoader {
	return &objectLoader{
		data:    data,
		table:   table,
		filters: pipeline,
		cache:   make(map[int]raw.Object),
		objstm:  make(map[int]map[int]raw.Object),
		loading: make(map[int]bool),
	}
}

func (o *objectLoader) Load(ctx context.Context, num int) (raw.Object, error) {
	if obj, ok := o.cache[num]; ok {
		return obj, nil
	}
	if o.loading[num] {
		return nil, fmt.Errorf("object %d references itself while loading", num)
	}
	o.loading[num] = true
	defer delete(o.loading, num)

	e, ok := o.table.Lookup(num)
	if !ok {
		return nil, fmt.Errorf("object %d not in xref", num)
	}
	var (
		obj raw.Object
		err error
	)
	switch e.Kind {
	case xref.EntryInUse:
		obj, err = o.loadAtOffset(num, e.Offset)
	case xref.EntryCompressed:
		obj, err = o.loadFromObjectStream(ctx, num, e.Stream)
	default:
		return nil, fmt.Errorf("object %d is free", num)
	}
	if err != nil {
		return nil, err
	}
	o.cache[num] = obj
	return obj, nil
}

func (o *objectLoader) loadAtOffset(num int, offset int64) (raw.Object, error) {
	s := scanner.New(o.data, scanner.Config{})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	rd := raw.NewObjectReader(s)
	rd.StreamLength = o.streamLength
	ref, obj, err := rd.ReadIndirect()
	if err != nil {
		return nil, err
	}
	if ref.Num != num {
		return nil, fmt.Errorf("xref points object %d at object %d", num, ref.Num)
	}
	return obj, nil
}

// streamLength resolves an indirect /Length. The referenced object is never
// itself a stream, so recursion depth is bounded by the loading guard.
func (o *objectLoader) streamLength(ref raw.ObjectRef) (int64, bool) {
	obj, err := o.Load(context.Background(), ref.Num)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(raw.NumberObj)
	return n.Int(), ok
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, num, streamNum int) (raw.Object, error) {
	objs, ok := o.objstm[streamNum]
	if !ok {
		streamObj, err := o.Load(ctx, streamNum)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		st, ok := streamObj.(*raw.StreamObj)
		if !ok {
			return nil, errors.New("object stream is not a stream")
		}
		objs, err = unpackObjectStream(ctx, st, o.filters)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
		}
		o.objstm[streamNum] = objs
	}
	obj, ok := objs[num]
	if !ok {
		return nil, fmt.Errorf("object %d not found in object stream %d", num, streamNum)
	}
	return obj, nil
}

// unpackObjectStream parses every member of an /ObjStm.
func unpackObjectStream(ctx context.Context, st *raw.StreamObj, pipeline *filters.Pipeline) (map[int]raw.Object, error) {
	n, _ := st.Dict.KV["N"].(raw.NumberObj)
	first, _ := st.Dict.KV["First"].(raw.NumberObj)
	data, err := pipeline.DecodeStream(ctx, st)
	if err != nil {
		return nil, err
	}
	if first.Int() < 0 || first.Int() > int64(len(data)) {
		return nil, errors.New("object stream /First exceeds length")
	}

	header := scanner.New(data[:first.Int()], scanner.Config{ContentStream: true})
	pairs := make([]int64, 0, 2*n.Int())
	for int64(len(pairs)) < 2*n.Int() {
		tok, err := header.Next()
		if err != nil {
			return nil, fmt.Errorf("object stream header: %w", err)
		}
		v, ok := tok.Int()
		if !ok {
			return nil, errors.New("object stream header holds a non-integer")
		}
		pairs = append(pairs, v)
	}

	body := data[first.Int():]
	objs := make(map[int]raw.Object, n.Int())
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] < 0 || pairs[i+1] > int64(len(body)) {
			return nil, errors.New("object stream offset out of range")
		}
		s := scanner.New(body, scanner.Config{})
		_ = s.Seek(pairs[i+1])
		obj, err := raw.NewObjectReader(s).ReadObject()
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", pairs[i], err)
		}
		objs[int(pairs[i])] = obj
	}
	return objs, nil
}
