package raw

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfengine/scanner"
)

// ErrNotIndirect is returned by ReadIndirect when the input at the current
// position does not start with "<num> <gen> obj".
var ErrNotIndirect = errors.New("raw: not an indirect object")

const maxNesting = 256

// ObjectReader assembles scanner tokens into objects.
type ObjectReader struct {
	s     scanner.Scanner
	buf   []scanner.Token
	depth int
	// StreamLength resolves an indirect /Length before a stream body is
	// scanned. When nil, or when it reports false, the scanner searches for
	// endstream instead.
	StreamLength func(ref ObjectRef) (int64, bool)
}

// NewObjectReader wraps s.
func NewObjectReader(s scanner.Scanner) *ObjectReader {
	return &ObjectReader{s: s}
}

func (r *ObjectReader) Next() (scanner.Token, error) {
	if l := len(r.buf); l > 0 {
		t := r.buf[l-1]
		r.buf = r.buf[:l-1]
		return t, nil
	}
	return r.s.Next()
}

func (r *ObjectReader) Unread(tok scanner.Token) { r.buf = append(r.buf, tok) }

// Seek repositions the underlying scanner and drops buffered tokens.
func (r *ObjectReader) Seek(off int64) error {
	r.buf = r.buf[:0]
	return r.s.Seek(off)
}

// ReadObject parses one direct object (or reference).
func (r *ObjectReader) ReadObject() (Object, error) {
	tok, err := r.Next()
	if err != nil {
		return nil, err
	}
	return r.objectFrom(tok)
}

func (r *ObjectReader) objectFrom(tok scanner.Token) (Object, error) {
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str()}, nil
	case scanner.TokenNumber:
		switch v := tok.Value.(type) {
		case int64:
			return NumberInt(v), nil
		case float64:
			return NumberFloat(v), nil
		}
	case scanner.TokenBoolean:
		v, _ := tok.Value.(bool)
		return BoolObj{V: v}, nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		b, _ := tok.Value.([]byte)
		return StringObj{Bytes: append([]byte(nil), b...), Hex: tok.Hex}, nil
	case scanner.TokenRef:
		v, _ := tok.Value.([2]int64)
		return Ref(int(v[0]), int(v[1])), nil
	case scanner.TokenArray:
		return r.readArray()
	case scanner.TokenDict:
		return r.readDict()
	}
	return nil, fmt.Errorf("unexpected token %v at offset %d", tok.Value, tok.Pos)
}

func (r *ObjectReader) readArray() (Object, error) {
	if r.depth++; r.depth > maxNesting {
		return nil, errors.New("raw: nesting too deep")
	}
	defer func() { r.depth-- }()
	arr := &ArrayObj{}
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.IsKeyword("]") {
			return arr, nil
		}
		item, err := r.objectFrom(tok)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *ObjectReader) readDict() (Object, error) {
	if r.depth++; r.depth > maxNesting {
		return nil, errors.New("raw: nesting too deep")
	}
	defer func() { r.depth-- }()
	d := Dict()
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.IsKeyword(">>") {
			return d, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("expected name in dict at offset %d", tok.Pos)
		}
		val, err := r.ReadObject()
		if err != nil {
			return nil, err
		}
		if _, isNull := val.(NullObj); isNull {
			// a null value is equivalent to an absent key
			continue
		}
		d.Set(tok.Str(), val)
	}
}

// ReadIndirect parses "<num> <gen> obj <object> [stream] endobj" at the
// current position.
func (r *ObjectReader) ReadIndirect() (ObjectRef, Object, error) {
	numTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	genTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	objTok, err := r.Next()
	if err != nil {
		return ObjectRef{}, nil, err
	}
	num, ok1 := numTok.Int()
	gen, ok2 := genTok.Int()
	if !ok1 || !ok2 || !objTok.IsKeyword("obj") {
		return ObjectRef{}, nil, ErrNotIndirect
	}
	ref := ObjectRef{Num: int(num), Gen: int(gen)}

	obj, err := r.ReadObject()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	if dict, ok := obj.(*DictObj); ok {
		r.s.SetNextStreamLength(r.streamLength(dict))
		tok, err := r.Next()
		r.s.SetNextStreamLength(-1)
		switch {
		case err == nil && tok.Type == scanner.TokenStream:
			data, _ := tok.Value.([]byte)
			obj = NewStream(dict, append([]byte(nil), data...))
		case err == nil:
			r.Unread(tok)
		case !errors.Is(err, io.EOF):
			return ref, nil, fmt.Errorf("object %s: %w", ref, err)
		}
	}
	if tok, err := r.Next(); err == nil && !tok.IsKeyword("endobj") {
		r.Unread(tok)
	}
	return ref, obj, nil
}

func (r *ObjectReader) streamLength(dict *DictObj) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	switch l := v.(type) {
	case NumberObj:
		return l.Int()
	case RefObj:
		if r.StreamLength != nil {
			if n, ok := r.StreamLength(l.R); ok {
				return n
			}
		}
	}
	return -1
}
