package raw

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// DocumentMetadata contains the /Info fields the engine reads and writes.
type DocumentMetadata struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate time.Time
	ModDate      time.Time
}

// Document is the root container for raw PDF objects.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	Metadata  DocumentMetadata
	Encrypted bool
	// Repaired is set when the cross-reference data was rebuilt by scanning.
	Repaired bool

	next int
}

// Parser converts bytes into a raw.Document.
type Parser interface {
	Parse(ctx context.Context, r io.ReaderAt) (*Document, error)
}

// NewDocument returns an empty document with an initialized object table.
func NewDocument() *Document {
	return &Document{
		Objects: make(map[ObjectRef]Object),
		Trailer: Dict(),
		Version: "1.7",
	}
}

const maxResolveDepth = 32

// Resolve follows indirect references until a direct object is reached.
// Dangling references resolve to NullObj.
func (d *Document) Resolve(obj Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		next, ok := d.Objects[ref.R]
		if !ok {
			return NullObj{}
		}
		obj = next
	}
	return NullObj{}
}

// ResolveDict resolves obj and returns it as a dictionary. A stream yields
// its dictionary.
func (d *Document) ResolveDict(obj Object) (*DictObj, bool) {
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, true
	}
	return nil, false
}

func (d *Document) ResolveArray(obj Object) (*ArrayObj, bool) {
	a, ok := d.Resolve(obj).(*ArrayObj)
	return a, ok
}

func (d *Document) ResolveNumber(obj Object) (float64, bool) {
	n, ok := d.Resolve(obj).(NumberObj)
	return n.Float(), ok
}

func (d *Document) ResolveName(obj Object) (string, bool) {
	n, ok := d.Resolve(obj).(NameObj)
	return n.Val, ok
}

// Lookup resolves the value stored under key in dict.
func (d *Document) Lookup(dict *DictObj, key string) Object {
	v, ok := dict.Get(key)
	if !ok {
		return nil
	}
	return d.Resolve(v)
}

// MaxObjectNumber returns the highest object number in use.
func (d *Document) MaxObjectNumber() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// Add stores obj under a fresh object number and returns a reference to it.
func (d *Document) Add(obj Object) RefObj {
	if d.Objects == nil {
		d.Objects = make(map[ObjectRef]Object)
	}
	if d.next <= 0 {
		d.next = d.MaxObjectNumber() + 1
	}
	ref := ObjectRef{Num: d.next}
	for {
		if _, taken := d.Objects[ref]; !taken {
			break
		}
		ref.Num++
	}
	d.next = ref.Num + 1
	d.Objects[ref] = obj
	return RefObj{R: ref}
}

// Catalog returns the document catalog referenced by the trailer's /Root.
func (d *Document) Catalog() (*DictObj, bool) {
	if d.Trailer == nil {
		return nil, false
	}
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, false
	}
	return d.ResolveDict(root)
}
