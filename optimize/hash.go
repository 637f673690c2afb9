package optimize

import (
	"encoding/binary"
	"hash"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfengine/ir/raw"
)

type digest [blake2b.Size256]byte

func hashObject(obj raw.Object) digest {
	h, _ := blake2b.New256(nil)
	writeHash(h, obj)
	var d digest
	copy(d[:], h.Sum(nil))
	return d
}

// writeHash feeds a canonical, length-prefixed encoding of obj to h so that
// structurally equal objects hash equally.
func writeHash(h hash.Hash, obj raw.Object) {
	var num [8]byte
	writeLen := func(n int) {
		binary.BigEndian.PutUint64(num[:], uint64(n))
		h.Write(num[:])
	}
	writeBytes := func(tag byte, b []byte) {
		h.Write([]byte{tag})
		writeLen(len(b))
		h.Write(b)
	}
	switch t := obj.(type) {
	case nil:
		h.Write([]byte{'0'})
	case raw.NameObj:
		writeBytes('/', []byte(t.Val))
	case raw.NumberObj:
		if t.IsInt {
			h.Write([]byte{'i'})
			binary.BigEndian.PutUint64(num[:], uint64(t.I))
		} else {
			h.Write([]byte{'f'})
			binary.BigEndian.PutUint64(num[:], math.Float64bits(t.F))
		}
		h.Write(num[:])
	case raw.BoolObj:
		if t.V {
			h.Write([]byte{'T'})
		} else {
			h.Write([]byte{'F'})
		}
	case raw.StringObj:
		writeBytes('(', t.Bytes)
	case raw.RefObj:
		h.Write([]byte{'R'})
		binary.BigEndian.PutUint64(num[:], uint64(t.R.Num)<<16|uint64(t.R.Gen))
		h.Write(num[:])
	case *raw.ArrayObj:
		h.Write([]byte{'['})
		writeLen(len(t.Items))
		for _, it := range t.Items {
			writeHash(h, it)
		}
	case *raw.DictObj:
		h.Write([]byte{'<'})
		writeLen(t.Len())
		for _, k := range t.Keys() {
			writeBytes('/', []byte(k))
			writeHash(h, t.KV[k])
		}
	case *raw.StreamObj:
		h.Write([]byte{'S'})
		dict := raw.CloneDict(t.Dict)
		dict.Delete("Length")
		writeHash(h, dict)
		writeBytes('D', t.Data)
	case raw.NullObj:
		h.Write([]byte{'n'})
	}
}
