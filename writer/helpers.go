package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
)

// packObjects groups every non-stream object into object-stream batches.
func packObjects(objects map[int]raw.Object) [][]int {
	nums := make([]int, 0, len(objects))
	for n, obj := range objects {
		if _, isStream := obj.(*raw.StreamObj); !isStream {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	var groups [][]int
	for len(nums) > 0 {
		k := objectStreamCapacity
		if k > len(nums) {
			k = len(nums)
		}
		groups = append(groups, nums[:k])
		nums = nums[k:]
	}
	return groups
}

func buildObjectStream(objects map[int]raw.Object, group []int, level int) (*raw.StreamObj, error) {
	var header, body bytes.Buffer
	for _, n := range group {
		fmt.Fprintf(&header, "%d %d ", n, body.Len())
		body.Write(serializePrimitive(objects[n]))
		body.WriteByte('\n')
	}
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("ObjStm"))
	dict.Set("N", raw.NumberInt(int64(len(group))))
	dict.Set("First", raw.NumberInt(int64(header.Len())))
	data := append(header.Bytes(), body.Bytes()...)
	if level == 0 {
		level = -1
	}
	enc, err := filters.FlateEncode(data, level)
	if err != nil {
		return nil, err
	}
	dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	dict.Set("Length", raw.NumberInt(int64(len(enc))))
	return raw.NewStream(dict, enc), nil
}

func classicXRef(entries []xrefEntry) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "xref\n0 %d\n", len(entries))
	b.WriteString("0000000000 65535 f \n")
	for _, e := range entries[1:] {
		if e.typ == 1 {
			fmt.Fprintf(&b, "%010d 00000 n \n", e.offset)
		} else {
			b.WriteString("0000000000 65535 f \n")
		}
	}
	return b.Bytes()
}

// buildXRefStream encodes entries with /W [1 n 2], n wide enough for the
// largest offset.
func buildXRefStream(entries []xrefEntry, trailer *raw.DictObj) *raw.StreamObj {
	var max int64
	for _, e := range entries {
		if e.offset > max {
			max = e.offset
		}
	}
	width := bytesNeeded(max)
	var data []byte
	for i, e := range entries {
		third := e.index
		typ := e.typ
		if i == 0 {
			typ, third = 0, 0xFFFF
		}
		data = appendXRefStreamEntry(data, typ, e.offset, third, width)
	}
	dict := raw.CloneDict(trailer)
	dict.Set("Type", raw.NameLiteral("XRef"))
	dict.Set("W", raw.Numbers(1, float64(width), 2))
	if enc, err := filters.FlateEncode(data, -1); err == nil {
		data = enc
		dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	}
	dict.Set("Length", raw.NumberInt(int64(len(data))))
	return raw.NewStream(dict, data)
}

func bytesNeeded(v int64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

func appendXRefStreamEntry(buf []byte, typ int, field2 int64, field3 int, width int) []byte {
	buf = append(buf, byte(typ))
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(field2>>(8*uint(i))))
	}
	return append(buf, byte(field3>>8), byte(field3))
}

func formatNumber(n raw.NumberObj) string {
	if n.IsInt {
		return strconv.FormatInt(n.I, 10)
	}
	f := n.F
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	f = math.Round(f*1e6) / 1e6
	if f == 0 {
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func serializePrimitive(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return []byte("/" + pdfNameLiteral(v.Val))
	case raw.NumberObj:
		return []byte(formatNumber(v))
	case raw.BoolObj:
		if v.V {
			return []byte("true")
		}
		return []byte("false")
	case raw.NullObj:
		return []byte("null")
	case raw.StringObj:
		if v.Hex {
			dst := make([]byte, hex.EncodedLen(len(v.Bytes))+2)
			dst[0] = '<'
			hex.Encode(dst[1:], v.Bytes)
			dst[len(dst)-1] = '>'
			return bytes.ToUpper(dst)
		}
		return escapeLiteralString(v.Bytes)
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(serializePrimitive(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		var b bytes.Buffer
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteString("/" + pdfNameLiteral(k) + " ")
			b.Write(serializePrimitive(v.KV[k]))
		}
		b.WriteString(">>")
		return b.Bytes()
	case *raw.StreamObj:
		var b bytes.Buffer
		dict := raw.CloneDict(v.Dict)
		if dict == nil {
			dict = raw.Dict()
		}
		dict.Set("Length", raw.NumberInt(int64(len(v.Data))))
		b.Write(serializePrimitive(dict))
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
		return b.Bytes()
	case raw.RefObj:
		return []byte(fmt.Sprintf("%d %d R", v.R.Num, v.R.Gen))
	default:
		return []byte("null")
	}
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x7F {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

func pdfNameLiteral(value string) string {
	var b bytes.Buffer
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7F && ch != '#' && !isDelimiter(ch) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
