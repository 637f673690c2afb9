package contentstream

import (
	"bytes"
	"strconv"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/ir/raw"
)

// Builder emits content stream operators.
type Builder struct {
	buf bytes.Buffer
}

func (b *Builder) Bytes() []byte { return b.buf.Bytes() }
func (b *Builder) Len() int      { return b.buf.Len() }

func (b *Builder) op(operator string, nums ...float64) *Builder {
	for _, n := range nums {
		b.buf.WriteString(formatNum(n))
		b.buf.WriteByte(' ')
	}
	b.buf.WriteString(operator)
	b.buf.WriteByte('\n')
	return b
}

func (b *Builder) name(n string) {
	b.buf.WriteByte('/')
	b.buf.WriteString(n)
	b.buf.WriteByte(' ')
}

func (b *Builder) Save() *Builder    { return b.op("q") }
func (b *Builder) Restore() *Builder { return b.op("Q") }

func (b *Builder) Transform(m coords.Matrix) *Builder {
	return b.op("cm", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (b *Builder) FillGray(v float64) *Builder        { return b.op("g", v) }
func (b *Builder) FillRGB(r, g, bl float64) *Builder  { return b.op("rg", r, g, bl) }
func (b *Builder) Rect(x, y, w, h float64) *Builder   { return b.op("re", x, y, w, h) }
func (b *Builder) Fill() *Builder                     { return b.op("f") }
func (b *Builder) BeginText() *Builder                { return b.op("BT") }
func (b *Builder) EndText() *Builder                  { return b.op("ET") }
func (b *Builder) TextPosition(x, y float64) *Builder { return b.op("Td", x, y) }

func (b *Builder) TextMatrix(m coords.Matrix) *Builder {
	return b.op("Tm", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (b *Builder) SetFont(resource string, size float64) *Builder {
	b.name(resource)
	return b.op("Tf", size)
}

// ShowText writes already-encoded text bytes as a literal string.
func (b *Builder) ShowText(encoded []byte) *Builder {
	b.buf.Write(literal(encoded))
	b.buf.WriteByte(' ')
	return b.op("Tj")
}

func (b *Builder) SetExtGState(resource string) *Builder {
	b.name(resource)
	return b.op("gs")
}

// DrawXObject paints the named XObject.
func (b *Builder) DrawXObject(resource string) *Builder {
	b.name(resource)
	return b.op("Do")
}

// DrawImage paints an image XObject into the rectangle (x, y, w, h).
func (b *Builder) DrawImage(resource string, x, y, w, h float64) *Builder {
	b.Save()
	b.Transform(coords.Matrix{w, 0, 0, h, x, y})
	b.DrawXObject(resource)
	return b.Restore()
}

func formatNum(v float64) string {
	return strconv.FormatFloat(float64(int64(v*1e4+sign(v)*0.5))/1e4, 'f', -1, 64)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func literal(s []byte) []byte {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\r':
			out = append(out, '\\', 'r')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	return append(out, ')')
}

// Serialize writes ops back to content stream syntax.
func Serialize(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		if op.Operator == "BI" {
			buf.WriteString("BI\n")
			if len(op.Operands) == 1 {
				if d, ok := op.Operands[0].(*raw.DictObj); ok {
					for _, k := range d.Keys() {
						buf.WriteString("/" + k + " ")
						buf.Write(operand(d.KV[k]))
						buf.WriteByte('\n')
					}
				}
			}
			buf.WriteString("ID ")
			buf.Write(op.InlineData)
			buf.WriteString("\nEI\n")
			continue
		}
		for _, o := range op.Operands {
			buf.Write(operand(o))
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func operand(o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NumberObj:
		if v.IsInt {
			return []byte(strconv.FormatInt(v.I, 10))
		}
		return []byte(formatNum(v.F))
	case raw.NameObj:
		return []byte("/" + v.Val)
	case raw.StringObj:
		return literal(v.Bytes)
	case raw.BoolObj:
		return []byte(strconv.FormatBool(v.V))
	case *raw.ArrayObj:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.Write(operand(it))
		}
		b.WriteByte(']')
		return b.Bytes()
	case *raw.DictObj:
		var b bytes.Buffer
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteString("/" + k + " ")
			b.Write(operand(v.KV[k]))
			b.WriteByte(' ')
		}
		b.WriteString(">>")
		return b.Bytes()
	}
	return []byte("null")
}
