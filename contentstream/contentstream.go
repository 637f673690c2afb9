// Package contentstream parses and generates page content streams.
package contentstream

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/scanner"
)

// Operation is one operator with the operands that preceded it. Inline
// images are reported as a single "BI" operation whose operand is the image
// dictionary and whose InlineData holds the bytes between ID and EI.
type Operation struct {
	Operator   string
	Operands   []raw.Object
	InlineData []byte
}

const maxOperands = 64

// Parse tokenizes a decoded content stream. Malformed operands are dropped
// rather than failing the whole stream, matching viewer behavior.
func Parse(data []byte) ([]Operation, error) {
	rd := raw.NewObjectReader(scanner.New(data, scanner.Config{ContentStream: true}))
	var (
		ops      []Operation
		operands []raw.Object
	)
	for {
		tok, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return ops, nil
		}
		if err != nil {
			return ops, fmt.Errorf("content stream: %w", err)
		}
		if tok.Type != scanner.TokenKeyword {
			rd.Unread(tok)
			obj, err := rd.ReadObject()
			if err != nil {
				operands = operands[:0]
				continue
			}
			if len(operands) < maxOperands {
				operands = append(operands, obj)
			}
			continue
		}
		op := tok.Str()
		if op == "BI" {
			inline, err := readInlineImage(rd)
			if err != nil {
				return ops, err
			}
			ops = append(ops, inline)
			operands = operands[:0]
			continue
		}
		ops = append(ops, Operation{Operator: op, Operands: append([]raw.Object(nil), operands...)})
		operands = operands[:0]
	}
}

func readInlineImage(rd *raw.ObjectReader) (Operation, error) {
	dict := raw.Dict()
	for {
		tok, err := rd.Next()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		switch tok.Type {
		case scanner.TokenInlineImage:
			data, _ := tok.Value.([]byte)
			return Operation{
				Operator:   "BI",
				Operands:   []raw.Object{dict},
				InlineData: append([]byte(nil), data...),
			}, nil
		case scanner.TokenName:
			val, err := rd.ReadObject()
			if err != nil {
				return Operation{}, fmt.Errorf("inline image /%s: %w", tok.Str(), err)
			}
			dict.Set(tok.Str(), val)
		default:
			return Operation{}, fmt.Errorf("inline image: unexpected token at %d", tok.Pos)
		}
	}
}

// Number reads operand i as a number.
func (op Operation) Number(i int) (float64, bool) {
	if i >= len(op.Operands) {
		return 0, false
	}
	n, ok := op.Operands[i].(raw.NumberObj)
	return n.Float(), ok
}

// Numbers reads all operands as numbers, failing if any is not one.
func (op Operation) Numbers() ([]float64, bool) {
	out := make([]float64, len(op.Operands))
	for i := range op.Operands {
		v, ok := op.Number(i)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Name reads operand i as a name.
func (op Operation) Name(i int) (string, bool) {
	if i >= len(op.Operands) {
		return "", false
	}
	n, ok := op.Operands[i].(raw.NameObj)
	return n.Val, ok
}
