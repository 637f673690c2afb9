package contentstream

import (
	"context"
	"fmt"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/ir/raw"
)

// OperatorHandler observes an operation after the processor has applied its
// effect on the graphics state.
type OperatorHandler interface {
	Handle(ctx *ExecutionContext, op Operation) error
}

type HandlerFunc func(ctx *ExecutionContext, op Operation) error

func (f HandlerFunc) Handle(ctx *ExecutionContext, op Operation) error { return f(ctx, op) }

type ExecutionContext struct {
	State     *GraphicsState
	Resources *raw.DictObj
	Doc       *raw.Document
}

// Processor walks operations while maintaining graphics and text state.
type Processor struct {
	handlers map[string]OperatorHandler
	// Lenient ignores unbalanced Q operators instead of failing.
	Lenient bool
}

func NewProcessor() *Processor {
	return &Processor{handlers: make(map[string]OperatorHandler), Lenient: true}
}

func (p *Processor) RegisterHandler(op string, h OperatorHandler) { p.handlers[op] = h }

// Process runs ops against a fresh execution context. Cancellation is checked
// every few hundred operations.
func (p *Processor) Process(ctx context.Context, ops []Operation, ec *ExecutionContext) error {
	if ec.State == nil {
		ec.State = NewGraphicsState()
	}
	for i, op := range ops {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := p.apply(ec.State, op); err != nil {
			return fmt.Errorf("operator %d (%s): %w", i, op.Operator, err)
		}
		if h, ok := p.handlers[op.Operator]; ok {
			if err := h.Handle(ec, op); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) apply(gs *GraphicsState, op Operation) error {
	ts := &gs.Text
	switch op.Operator {
	case "q":
		gs.Save()
	case "Q":
		if err := gs.Restore(); err != nil && !p.Lenient {
			return err
		}
	case "cm":
		if v, ok := op.Numbers(); ok && len(v) == 6 {
			gs.CTM = coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.Multiply(gs.CTM)
		}
	case "w":
		if v, ok := op.Number(0); ok {
			gs.LineWidth = v
		}
	case "g":
		if v, ok := op.Number(0); ok {
			gs.FillRGB = [3]float64{v, v, v}
		}
	case "G":
		if v, ok := op.Number(0); ok {
			gs.StrokeRGB = [3]float64{v, v, v}
		}
	case "rg", "RG":
		if v, ok := op.Numbers(); ok && len(v) == 3 {
			if op.Operator == "rg" {
				gs.FillRGB = [3]float64{v[0], v[1], v[2]}
			} else {
				gs.StrokeRGB = [3]float64{v[0], v[1], v[2]}
			}
		}
	case "k", "K":
		if v, ok := op.Numbers(); ok && len(v) == 4 {
			rgb := [3]float64{(1 - v[0]) * (1 - v[3]), (1 - v[1]) * (1 - v[3]), (1 - v[2]) * (1 - v[3])}
			if op.Operator == "k" {
				gs.FillRGB = rgb
			} else {
				gs.StrokeRGB = rgb
			}
		}
	case "BT":
		ts.TextMatrix = coords.Identity()
		ts.TextLineMatrix = coords.Identity()
	case "Tf":
		if name, ok := op.Name(0); ok {
			ts.Font = name
		}
		if v, ok := op.Number(1); ok {
			ts.FontSize = v
		}
	case "Tc":
		ts.CharSpacing, _ = op.Number(0)
	case "Tw":
		ts.WordSpacing, _ = op.Number(0)
	case "Tz":
		if v, ok := op.Number(0); ok {
			ts.HScale = v / 100
		}
	case "TL":
		ts.Leading, _ = op.Number(0)
	case "Ts":
		ts.Rise, _ = op.Number(0)
	case "Td":
		if v, ok := op.Numbers(); ok && len(v) == 2 {
			ts.nextLine(v[0], v[1])
		}
	case "TD":
		if v, ok := op.Numbers(); ok && len(v) == 2 {
			ts.Leading = -v[1]
			ts.nextLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := op.Numbers(); ok && len(v) == 6 {
			ts.TextLineMatrix = coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			ts.TextMatrix = ts.TextLineMatrix
		}
	case "T*", "'":
		ts.nextLine(0, -ts.Leading)
	case "\"":
		ts.WordSpacing, _ = op.Number(0)
		ts.CharSpacing, _ = op.Number(1)
		ts.nextLine(0, -ts.Leading)
	}
	return nil
}
